package cloud

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"solar-fleet-backend/config"
)

// TelemetryClient is the contract the replication jobs depend on. The real
// implementation wraps the provider's HTTP API; tests substitute their own.
type TelemetryClient interface {
	EndUserSummary(ctx context.Context) ([]SummaryItem, error)
	DeviceBySN(ctx context.Context, sn, customerEmail string) (*DeviceDetail, error)
	DeviceAlarms(ctx context.Context, autoID, sn string) (*AlarmReport, error)
}

// Client is the HTTP implementation of TelemetryClient.
type Client struct {
	baseURL string
	key     string
	secret  string
	client  *http.Client
}

// NewClient creates a provider client from configuration.
func NewClient(cfg *config.ProviderConfig) *Client {
	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Provider client will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	return &Client{
		baseURL: cfg.BaseURL,
		key:     cfg.APIKey,
		secret:  cfg.APISecret,
		client: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// EndUserSummary pulls the full end-user summary list in one call.
func (c *Client) EndUserSummary(ctx context.Context) ([]SummaryItem, error) {
	var items []SummaryItem
	if err := c.get(ctx, "/api/v1/member/summary", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// DeviceBySN pulls the current detail record for a single device.
func (c *Client) DeviceBySN(ctx context.Context, sn, customerEmail string) (*DeviceDetail, error) {
	params := url.Values{}
	params.Set("sn", sn)
	params.Set("email", customerEmail)

	var detail DeviceDetail
	if err := c.get(ctx, "/api/v1/device/detail", params, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// DeviceAlarms pulls the active alarm list for a single device.
func (c *Client) DeviceAlarms(ctx context.Context, autoID, sn string) (*AlarmReport, error) {
	params := url.Values{}
	params.Set("autoId", autoID)
	params.Set("sn", sn)

	var report AlarmReport
	if err := c.get(ctx, "/api/v1/device/alarms", params, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// envelope is the provider's response wrapper. A non-zero code is an
// application-level failure even on HTTP 200.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// get performs a signed GET against the provider API and decodes the data
// payload into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	c.sign(params)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to unmarshal api response: %w", err)
	}

	if env.Code != 0 {
		return fmt.Errorf("API returned non-zero application code %d: %s", env.Code, env.Message)
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal data payload: %w", err)
	}
	return nil
}

// sign appends the provider's signature params: the api key, a timestamp, and
// an MD5 digest of the sorted key=value pairs concatenated with the secret.
func (c *Client) sign(params url.Values) {
	params.Set("key", c.key)
	params.Set("ts", strconv.FormatInt(time.Now().Unix(), 10))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf []byte
	for _, k := range keys {
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, params.Get(k)...)
	}
	buf = append(buf, c.secret...)

	sum := md5.Sum(buf)
	params.Set("sign", hex.EncodeToString(sum[:]))
}
