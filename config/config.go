package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Provider   ProviderConfig   `yaml:"provider"`
	Sync       SyncConfig       `yaml:"sync"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	EnableTimescale        bool   `yaml:"enable_timescale"`
}

// ProviderConfig holds the endpoint and credentials of the third-party
// inverter cloud.
type ProviderConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APISecret      string `yaml:"api_secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Timezone       string `yaml:"timezone"`
	HTTPProxy      string `yaml:"http_proxy"`
}

// SyncConfig holds the cadences of the replication jobs. Each job is
// scheduled independently.
type SyncConfig struct {
	Enabled                  bool          `yaml:"enabled"`
	UserSyncIntervalHours    int           `yaml:"user_sync_interval_hours"`
	DeviceSyncIntervalHours  int           `yaml:"device_sync_interval_hours"`
	AlarmPollIntervalMinutes int           `yaml:"alarm_poll_interval_minutes"`
	AlarmMaxAgeMinutes       int           `yaml:"alarm_max_age_minutes"`
	UserSyncInterval         time.Duration `yaml:"-"` // Ignored by YAML parser
	DeviceSyncInterval       time.Duration `yaml:"-"`
	AlarmPollInterval        time.Duration `yaml:"-"`
	AlarmMaxAge              time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Sync.UserSyncIntervalHours <= 0 {
		cfg.Sync.UserSyncIntervalHours = 24
	}
	if cfg.Sync.DeviceSyncIntervalHours <= 0 {
		cfg.Sync.DeviceSyncIntervalHours = 24
	}
	if cfg.Sync.AlarmPollIntervalMinutes <= 0 {
		cfg.Sync.AlarmPollIntervalMinutes = 5
	}
	if cfg.Sync.AlarmMaxAgeMinutes <= 0 {
		cfg.Sync.AlarmMaxAgeMinutes = 5
	}
	cfg.Sync.UserSyncInterval = time.Duration(cfg.Sync.UserSyncIntervalHours) * time.Hour
	cfg.Sync.DeviceSyncInterval = time.Duration(cfg.Sync.DeviceSyncIntervalHours) * time.Hour
	cfg.Sync.AlarmPollInterval = time.Duration(cfg.Sync.AlarmPollIntervalMinutes) * time.Minute
	cfg.Sync.AlarmMaxAge = time.Duration(cfg.Sync.AlarmMaxAgeMinutes) * time.Minute

	if cfg.Provider.TimeoutSeconds <= 0 {
		cfg.Provider.TimeoutSeconds = 30
	}
	if cfg.Provider.Timezone == "" {
		cfg.Provider.Timezone = "UTC"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
