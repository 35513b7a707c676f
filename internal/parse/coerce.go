package parse

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// The provider's payloads are loosely typed: numerics arrive as strings,
// numbers, or not at all. Coercion is centralized here so every job applies
// the same default-on-failure rules.

// Float coerces a provider field to a float64. Absent or malformed values
// become 0, never NaN and never an error.
func Float(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// FloatPtr coerces a provider field to a nullable float64. Absent or
// malformed values become nil.
func FloatPtr(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return &f
	case float64, float32, int, int64, json.Number:
		f := Float(t)
		return &f
	default:
		return nil
	}
}

// StateCounts normalizes the provider's member state-count field. The
// provider sends either an encoded string ("1,0,3" or a JSON array) or an
// already-decoded sequence. Unparseable input yields nil.
func StateCounts(v any) []int {
	switch t := v.(type) {
	case nil:
		return nil
	case []int:
		return t
	case []any:
		out := make([]int, 0, len(t))
		for _, e := range t {
			out = append(out, int(Float(e)))
		}
		return out
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var arr []any
			if err := json.Unmarshal([]byte(s), &arr); err != nil {
				return nil
			}
			return StateCounts(arr)
		}
		parts := strings.Split(s, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil
			}
			out = append(out, n)
		}
		return out
	default:
		return nil
	}
}

// providerLayout is the timestamp layout used across the provider API.
const providerLayout = "2006-01-02 15:04:05"

// Timestamp parses a provider timestamp in the given location. Absent or
// malformed values become nil.
func Timestamp(s string, loc *time.Location) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(providerLayout, s, loc)
	if err != nil {
		return nil
	}
	return &t
}

// EncodeCounts renders a state-count list back to the compact comma form used
// in the telemetry rows.
func EncodeCounts(counts []int) string {
	if len(counts) == 0 {
		return ""
	}
	parts := make([]string, len(counts))
	for i, n := range counts {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
