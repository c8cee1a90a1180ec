package module

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents module-specific configuration (opaque to the engine).
type Config map[string]any

// Clone returns a shallow copy of the config.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for key, value := range c {
		out[key] = value
	}
	return out
}

// Merge returns a new config with overrides layered over c.
func (c Config) Merge(overrides Config) Config {
	out := make(Config, len(c)+len(overrides))
	for key, value := range c {
		out[key] = value
	}
	for key, value := range overrides {
		out[key] = value
	}
	return out
}

// String returns the value under key as a trimmed string.
func (c Config) String(key, fallback string) string {
	raw, ok := c[key]
	if !ok || raw == nil {
		return fallback
	}
	value := strings.TrimSpace(fmt.Sprint(raw))
	if value == "" {
		return fallback
	}
	return value
}

// Int returns the value under key as an int.
func (c Config) Int(key string, fallback int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

// Duration returns the value under key as a duration. Strings use
// time.ParseDuration syntax; numbers are seconds.
func (c Config) Duration(key string, fallback time.Duration) time.Duration {
	switch v := c[key].(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

// Strings returns the value under key as a string list. A single string is
// split on commas.
func (c Config) Strings(key string) []string {
	var out []string
	switch v := c[key].(type) {
	case []string:
		out = append(out, v...)
	case []any:
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
	case string:
		out = strings.Split(v, ",")
	}
	cleaned := out[:0]
	for _, item := range out {
		if item = strings.TrimSpace(item); item != "" {
			cleaned = append(cleaned, item)
		}
	}
	return cleaned
}
