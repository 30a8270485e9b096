package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Feed.validate("feed"); err != nil {
		return err
	}

	if c.Monitor.Addr == "" {
		return errors.New("monitor.addr is required")
	}
	if c.Monitor.RecentLimit < 1 {
		return errors.New("monitor.recent_limit must be >= 1")
	}
	if c.Monitor.ReconnectRate <= 0 {
		return errors.New("monitor.reconnect_rate must be > 0")
	}
	if c.Monitor.ReconnectBurst < 1 {
		return errors.New("monitor.reconnect_burst must be >= 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (f *FeedConfig) validate(prefix string) error {
	// An empty URL is allowed: the manager runs in demo mode.
	if f.URL != "" {
		u, err := url.Parse(f.URL)
		if err != nil {
			return fmt.Errorf("%s.url is invalid: %w", prefix, err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("%s.url must use ws or wss, got %q", prefix, u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("%s.url has no host", prefix)
		}
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"connect_timeout", f.ConnectTimeout},
		{"reconnect_delay", f.ReconnectDelay},
		{"fallback_interval", f.FallbackInterval},
		{"ping_interval", f.PingInterval},
		{"ping_timeout", f.PingTimeout},
		{"write_timeout", f.WriteTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s.%s must be > 0", prefix, d.name)
		}
	}

	if f.BufferSize < 1 {
		return fmt.Errorf("%s.buffer_size must be >= 1", prefix)
	}
	if f.PingTimeout < f.PingInterval {
		return fmt.Errorf("%s.ping_timeout (%s) cannot be shorter than ping_interval (%s)", prefix, f.PingTimeout, f.PingInterval)
	}
	return nil
}
