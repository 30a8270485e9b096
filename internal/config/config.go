// Package config loads the YAML configuration shared by the feed binaries.
package config

import (
	"time"

	"github.com/rickgao/csms-feed/internal/feed"
	"github.com/rickgao/csms-feed/internal/session"
)

// Config is the root configuration.
type Config struct {
	Feed    FeedConfig    `yaml:"feed"`
	Session SessionConfig `yaml:"session"`
	Monitor MonitorConfig `yaml:"monitor"`
	Logging LoggingConfig `yaml:"logging"`
}

// FeedConfig holds connection manager settings.
type FeedConfig struct {
	URL               string        `yaml:"url"` // ws:// or wss:// endpoint, without the credential
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	FallbackInterval  time.Duration `yaml:"fallback_interval"`
	BufferSize        int           `yaml:"buffer_size"`
	PlaceholderPrefix string        `yaml:"placeholder_prefix"`
	TokenParam        string        `yaml:"token_param"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
}

// SessionConfig lists where the admin credential may come from. The first
// non-empty source wins: token, then token_file, then token_env.
type SessionConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	TokenEnv  string `yaml:"token_env"`
}

// MonitorConfig holds the HTTP monitor settings.
type MonitorConfig struct {
	Addr           string  `yaml:"addr"`
	RecentLimit    int     `yaml:"recent_limit"`    // Default ?limit for /api/feed/messages
	ReconnectRate  float64 `yaml:"reconnect_rate"`  // Manual reconnects per second
	ReconnectBurst int     `yaml:"reconnect_burst"` // Manual reconnects allowed back to back
}

// LoggingConfig holds slog and file rotation settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // Empty logs to stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// ManagerConfig converts the feed section into a feed.Config.
func (c *Config) ManagerConfig() feed.Config {
	return feed.Config{
		ConnectTimeout:    c.Feed.ConnectTimeout,
		ReconnectDelay:    c.Feed.ReconnectDelay,
		FallbackInterval:  c.Feed.FallbackInterval,
		BufferSize:        c.Feed.BufferSize,
		PlaceholderPrefix: c.Feed.PlaceholderPrefix,
		Client: feed.ClientConfig{
			TokenParam:   c.Feed.TokenParam,
			PingInterval: c.Feed.PingInterval,
			PingTimeout:  c.Feed.PingTimeout,
			WriteTimeout: c.Feed.WriteTimeout,
		},
	}
}

// CredentialSource builds the session source described by the session section.
func (c *Config) CredentialSource() session.Source {
	return session.Chain{
		session.Static(c.Session.Token),
		session.File{Path: c.Session.TokenFile},
		session.Env{Name: c.Session.TokenEnv},
	}
}
