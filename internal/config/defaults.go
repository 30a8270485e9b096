package config

import (
	"time"

	"github.com/rickgao/csms-feed/internal/session"
)

// Default values for optional configuration fields.
const (
	DefaultConnectTimeout   = 2 * time.Second
	DefaultReconnectDelay   = 5 * time.Second
	DefaultFallbackInterval = 10 * time.Second
	DefaultBufferSize       = 50
	DefaultTokenParam       = "token"
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultMonitorAddr      = ":8080"
	DefaultRecentLimit      = 20
	DefaultReconnectRate    = 0.2
	DefaultReconnectBurst   = 1
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultLogMaxSizeMB     = 100
	DefaultLogMaxAgeDays    = 7
)

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.ConnectTimeout == 0 {
		c.Feed.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Feed.ReconnectDelay == 0 {
		c.Feed.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Feed.FallbackInterval == 0 {
		c.Feed.FallbackInterval = DefaultFallbackInterval
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultBufferSize
	}
	if c.Feed.PlaceholderPrefix == "" {
		c.Feed.PlaceholderPrefix = session.DefaultPlaceholderPrefix
	}
	if c.Feed.TokenParam == "" {
		c.Feed.TokenParam = DefaultTokenParam
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.PingTimeout == 0 {
		c.Feed.PingTimeout = DefaultPingTimeout
	}
	if c.Feed.WriteTimeout == 0 {
		c.Feed.WriteTimeout = DefaultWriteTimeout
	}

	// Session defaults
	if c.Session.TokenEnv == "" {
		c.Session.TokenEnv = session.DefaultEnvVar
	}

	// Monitor defaults
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = DefaultMonitorAddr
	}
	if c.Monitor.RecentLimit == 0 {
		c.Monitor.RecentLimit = DefaultRecentLimit
	}
	if c.Monitor.ReconnectRate == 0 {
		c.Monitor.ReconnectRate = DefaultReconnectRate
	}
	if c.Monitor.ReconnectBurst == 0 {
		c.Monitor.ReconnectBurst = DefaultReconnectBurst
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}
