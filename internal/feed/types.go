package feed

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrNoEndpoint      = errors.New("no endpoint configured")
)

// Message kinds used by the CSMS backend and the demo generator.
const (
	KindHeartbeat         = "heartbeat"
	KindHeartbeatAck      = "heartbeat_ack"
	KindTransactionUpdate = "transaction_update"
	KindAlert             = "alert"
	KindStationStatus     = "station_status"
	KindSystem            = "system"
)

// CloseNormal is the WebSocket close code for an intentional shutdown.
// Any other code schedules a reconnect.
const CloseNormal = 1000

// Frame wraps raw frame bytes with the local receive timestamp.
type Frame struct {
	Data       []byte    // Raw frame bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Source tells consumers whether a message came from the backend or the
// demo generator.
type Source string

const (
	SourceLive      Source = "live"
	SourceSynthetic Source = "synthetic"
)

// Message is one inbound feed message.
type Message struct {
	Kind       string          `json:"type"`
	Payload    json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
	SentAt     *time.Time      `json:"sent_at,omitempty"` // Backend timestamp, when present
	Source     Source          `json:"source"`
}

// wireMessage is the frame shape sent by the backend.
type wireMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// Ack is the reply sent back for every backend heartbeat.
type Ack struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// ConnectionState is the consumer-visible link state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// phase is the manager's internal state. Each phase owns a fixed set of
// timers and links; leaving a phase releases all of them.
type phase int

const (
	phaseIdle       phase = iota // may own: reconnect timer
	phaseConnecting              // owns: dial cancel, connect timeout
	phaseConnected               // owns: live link
	phaseFallback                // owns: generator ticker
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseConnecting:
		return "connecting"
	case phaseConnected:
		return "connected"
	case phaseFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

func (p phase) state() ConnectionState {
	switch p {
	case phaseConnecting:
		return StateConnecting
	case phaseConnected, phaseFallback:
		return StateConnected
	default:
		return StateDisconnected
	}
}

// Fallback reasons carried in the demo-mode system message and Status.
const (
	ReasonNoCredential          = "no_credential"
	ReasonPlaceholderCredential = "placeholder_credential"
	ReasonConnectTimeout        = "connect_timeout"
	ReasonConnectError          = "connect_error"
)

// Status is a point-in-time view of the manager.
type Status struct {
	State     ConnectionState `json:"state"`
	Synthetic bool            `json:"synthetic"` // true while the demo generator feeds the buffer
	Endpoint  string          `json:"endpoint,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Since     time.Time       `json:"since"`
}

// Live reports whether consumers have a usable feed (real or synthetic).
func (s Status) Live() bool {
	return s.State == StateConnected
}

// StatusEvent is published to subscribers on every transition.
type StatusEvent struct {
	Old Status
	New Status
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // Endpoint URL without the credential
	Token        string        // Sent as the TokenParam query parameter (empty = none)
	TokenParam   string        // Query parameter name (default "token")
	PingInterval time.Duration // Interval between keepalive pings
	PingTimeout  time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		TokenParam:   "token",
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// Config configures the Manager.
type Config struct {
	ConnectTimeout    time.Duration // Abandon a dial that has not opened by then
	ReconnectDelay    time.Duration // Delay before the single reconnect after an abnormal close
	FallbackInterval  time.Duration // Demo message period
	BufferSize        int           // Messages kept for consumers
	PlaceholderPrefix string        // Credentials with this prefix never touch the network
	Client            ClientConfig
}

// DefaultConfig returns the reference timings.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    2 * time.Second,
		ReconnectDelay:    5 * time.Second,
		FallbackInterval:  10 * time.Second,
		BufferSize:        50,
		PlaceholderPrefix: "demo_token_",
		Client:            DefaultClientConfig(),
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.FallbackInterval <= 0 {
		c.FallbackInterval = def.FallbackInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
	if c.PlaceholderPrefix == "" {
		c.PlaceholderPrefix = def.PlaceholderPrefix
	}
	if c.Client.TokenParam == "" {
		c.Client.TokenParam = def.Client.TokenParam
	}
	if c.Client.PingInterval <= 0 {
		c.Client.PingInterval = def.Client.PingInterval
	}
	if c.Client.PingTimeout <= 0 {
		c.Client.PingTimeout = def.Client.PingTimeout
	}
	if c.Client.WriteTimeout <= 0 {
		c.Client.WriteTimeout = def.Client.WriteTimeout
	}
	if c.Client.BufferSize <= 0 {
		c.Client.BufferSize = def.Client.BufferSize
	}
}
