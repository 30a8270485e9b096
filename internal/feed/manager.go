package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cskr/pubsub"
)

// Subscriber topics.
const (
	TopicStatus  = "status"  // StatusEvent
	TopicMessage = "message" // Message
)

// Subscription delivers StatusEvent and Message values published by the manager.
type Subscription chan any

// HandlerFunc reacts to one message kind. Handlers run on the manager's
// event loop and must not block.
type HandlerFunc func(Message)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithGenerator replaces the demo-mode generator.
func WithGenerator(g Generator) Option {
	return func(m *Manager) {
		m.generator = g
	}
}

// WithDialer replaces the function used to open live links.
func WithDialer(d DialFunc) Option {
	return func(m *Manager) {
		m.dial = d
	}
}

// WithHandler registers an extra handler for a message kind.
func WithHandler(kind string, fn HandlerFunc) Option {
	return func(m *Manager) {
		m.handlers[kind] = append(m.handlers[kind], fn)
	}
}

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdReconnect
	cmdSend
)

type command struct {
	kind       commandKind
	endpoint   string
	credential string
	payload    any
}

type dialResult struct {
	attempt uint64
	link    Client
	err     error
}

// ManagerStats provides statistics about the manager.
type ManagerStats struct {
	Status   Status    `json:"status"`
	Buffer   RingStats `json:"buffer"`
	Attempts uint64    `json:"attempts"`
}

// Manager keeps one best-effort feed to a CSMS endpoint. It buffers the
// most recent messages and falls back to a synthetic feed when the
// endpoint is unreachable or the credential is a placeholder.
//
// All state transitions happen on a single event-loop goroutine; the
// exported methods only enqueue work and never block on the network.
type Manager struct {
	cfg       Config
	logger    *slog.Logger
	dial      DialFunc
	generator Generator
	handlers  map[string][]HandlerFunc
	buffer    *Ring[Message]

	busMu     sync.Mutex
	bus       *pubsub.PubSub
	busClosed bool

	cmds      chan command
	dialed    chan dialResult
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	statusMu sync.RWMutex
	status   Status
	attempts uint64

	// Owned by the event loop.
	phase      phase
	endpoint   string
	credential string
	attempt    uint64
	link       Client
	cancelDial context.CancelFunc
	timeout    *time.Timer  // phaseConnecting
	retry      *time.Timer  // phaseIdle
	ticker     *time.Ticker // phaseFallback
}

// New creates a Manager and starts its event loop. Call Connect to open
// the feed and Close to tear it down.
func New(cfg Config, opts ...Option) *Manager {
	cfg.applyDefaults()

	m := &Manager{
		cfg:      cfg,
		logger:   slog.Default(),
		dial:     Dial,
		handlers: make(map[string][]HandlerFunc),
		buffer:   NewRing[Message](cfg.BufferSize),
		bus:      pubsub.New(cfg.BufferSize),
		cmds:     make(chan command, 64),
		dialed:   make(chan dialResult),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		status: Status{
			State: StateDisconnected,
			Since: time.Now(),
		},
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.generator == nil {
		m.generator = NewRandomGenerator(uint64(time.Now().UnixNano()))
	}

	go m.run()

	return m
}

// Connect opens the feed to endpoint. An empty or placeholder credential
// skips the network and starts demo mode.
func (m *Manager) Connect(endpoint, credential string) {
	m.post(command{kind: cmdConnect, endpoint: endpoint, credential: credential})
}

// Reconnect drops whatever feed is active and runs the connect sequence
// again with the last endpoint and credential.
func (m *Manager) Reconnect() {
	m.post(command{kind: cmdReconnect})
}

// Send writes v as JSON over the live link. It is a logged no-op while the
// feed is not live or is synthetic; nothing is queued or retried.
func (m *Manager) Send(v any) {
	m.post(command{kind: cmdSend, payload: v})
}

// Close stops the event loop, cancels all timers and closes the live link.
// It is safe to call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
		<-m.stopped

		m.busMu.Lock()
		m.busClosed = true
		m.bus.Shutdown()
		m.busMu.Unlock()
	})
	return nil
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return m.status
}

// IsLive reports whether consumers currently have a usable feed.
func (m *Manager) IsLive() bool {
	return m.Status().Live()
}

// Messages returns the buffered messages, oldest first.
func (m *Manager) Messages() []Message {
	return m.buffer.Snapshot()
}

// Recent returns the newest n buffered messages, oldest first.
func (m *Manager) Recent(n int) []Message {
	return m.buffer.Last(n)
}

// Stats returns current manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	return ManagerStats{
		Status:   m.status,
		Buffer:   m.buffer.Stats(),
		Attempts: m.attempts,
	}
}

// Subscribe returns a channel receiving StatusEvent and Message values for
// the given topics (all topics when none are given). Slow subscribers miss
// values instead of stalling the feed.
func (m *Manager) Subscribe(topics ...string) Subscription {
	if len(topics) == 0 {
		topics = []string{TopicStatus, TopicMessage}
	}

	m.busMu.Lock()
	defer m.busMu.Unlock()

	if m.busClosed {
		ch := make(Subscription)
		close(ch)
		return ch
	}
	return m.bus.Sub(topics...)
}

// Unsubscribe detaches a subscription and closes its channel.
func (m *Manager) Unsubscribe(sub Subscription) {
	m.busMu.Lock()
	defer m.busMu.Unlock()

	if m.busClosed {
		return
	}
	m.bus.Unsub(sub)
}

func (m *Manager) post(c command) {
	select {
	case m.cmds <- c:
	case <-m.done:
	}
}

func (m *Manager) publish(v any, topic string) {
	m.bus.TryPub(v, topic)
}

// run is the event loop. Every field below "Owned by the event loop" is
// touched only from here.
func (m *Manager) run() {
	defer close(m.stopped)

	for {
		select {
		case <-m.done:
			m.leave()
			m.transition(phaseIdle, "")
			m.logger.Debug("feed manager stopped")
			return

		case c := <-m.cmds:
			m.handleCommand(c)

		case res := <-m.dialed:
			m.handleDial(res)

		case <-timerC(m.timeout):
			m.timeout = nil
			m.handleConnectTimeout()

		case <-timerC(m.retry):
			m.retry = nil
			m.logger.Info("attempting to reconnect feed", "endpoint", m.endpoint)
			m.connect()

		case now := <-tickerC(m.ticker):
			m.receive(m.generator.Next(now))

		case f := <-m.linkFrames():
			m.handleFrame(f)

		case err := <-m.linkErrors():
			m.handleLinkError(err)
		}
	}
}

func (m *Manager) handleCommand(c command) {
	switch c.kind {
	case cmdConnect:
		m.endpoint = c.endpoint
		m.credential = c.credential
		m.connect()
	case cmdReconnect:
		m.logger.Info("manual reconnect requested", "phase", m.phase)
		m.connect()
	case cmdSend:
		m.send(c.payload)
	}
}

// connect runs the connect sequence from any phase.
func (m *Manager) connect() {
	m.leave()

	switch {
	case m.credential == "":
		m.logger.Info("no credential available, starting demo mode")
		m.enterFallback(ReasonNoCredential)
		return
	case strings.HasPrefix(m.credential, m.cfg.PlaceholderPrefix):
		m.logger.Info("placeholder credential detected, starting demo mode")
		m.enterFallback(ReasonPlaceholderCredential)
		return
	}

	m.attempt++
	attempt := m.attempt
	m.statusMu.Lock()
	m.attempts++
	m.statusMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.timeout = time.NewTimer(m.cfg.ConnectTimeout)
	m.transition(phaseConnecting, "")

	cfg := m.cfg.Client
	cfg.URL = m.endpoint
	cfg.Token = m.credential
	logger := m.logger.With("attempt", attempt)
	dial := m.dial

	go func() {
		link, err := dial(ctx, cfg, logger)
		select {
		case m.dialed <- dialResult{attempt: attempt, link: link, err: err}:
		case <-m.done:
			if link != nil {
				link.Close()
			}
		}
	}()

	m.logger.Debug("connecting to feed", "endpoint", m.endpoint, "attempt", attempt)
}

func (m *Manager) handleDial(res dialResult) {
	if m.phase != phaseConnecting || res.attempt != m.attempt {
		// Abandoned attempt: timed out, reconnected over, or torn down.
		if res.link != nil {
			res.link.Close()
		}
		return
	}

	m.leave()

	if res.err != nil {
		m.logger.Warn("feed connection error, falling back to demo mode",
			"endpoint", m.endpoint,
			"error", res.err,
		)
		m.enterFallback(ReasonConnectError)
		return
	}

	m.link = res.link
	m.transition(phaseConnected, "")
	m.logger.Info("feed connected", "endpoint", m.endpoint)
}

func (m *Manager) handleConnectTimeout() {
	if m.phase != phaseConnecting {
		return
	}
	m.logger.Warn("connection timeout, falling back to demo mode",
		"endpoint", m.endpoint,
		"timeout", m.cfg.ConnectTimeout,
	)
	m.leave()
	m.enterFallback(ReasonConnectTimeout)
}

func (m *Manager) handleFrame(f Frame) {
	msg, err := decodeFrame(f)
	if err != nil {
		m.logger.Warn("dropping malformed frame", "error", err, "size", len(f.Data))
		return
	}
	m.receive(msg)
}

func (m *Manager) handleLinkError(err error) {
	// Frames read before the error still count.
	m.drainLink()

	code := CloseCode(err)
	m.logger.Info("feed connection closed", "code", code, "error", err)

	m.leave()
	m.transition(phaseIdle, "")

	if code != CloseNormal {
		m.retry = time.NewTimer(m.cfg.ReconnectDelay)
		m.logger.Info("reconnect scheduled", "delay", m.cfg.ReconnectDelay)
	}
}

func (m *Manager) drainLink() {
	if m.link == nil {
		return
	}
	for {
		select {
		case f := <-m.link.Messages():
			m.handleFrame(f)
		default:
			return
		}
	}
}

func (m *Manager) enterFallback(reason string) {
	m.ticker = time.NewTicker(m.cfg.FallbackInterval)
	m.transition(phaseFallback, reason)
	m.receive(demoNotice(reason, time.Now()))
}

// leave releases everything the current phase owns.
func (m *Manager) leave() {
	if m.cancelDial != nil {
		m.cancelDial()
		m.cancelDial = nil
	}
	if m.timeout != nil {
		m.timeout.Stop()
		m.timeout = nil
	}
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.ticker != nil {
		m.ticker.Stop()
		m.ticker = nil
	}
	if m.link != nil {
		link := m.link
		m.link = nil
		if err := link.Close(); err != nil {
			m.logger.Debug("error closing feed link", "error", err)
		}
	}
}

func (m *Manager) transition(p phase, reason string) {
	m.phase = p
	next := Status{
		State:     p.state(),
		Synthetic: p == phaseFallback,
		Endpoint:  m.endpoint,
		Reason:    reason,
		Since:     time.Now(),
	}

	m.statusMu.Lock()
	old := m.status
	m.status = next
	m.statusMu.Unlock()

	m.logger.Debug("feed phase changed", "phase", p, "state", next.State, "reason", reason)
	m.publish(StatusEvent{Old: old, New: next}, TopicStatus)
}

// receive appends a message, notifies subscribers and runs its handlers.
func (m *Manager) receive(msg Message) {
	m.buffer.Push(msg)
	m.publish(msg, TopicMessage)
	m.dispatch(msg)
}

func (m *Manager) send(v any) {
	if m.phase != phaseConnected || m.link == nil {
		m.logger.Warn("feed is not connected, cannot send message", "phase", m.phase)
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("failed to encode outbound message", "error", err)
		return
	}

	if err := m.link.Send(data); err != nil {
		m.logger.Warn("failed to send message", "error", err)
	}
}

func (m *Manager) linkFrames() <-chan Frame {
	if m.link == nil {
		return nil
	}
	return m.link.Messages()
}

func (m *Manager) linkErrors() <-chan error {
	if m.link == nil {
		return nil
	}
	return m.link.Errors()
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
