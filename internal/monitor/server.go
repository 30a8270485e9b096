// Package monitor exposes a feed manager to UI consumers over HTTP and a
// push WebSocket.
//
// Endpoints:
//
//	GET  /health              liveness and build info
//	GET  /api/feed/status     status, buffer stats, live flag
//	GET  /api/feed/messages   newest buffered messages (?limit=N)
//	POST /api/feed/reconnect  manual reconnect, rate limited
//	POST /api/feed/send       forward a JSON body over the live link
//	GET  /ws                  snapshot, then status changes and messages
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/csms-feed/internal/feed"
)

// Feed is the part of feed.Manager the monitor needs.
type Feed interface {
	Status() feed.Status
	Stats() feed.ManagerStats
	Recent(n int) []feed.Message
	Reconnect()
	Send(v any)
	Subscribe(topics ...string) feed.Subscription
	Unsubscribe(sub feed.Subscription)
}

// Config configures the monitor server.
type Config struct {
	Addr           string
	RecentLimit    int     // Default ?limit for /api/feed/messages and the /ws snapshot
	ReconnectRate  float64 // Manual reconnects per second
	ReconnectBurst int
	MaxSendBytes   int64 // Body limit for /api/feed/send
	WriteTimeout   time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		RecentLimit:    20,
		ReconnectRate:  0.2,
		ReconnectBurst: 1,
		MaxSendBytes:   64 << 10,
		WriteTimeout:   5 * time.Second,
	}
}

// Server serves the monitor endpoints.
type Server struct {
	cfg      Config
	feed     Feed
	logger   *slog.Logger
	limiter  *rate.Limiter
	upgrader websocket.Upgrader
	router   *mux.Router

	clients atomic.Int64
	done    chan struct{}
	stopped atomic.Bool
}

// NewServer creates a monitor for f. Zero config fields take defaults.
func NewServer(cfg Config, f Feed, logger *slog.Logger) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}
	if cfg.ReconnectRate <= 0 {
		cfg.ReconnectRate = def.ReconnectRate
	}
	if cfg.ReconnectBurst <= 0 {
		cfg.ReconnectBurst = def.ReconnectBurst
	}
	if cfg.MaxSendBytes <= 0 {
		cfg.MaxSendBytes = def.MaxSendBytes
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		feed:    f,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.ReconnectRate), cfg.ReconnectBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The admin UI is served from a different origin in development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/feed/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/feed/messages", s.handleMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/feed/reconnect", s.handleReconnect).Methods(http.MethodPost)
	r.HandleFunc("/api/feed/send", s.handleSend).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Clients returns the number of connected /ws consumers.
func (s *Server) Clients() int64 {
	return s.clients.Load()
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	defer s.stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("monitor listening", "addr", s.cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		// Hijacked /ws connections are not tracked by Shutdown.
		s.stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// stop releases /ws handlers.
func (s *Server) stop() {
	if s.stopped.CompareAndSwap(false, true) {
		close(s.done)
	}
}
