package monitor

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/csms-feed/internal/feed"
)

// Push event names sent to /ws consumers.
const (
	EventSnapshot = "snapshot"
	EventStatus   = "status"
	EventMessage  = "message"
)

// PushEvent is one frame sent to a /ws consumer.
type PushEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Snapshot is the first event on every /ws connection.
type Snapshot struct {
	Status   feed.Status    `json:"status"`
	Live     bool           `json:"live"`
	Messages []feed.Message `json:"messages"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Debug("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("client", uuid.NewString())
	s.clients.Add(1)
	defer s.clients.Add(-1)

	// Subscribe before the snapshot so nothing falls in between.
	sub := s.feed.Subscribe(feed.TopicStatus, feed.TopicMessage)
	defer s.feed.Unsubscribe(sub)

	logger.Info("ws client connected", "remote", r.RemoteAddr)
	defer logger.Info("ws client disconnected")

	// Consumers never send; reading only detects their close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	status := s.feed.Status()
	msgs := s.feed.Recent(s.cfg.RecentLimit)
	if msgs == nil {
		msgs = []feed.Message{}
	}
	snapshot := PushEvent{Event: EventSnapshot, Data: Snapshot{Status: status, Live: status.Live(), Messages: msgs}}
	if err := s.push(conn, snapshot); err != nil {
		logger.Debug("ws write failed", "error", err)
		return
	}

	for {
		select {
		case v, ok := <-sub:
			if !ok {
				// Manager closed.
				s.closeWS(conn, websocket.CloseGoingAway, "feed stopped")
				return
			}
			ev, ok := toEvent(v)
			if !ok {
				continue
			}
			if err := s.push(conn, ev); err != nil {
				logger.Debug("ws write failed", "error", err)
				return
			}

		case <-gone:
			return

		case <-s.done:
			s.closeWS(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func toEvent(v any) (PushEvent, bool) {
	switch ev := v.(type) {
	case feed.StatusEvent:
		return PushEvent{Event: EventStatus, Data: ev.New}, true
	case feed.Message:
		return PushEvent{Event: EventMessage, Data: ev}, true
	default:
		return PushEvent{}, false
	}
}

func (s *Server) push(conn *websocket.Conn, ev PushEvent) error {
	conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return conn.WriteJSON(ev)
}

func (s *Server) closeWS(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
}
