package monitor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rickgao/csms-feed/internal/feed"
	"github.com/rickgao/csms-feed/internal/version"
)

type healthResponse struct {
	Status  string       `json:"status"`
	Version version.Info `json:"version"`
}

type statusResponse struct {
	feed.ManagerStats
	Live    bool  `json:"live"`
	Clients int64 `json:"ws_clients"`
}

type messagesResponse struct {
	Count    int            `json:"count"`
	Messages []feed.Message `json:"messages"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type acceptedResponse struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: version.Get()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.feed.Stats()
	s.writeJSON(w, http.StatusOK, statusResponse{
		ManagerStats: stats,
		Live:         stats.Status.Live(),
		Clients:      s.clients.Load(),
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.RecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	msgs := s.feed.Recent(limit)
	if msgs == nil {
		msgs = []feed.Message{}
	}
	s.writeJSON(w, http.StatusOK, messagesResponse{Count: len(msgs), Messages: msgs})
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "reconnect rate limit exceeded"})
		return
	}
	s.logger.Info("reconnect requested", "remote", r.RemoteAddr)
	s.feed.Reconnect()
	s.writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: true})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxSendBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "body too large"})
			return
		}
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "read body"})
		return
	}
	if !json.Valid(body) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be valid JSON"})
		return
	}

	// Demo mode has no link; the manager would drop the send.
	if st := s.feed.Status(); st.State != feed.StateConnected || st.Synthetic {
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: "feed is not live"})
		return
	}

	s.feed.Send(json.RawMessage(body))
	s.writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: true})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
