package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var errMissingType = errors.New("frame has no type")

// decodeFrame parses one backend frame. The backend timestamp is kept when
// it parses; ReceivedAt is always the local receive time.
func decodeFrame(f Frame) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(f.Data, &w); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	if w.Type == "" {
		return Message{}, errMissingType
	}

	msg := Message{
		Kind:       w.Type,
		Payload:    w.Data,
		ReceivedAt: f.ReceivedAt,
		Source:     SourceLive,
	}
	if w.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, w.Timestamp); err == nil {
			msg.SentAt = &ts
		}
	}
	return msg, nil
}

// dispatch runs the built-in reaction for msg.Kind and then any handlers
// registered with WithHandler.
func (m *Manager) dispatch(msg Message) {
	switch msg.Kind {
	case KindHeartbeat:
		// Only the backend expects an ack.
		if msg.Source == SourceLive {
			m.send(Ack{
				Type:      KindHeartbeatAck,
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			})
		}

	case KindTransactionUpdate:
		m.logger.Debug("transaction update", "source", msg.Source, "data", string(msg.Payload))

	case KindAlert:
		m.logger.Info("new alert", "source", msg.Source, "data", string(msg.Payload))

	case KindStationStatus:
		m.logger.Debug("station status update", "source", msg.Source, "data", string(msg.Payload))

	case KindSystem:
		m.logger.Info("system message", "source", msg.Source, "data", string(msg.Payload))

	default:
		m.logger.Debug("unknown message type", "type", msg.Kind)
	}

	for _, fn := range m.handlers[msg.Kind] {
		fn(msg)
	}
}
