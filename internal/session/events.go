package session

import (
	"context"
	"encoding/json"
	"time"

	"diary/internal/model"
	"diary/internal/queue"
)

// Event types published by the controller.
const (
	EventCodeRequested = "session.code_requested"
	EventAuthenticated = "session.authenticated"
	EventLogout        = "session.logout"
	EventGradesLoaded  = "grades.loaded"
)

// Event is the audit record of a session transition.
type Event struct {
	Type      string     `json:"type"`
	SessionID string     `json:"session_id"`
	Role      model.Role `json:"role,omitempty"`
	UserID    int        `json:"user_id,omitempty"`
	Subjects  int        `json:"subjects,omitempty"`
	At        time.Time  `json:"at"`
}

// Publisher delivers events; queue.Queue implements it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// DecodeEvent reads an event from a queue message.
func DecodeEvent(msg queue.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		ev.Type = msg.Type
	}
	return ev, nil
}

// publish is best effort: failures are logged and never reach the caller.
func (c *Controller) publish(ctx context.Context, ev Event) {
	if c.events == nil {
		return
	}
	ev.At = c.now().UTC()
	body, err := json.Marshal(ev)
	if err != nil {
		c.log.Warn("encode event", err)
		return
	}
	if err := c.events.Publish(ctx, queue.Message{Type: ev.Type, Body: body}); err != nil {
		c.log.Warn("publish event", err, map[string]interface{}{"type": ev.Type, "session": ev.SessionID})
	}
}
