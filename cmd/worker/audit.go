package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"diary/internal/logger"
	"diary/internal/metrics"
	"diary/internal/queue"
	"diary/internal/session"
)

// auditor writes one JSON line per session event.
type auditor struct {
	mu  sync.Mutex
	enc *json.Encoder
	log logger.Logger
}

func newAuditor(w io.Writer, lg logger.Logger) *auditor {
	return &auditor{enc: json.NewEncoder(w), log: lg}
}

func (a *auditor) handle(msg queue.Message) error {
	ev, err := session.DecodeEvent(msg)
	if err != nil {
		return fmt.Errorf("decode %s event: %w", msg.Type, err)
	}
	switch ev.Type {
	case session.EventCodeRequested, session.EventAuthenticated, session.EventLogout, session.EventGradesLoaded:
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	metrics.SessionEvent(ev.Type)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.enc.Encode(ev); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	a.log.Debug("audited", map[string]interface{}{"type": ev.Type, "session": ev.SessionID})
	return nil
}
