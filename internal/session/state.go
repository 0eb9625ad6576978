package session

import (
	"time"

	"diary/internal/gradebook"
	"diary/internal/model"
)

// Step is a position in the login wizard.
type Step string

const (
	StepRole          Step = "role"
	StepPhone         Step = "phone"
	StepCode          Step = "code"
	StepCredentials   Step = "credentials"
	StepAuthenticated Step = "authenticated"
)

// Operations that call the school services. One may be in flight per session.
const (
	OpRequestCode = "request_code"
	OpSubmitCode  = "submit_code"
	OpLogin       = "login"
	OpLoadGrades  = "load_grades"
)

// Notice levels.
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Notice is a transient message for the user. It is cleared by the next operation.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// State is everything the diary knows about one browser session.
// It is only changed through Controller methods.
type State struct {
	ID            string         `json:"id"`
	Step          Step           `json:"step"`
	Role          model.Role     `json:"role,omitempty"`
	Phone         string         `json:"phone,omitempty"`
	DeliveredCode string         `json:"delivered_code,omitempty"`
	User          *model.User    `json:"user,omitempty"`
	Book          gradebook.Book `json:"book"`
	Busy          string         `json:"busy,omitempty"`
	BusySince     time.Time      `json:"busy_since"`
	Generation    uint64         `json:"generation"`
	Notice        *Notice        `json:"notice,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Snapshot returns a deep copy that shares nothing with s.
func (s State) Snapshot() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Notice != nil {
		n := *s.Notice
		out.Notice = &n
	}
	out.Book = s.Book.Clone()
	return out
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool {
	return s.Step == StepAuthenticated && s.User != nil
}

// reset drops everything but the identity of the session.
func (s *State) reset() {
	*s = State{
		ID:         s.ID,
		Step:       StepRole,
		Generation: s.Generation + 1,
		CreatedAt:  s.CreatedAt,
	}
}
