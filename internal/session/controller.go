package session

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"diary/internal/gradebook"
	"diary/internal/logger"
	"diary/internal/metrics"
	"diary/internal/model"
	"diary/internal/schoolapi"
	"diary/internal/validate"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrBusy      = errors.New("another request is in progress")
	ErrWrongStep = errors.New("not allowed at this step")
	ErrStale     = errors.New("session changed while the request was in flight")
)

// UnavailableMessage is shown when a school service cannot be reached.
const UnavailableMessage = "Service is unavailable, please try again later"

// CodeSentMessage replaces the service notice unless code echo is on,
// since services put the code into their message.
const CodeSentMessage = "Code sent"

const lockStripes = 64

// Auth is the part of the school API the wizard talks to.
type Auth interface {
	SendCode(ctx context.Context, phone string, role model.Role) (schoolapi.CodeResult, error)
	VerifyCode(ctx context.Context, req schoolapi.VerifyRequest) (model.User, error)
	LoginTeacher(ctx context.Context, username, password string) (model.User, error)
}

// GradesLoader loads the grades of a student.
type GradesLoader interface {
	Load(ctx context.Context, studentID int) (gradebook.Book, error)
}

// Options tunes a Controller.
type Options struct {
	// EchoCode keeps the delivered one-time code in the state. Development only.
	EchoCode bool
	// Timeout bounds every call to the school services. Zero means no bound.
	Timeout time.Duration
}

// Controller drives the login wizard and the grades of every session.
// State changes happen under a per-session lock that is never held during a network call.
type Controller struct {
	store  Store
	auth   Auth
	grades GradesLoader
	events Publisher
	log    logger.Logger
	opts   Options
	now    func() time.Time

	locks [lockStripes]sync.Mutex
}

// NewController wires a controller. events may be nil.
func NewController(store Store, auth Auth, grades GradesLoader, events Publisher, log logger.Logger, opts Options) *Controller {
	return &Controller{
		store:  store,
		auth:   auth,
		grades: grades,
		events: events,
		log:    log,
		opts:   opts,
		now:    time.Now,
	}
}

// Start creates a session at role selection.
func (c *Controller) Start(ctx context.Context) (State, error) {
	now := c.now().UTC()
	st := State{
		ID:        uuid.NewString(),
		Step:      StepRole,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.Put(ctx, st); err != nil {
		return State{}, err
	}
	return st.Snapshot(), nil
}

// Snapshot returns a copy of the session state.
func (c *Controller) Snapshot(ctx context.Context, id string) (State, error) {
	st, err := c.store.Get(ctx, id)
	if err != nil {
		return State{}, err
	}
	return st.Snapshot(), nil
}

// SelectRole picks the login role and moves to the phone or credentials step.
func (c *Controller) SelectRole(ctx context.Context, id, role string) (State, error) {
	form := roleForm{Role: strings.TrimSpace(role)}
	if err := validate.Struct(form); err != nil {
		return State{}, err
	}
	r, _ := model.ParseRole(form.Role)
	return c.mutate(ctx, id, func(s *State) error {
		if s.Step != StepRole {
			return ErrWrongStep
		}
		s.Role = r
		s.Step = StepCredentials
		if r.UsesPhoneLogin() {
			s.Step = StepPhone
		}
		s.navigate()
		return nil
	})
}

// Back returns to role selection from any step before authentication.
// A request still in flight is abandoned.
func (c *Controller) Back(ctx context.Context, id string) (State, error) {
	return c.mutate(ctx, id, func(s *State) error {
		if s.Step == StepAuthenticated {
			return ErrWrongStep
		}
		s.Step = StepRole
		s.Role = ""
		s.Phone = ""
		s.DeliveredCode = ""
		s.navigate()
		return nil
	})
}

// ChangePhone goes back from the code step to the phone step.
func (c *Controller) ChangePhone(ctx context.Context, id string) (State, error) {
	return c.mutate(ctx, id, func(s *State) error {
		if s.Step != StepCode {
			return ErrWrongStep
		}
		s.Step = StepPhone
		s.DeliveredCode = ""
		s.navigate()
		return nil
	})
}

// RequestCode asks for a one-time code to be sent to phone.
func (c *Controller) RequestCode(ctx context.Context, id, phone string) (State, error) {
	form := phoneForm{Phone: strings.TrimSpace(phone)}
	if err := validate.Struct(form); err != nil {
		return State{}, err
	}
	st, gen, err := c.begin(ctx, id, OpRequestCode, StepPhone)
	if err != nil {
		return st, err
	}

	callCtx, cancel := c.callContext(ctx)
	res, callErr := c.auth.SendCode(callCtx, form.Phone, st.Role)
	cancel()

	st, err = c.finish(ctx, id, OpRequestCode, gen, func(s *State) {
		if callErr != nil {
			s.Notice = noticeFor(callErr)
			return
		}
		s.Step = StepCode
		s.Phone = form.Phone
		s.DeliveredCode = ""
		msg := CodeSentMessage
		if c.opts.EchoCode {
			s.DeliveredCode = res.Code
			if res.Message != "" {
				msg = res.Message
			}
		}
		s.Notice = &Notice{Level: NoticeInfo, Message: msg}
	})
	if err != nil {
		return st, err
	}
	if callErr != nil {
		c.log.Warn("send code failed", callErr, map[string]interface{}{"session": id, "role": st.Role})
		return st, callErr
	}
	c.publish(ctx, Event{Type: EventCodeRequested, SessionID: id, Role: st.Role})
	return st, nil
}

// SubmitCode checks the one-time code. A student's grades are loaded right after
// authentication; a failed load is only logged.
func (c *Controller) SubmitCode(ctx context.Context, id, code string) (State, error) {
	form := codeForm{Code: strings.TrimSpace(code)}
	if err := validate.Struct(form); err != nil {
		return State{}, err
	}
	st, gen, err := c.begin(ctx, id, OpSubmitCode, StepCode)
	if err != nil {
		return st, err
	}

	callCtx, cancel := c.callContext(ctx)
	usr, callErr := c.auth.VerifyCode(callCtx, schoolapi.VerifyRequest{
		Phone: st.Phone,
		Code:  form.Code,
		Role:  st.Role,
	})
	cancel()

	st, err = c.finish(ctx, id, OpSubmitCode, gen, func(s *State) {
		if callErr != nil {
			s.Notice = noticeFor(callErr)
			return
		}
		s.authenticate(usr)
	})
	if err != nil {
		return st, err
	}
	if callErr != nil {
		c.log.Warn("verify code failed", callErr, map[string]interface{}{"session": id, "role": st.Role})
		return st, callErr
	}
	c.authenticated(ctx, st)

	if !usr.IsStudent() {
		return st, nil
	}
	loaded, err := c.loadGrades(ctx, id, usr.ID)
	if err != nil {
		// the session moved on before the grades could load; the login itself stands
		c.log.Warn("grades load skipped", err, map[string]interface{}{"session": id, "student": usr.ID})
		return st, nil
	}
	return loaded, nil
}

// Login signs a teacher in with a username and password.
func (c *Controller) Login(ctx context.Context, id, username, password string) (State, error) {
	form := credentialsForm{Username: strings.TrimSpace(username), Password: password}
	if err := validate.Struct(form); err != nil {
		return State{}, err
	}
	st, gen, err := c.begin(ctx, id, OpLogin, StepCredentials)
	if err != nil {
		return st, err
	}

	callCtx, cancel := c.callContext(ctx)
	usr, callErr := c.auth.LoginTeacher(callCtx, form.Username, form.Password)
	cancel()

	st, err = c.finish(ctx, id, OpLogin, gen, func(s *State) {
		if callErr != nil {
			s.Notice = noticeFor(callErr)
			return
		}
		s.authenticate(usr)
	})
	if err != nil {
		return st, err
	}
	if callErr != nil {
		c.log.Warn("teacher login failed", callErr, map[string]interface{}{"session": id})
		return st, callErr
	}
	c.authenticated(ctx, st)
	return st, nil
}

// ReloadGrades loads the signed in student's grades again.
func (c *Controller) ReloadGrades(ctx context.Context, id string) (State, error) {
	st, err := c.Snapshot(ctx, id)
	if err != nil {
		return State{}, err
	}
	if !st.Authenticated() || !st.User.IsStudent() {
		return st, ErrWrongStep
	}
	return c.loadGrades(ctx, id, st.User.ID)
}

// Logout forgets the user and the grades and returns to role selection.
func (c *Controller) Logout(ctx context.Context, id string) (State, error) {
	var prev State
	st, err := c.mutate(ctx, id, func(s *State) error {
		prev = s.Snapshot()
		s.reset()
		return nil
	})
	if err != nil {
		return st, err
	}
	if prev.User != nil {
		c.log.Info("logout", *prev.User, map[string]interface{}{"session": id})
		c.publish(ctx, Event{Type: EventLogout, SessionID: id, Role: prev.User.Role(), UserID: prev.User.ID})
	}
	return st, nil
}

// loadGrades replaces the book on success and keeps the previous one on failure.
// Failures are logged and not returned.
func (c *Controller) loadGrades(ctx context.Context, id string, studentID int) (State, error) {
	st, gen, err := c.begin(ctx, id, OpLoadGrades, StepAuthenticated)
	if err != nil {
		return st, err
	}

	callCtx, cancel := c.callContext(ctx)
	book, loadErr := c.grades.Load(callCtx, studentID)
	cancel()

	st, err = c.finish(ctx, id, OpLoadGrades, gen, func(s *State) {
		if loadErr == nil {
			s.Book = book
		}
	})
	if err != nil {
		return st, err
	}
	if loadErr != nil {
		c.log.Error("grades load failed", loadErr, map[string]interface{}{"session": id, "student": studentID})
		return st, nil
	}
	c.publish(ctx, Event{Type: EventGradesLoaded, SessionID: id, Role: model.RoleStudent, UserID: studentID, Subjects: len(book.Subjects)})
	return st, nil
}

func (c *Controller) authenticated(ctx context.Context, st State) {
	role := st.User.Role()
	metrics.SessionAuthenticated(string(role))
	c.log.Info("signed in", *st.User, map[string]interface{}{"session": st.ID, "role": role})
	c.publish(ctx, Event{Type: EventAuthenticated, SessionID: st.ID, Role: role, UserID: st.User.ID})
}

func (s *State) authenticate(usr model.User) {
	s.Step = StepAuthenticated
	s.User = &usr
	s.DeliveredCode = ""
	s.Book = gradebook.Book{}
	s.Notice = nil
}

// navigate invalidates whatever request is in flight.
func (s *State) navigate() {
	s.Generation++
	s.Busy = ""
	s.BusySince = time.Time{}
	s.Notice = nil
}

// begin marks op as in flight and returns the generation its result must match.
func (c *Controller) begin(ctx context.Context, id, op string, step Step) (State, uint64, error) {
	var gen uint64
	st, err := c.mutate(ctx, id, func(s *State) error {
		if s.Busy != "" && !c.busyExpired(*s) {
			return ErrBusy
		}
		if s.Step != step {
			return ErrWrongStep
		}
		s.Generation++
		gen = s.Generation
		s.Busy = op
		s.BusySince = c.now().UTC()
		s.Notice = nil
		return nil
	})
	return st, gen, err
}

// finish applies the result of op unless the session moved on since begin.
func (c *Controller) finish(ctx context.Context, id, op string, gen uint64, apply func(*State)) (State, error) {
	return c.mutate(ctx, id, func(s *State) error {
		if s.Generation != gen || s.Busy != op {
			metrics.StaleResult(op)
			c.log.Debug("dropping stale result", map[string]interface{}{"session": id, "op": op})
			return ErrStale
		}
		s.Busy = ""
		s.BusySince = time.Time{}
		apply(s)
		return nil
	})
}

// mutate runs fn on the stored state under the session lock and saves it
// when fn succeeds. It returns a snapshot of the resulting state.
func (c *Controller) mutate(ctx context.Context, id string, fn func(*State) error) (State, error) {
	unlock := c.lock(id)
	defer unlock()

	st, err := c.store.Get(ctx, id)
	if err != nil {
		return State{}, err
	}
	if err := fn(&st); err != nil {
		orig, _ := c.store.Get(ctx, id)
		return orig, err
	}
	st.UpdatedAt = c.now().UTC()
	if err := c.store.Put(ctx, st); err != nil {
		return State{}, err
	}
	return st.Snapshot(), nil
}

func (c *Controller) lock(id string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	m := &c.locks[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout > 0 {
		return context.WithTimeout(ctx, c.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// busyExpired lets a session recover from a request whose process died
// before it could clear the flag.
func (c *Controller) busyExpired(s State) bool {
	if c.opts.Timeout <= 0 || s.BusySince.IsZero() {
		return false
	}
	return c.now().Sub(s.BusySince) > 2*c.opts.Timeout
}

func noticeFor(err error) *Notice {
	var apiErr *schoolapi.Error
	if errors.As(err, &apiErr) {
		return &Notice{Level: NoticeError, Message: apiErr.Message}
	}
	return &Notice{Level: NoticeError, Message: UnavailableMessage}
}
