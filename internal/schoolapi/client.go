package schoolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"diary/internal/metrics"
	"diary/internal/model"
	"diary/internal/validate"
)

// Auth service actions.
const (
	ActionSendCode      = "send_sms"
	ActionVerifyCode    = "verify_sms"
	ActionLoginTeacher  = "login_teacher"
	ActionGrades        = "grades"
	ActionAddGrade      = "add_grade"
	ActionTeachers      = "teachers"
	ActionCreateTeacher = "create_teacher"
)

const maxBodyBytes = 1 << 20

// ErrUnavailable wraps transport and decoding failures: the service could not be
// reached or answered with something that is not the expected JSON.
var ErrUnavailable = errors.New("school service unavailable")

// Error is a failure reported by a school service itself.
// Message is the service's own text and is meant to be shown as is.
type Error struct {
	Action  string
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// CodeResult is the answer to a one-time code request.
// Code is only filled by services that echo the code back.
type CodeResult struct {
	Code    string
	Message string
}

// VerifyRequest carries a one-time code check.
type VerifyRequest struct {
	Phone     string
	Code      string
	Role      model.Role
	FullName  string
	ClassName string
}

// GradesResult is a student's grades snapshot.
type GradesResult struct {
	Subjects    []model.Subject          `json:"subjects"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
}

// Options configures a Client.
type Options struct {
	AuthURL     string
	GradesURL   string
	DirectorURL string
	Timeout     time.Duration
	Demo        bool
}

// Client calls the school auth, grades and director services.
type Client struct {
	AuthURL     string
	GradesURL   string
	DirectorURL string
	HTTP        *http.Client
	Demo        bool

	demo *demoSchool
}

// New creates a client. A zero timeout means 15 seconds.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		AuthURL:     opts.AuthURL,
		GradesURL:   opts.GradesURL,
		DirectorURL: opts.DirectorURL,
		Demo:        opts.Demo,
		HTTP:        &http.Client{Timeout: timeout},
		demo:        newDemoSchool(),
	}
}

type authResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	User    *model.User `json:"user"`
	Error   string      `json:"error"`
}

func (r *authResponse) failure() (string, bool) { return r.Error, !r.Success }

type directorResponse struct {
	Success bool           `json:"success"`
	Teacher *model.Teacher `json:"teacher"`
	Error   string         `json:"error"`
}

func (r *directorResponse) failure() (string, bool) { return r.Error, !r.Success }

type gradeResponse struct {
	Success bool   `json:"success"`
	GradeID int    `json:"grade_id"`
	Error   string `json:"error"`
}

func (r *gradeResponse) failure() (string, bool) { return r.Error, !r.Success }

// failer is implemented by envelopes that carry a success flag.
type failer interface {
	failure() (msg string, failed bool)
}

// SendCode asks the auth service to deliver a one-time code to phone.
func (c *Client) SendCode(ctx context.Context, phone string, role model.Role) (CodeResult, error) {
	if c.Demo {
		return c.demo.sendCode(phone, role)
	}
	var out authResponse
	err := c.do(ctx, ActionSendCode, http.MethodPost, c.AuthURL, map[string]interface{}{
		"action": ActionSendCode,
		"phone":  phone,
		"role":   role,
	}, &out)
	if err != nil {
		return CodeResult{}, err
	}
	return CodeResult{Code: out.Code, Message: out.Message}, nil
}

// VerifyCode checks a one-time code and returns the signed in user.
func (c *Client) VerifyCode(ctx context.Context, req VerifyRequest) (model.User, error) {
	if c.Demo {
		return c.demo.verifyCode(req)
	}
	var out authResponse
	err := c.do(ctx, ActionVerifyCode, http.MethodPost, c.AuthURL, map[string]interface{}{
		"action":     ActionVerifyCode,
		"phone":      req.Phone,
		"code":       req.Code,
		"role":       req.Role,
		"full_name":  req.FullName,
		"class_name": req.ClassName,
	}, &out)
	if err != nil {
		return model.User{}, err
	}
	if out.User == nil {
		return model.User{}, fmt.Errorf("%w: %s: response has no user", ErrUnavailable, ActionVerifyCode)
	}
	return *out.User, nil
}

// LoginTeacher signs a teacher in with credentials.
func (c *Client) LoginTeacher(ctx context.Context, username, password string) (model.User, error) {
	if c.Demo {
		return c.demo.loginTeacher(username, password)
	}
	var out authResponse
	err := c.do(ctx, ActionLoginTeacher, http.MethodPost, c.AuthURL, map[string]interface{}{
		"action":   ActionLoginTeacher,
		"username": username,
		"password": password,
	}, &out)
	if err != nil {
		return model.User{}, err
	}
	if out.User == nil {
		return model.User{}, fmt.Errorf("%w: %s: response has no user", ErrUnavailable, ActionLoginTeacher)
	}
	usr := *out.User
	// the service does not send the username back
	if p, ok := usr.Profile.(model.TeacherProfile); ok && p.Username == "" {
		usr.Profile = model.TeacherProfile{Username: strings.TrimSpace(username)}
	}
	return usr, nil
}

// Grades fetches the subjects of a student and the school leaderboard.
func (c *Client) Grades(ctx context.Context, studentID int) (GradesResult, error) {
	if c.Demo {
		return c.demo.grades(studentID), nil
	}
	u, err := url.Parse(c.GradesURL)
	if err != nil {
		return GradesResult{}, fmt.Errorf("grades url: %w", err)
	}
	q := u.Query()
	q.Set("student_id", strconv.Itoa(studentID))
	u.RawQuery = q.Encode()

	var out GradesResult
	if err := c.do(ctx, ActionGrades, http.MethodGet, u.String(), nil, &out); err != nil {
		return GradesResult{}, err
	}
	return out, nil
}

// AddGrade records a grade and returns its id.
func (c *Client) AddGrade(ctx context.Context, g model.NewGrade) (int, error) {
	if err := validate.Struct(g); err != nil {
		return 0, err
	}
	if c.Demo {
		return c.demo.addGrade(g)
	}
	var out gradeResponse
	if err := c.do(ctx, ActionAddGrade, http.MethodPost, c.GradesURL, g, &out); err != nil {
		return 0, err
	}
	return out.GradeID, nil
}

// Teachers lists teacher accounts, newest first.
func (c *Client) Teachers(ctx context.Context) ([]model.Teacher, error) {
	if c.Demo {
		return c.demo.listTeachers(), nil
	}
	var out struct {
		Teachers []model.Teacher `json:"teachers"`
	}
	if err := c.do(ctx, ActionTeachers, http.MethodGet, c.DirectorURL, nil, &out); err != nil {
		return nil, err
	}
	return out.Teachers, nil
}

// CreateTeacher creates a teacher account.
func (c *Client) CreateTeacher(ctx context.Context, nt model.NewTeacher) (model.Teacher, error) {
	if err := validate.Struct(nt); err != nil {
		return model.Teacher{}, err
	}
	if c.Demo {
		return c.demo.createTeacher(nt)
	}
	payload := map[string]interface{}{
		"action":    ActionCreateTeacher,
		"username":  nt.Username,
		"password":  nt.Password,
		"full_name": nt.FullName,
	}
	if nt.AvatarEmoji != "" {
		payload["avatar_emoji"] = nt.AvatarEmoji
	}
	var out directorResponse
	if err := c.do(ctx, ActionCreateTeacher, http.MethodPost, c.DirectorURL, payload, &out); err != nil {
		return model.Teacher{}, err
	}
	if out.Teacher == nil {
		return model.Teacher{}, fmt.Errorf("%w: %s: response has no teacher", ErrUnavailable, ActionCreateTeacher)
	}
	return *out.Teacher, nil
}

// do sends one JSON request and decodes the answer into out.
func (c *Client) do(ctx context.Context, action, method, target string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		metrics.ObserveUpstream(action, metrics.OutcomeUnavailable, time.Since(start))
		return fmt.Errorf("%w: %s request failed: %v", ErrUnavailable, action, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveUpstream(action, metrics.OutcomeUnavailable, time.Since(start))
		return fmt.Errorf("%w: %s read response: %v", ErrUnavailable, action, err)
	}

	if resp.StatusCode >= 300 {
		metrics.ObserveUpstream(action, metrics.OutcomeRejected, time.Since(start))
		var e struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &Error{Action: action, Status: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		metrics.ObserveUpstream(action, metrics.OutcomeUnavailable, time.Since(start))
		return fmt.Errorf("%w: %s decode response: %v", ErrUnavailable, action, err)
	}
	if f, ok := out.(failer); ok {
		if msg, failed := f.failure(); failed {
			metrics.ObserveUpstream(action, metrics.OutcomeRejected, time.Since(start))
			if msg == "" {
				msg = "request was not successful"
			}
			return &Error{Action: action, Status: resp.StatusCode, Message: msg}
		}
	}
	metrics.ObserveUpstream(action, metrics.OutcomeOK, time.Since(start))
	return nil
}
