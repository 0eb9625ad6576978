package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diary/internal/auth"
	"diary/internal/gradebook"
	"diary/internal/logger"
	"diary/internal/model"
	"diary/internal/schoolapi"
	"diary/internal/session"
	"diary/internal/stats"
)

var testTokens = Tokens{Issuer: "diary", Key: "test-signing-key", TTL: time.Hour}

type response struct {
	Token     string            `json:"token"`
	Session   session.State     `json:"session"`
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields"`
	Dashboard stats.Summary     `json:"dashboard"`
	GradeID   int               `json:"grade_id"`
	Teachers  []model.Teacher   `json:"teachers"`
	Teacher   model.Teacher     `json:"teacher"`
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	client := schoolapi.New(schoolapi.Options{Demo: true})
	store := session.NewMemoryStore(time.Hour)
	ctrl := session.NewController(store, client, gradebook.NewLoader(client), nil, logger.Discard(),
		session.Options{EchoCode: true, Timeout: time.Second})

	r := gin.New()
	New(ctrl, store, client, testTokens, logger.Discard()).Register(r, nil)
	return &testServer{t: t, router: r}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, response) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out response
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *testServer) start() string {
	s.t.Helper()
	code, res := s.do(http.MethodPost, "/v1/sessions", "", nil)
	require.Equal(s.t, http.StatusCreated, code)
	require.NotEmpty(s.t, res.Token)
	assert.Equal(s.t, session.StepRole, res.Session.Step)
	return res.Token
}

// signIn drives a phone login to the authenticated step.
func (s *testServer) signIn(role model.Role, phone string) string {
	s.t.Helper()
	tok := s.start()
	code, _ := s.do(http.MethodPost, "/v1/session/role", tok, gin.H{"role": role})
	require.Equal(s.t, http.StatusOK, code)
	code, _ = s.do(http.MethodPost, "/v1/session/phone", tok, gin.H{"phone": phone})
	require.Equal(s.t, http.StatusOK, code)
	code, res := s.do(http.MethodPost, "/v1/session/code", tok, gin.H{"code": schoolapi.DemoCode})
	require.Equal(s.t, http.StatusOK, code, res.Error)
	require.Equal(s.t, session.StepAuthenticated, res.Session.Step)
	return tok
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","store":true}`, w.Body.String())
}

func TestRequiresToken(t *testing.T) {
	s := newTestServer(t)
	code, res := s.do(http.MethodGet, "/v1/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "missing bearer token", res.Error)
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t)
	tok, err := auth.Issue("gone", testTokens.Issuer, testTokens.Key, time.Hour)
	require.NoError(t, err)

	code, res := s.do(http.MethodGet, "/v1/session", tok.Value, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, session.ErrNotFound.Error(), res.Error)
}

func TestStudentFlow(t *testing.T) {
	s := newTestServer(t)
	tok := s.start()

	code, res := s.do(http.MethodPost, "/v1/session/role", tok, gin.H{"role": "student"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.StepPhone, res.Session.Step)

	code, res = s.do(http.MethodPost, "/v1/session/phone", tok, gin.H{"phone": "+7999"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "validation failed", res.Error)
	assert.Contains(t, res.Fields, "phone")

	code, res = s.do(http.MethodPost, "/v1/session/phone", tok, gin.H{"phone": "+79991234567"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.StepCode, res.Session.Step)
	assert.Equal(t, schoolapi.DemoCode, res.Session.DeliveredCode)

	code, res = s.do(http.MethodPost, "/v1/session/code", tok, gin.H{"code": "000000"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid or expired code", res.Error)
	assert.Equal(t, session.StepCode, res.Session.Step)
	require.NotNil(t, res.Session.Notice)
	assert.Equal(t, "invalid or expired code", res.Session.Notice.Message)

	code, res = s.do(http.MethodPost, "/v1/session/code", tok, gin.H{"code": schoolapi.DemoCode})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.StepAuthenticated, res.Session.Step)
	require.NotNil(t, res.Session.User)
	assert.Equal(t, schoolapi.DemoStudentID, res.Session.User.ID)
	assert.Len(t, res.Session.Book.Subjects, 5)

	code, res = s.do(http.MethodGet, "/v1/dashboard", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "4.64", res.Dashboard.OverallAverage)
	assert.Equal(t, "#4", res.Dashboard.Rank)
	assert.Len(t, res.Dashboard.Leaderboard, 5)
	assert.False(t, res.Dashboard.Distribution.Empty)

	code, res = s.do(http.MethodPost, "/v1/grades/reload", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, res.Session.Book.Subjects, 5)

	code, res = s.do(http.MethodDelete, "/v1/session", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.StepRole, res.Session.Step)
	assert.Nil(t, res.Session.User)
	assert.Empty(t, res.Session.Book.Subjects)

	code, _ = s.do(http.MethodGet, "/v1/dashboard", tok, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestDirectorRoleIsOwnerOnly(t *testing.T) {
	s := newTestServer(t)
	tok := s.start()
	code, _ := s.do(http.MethodPost, "/v1/session/role", tok, gin.H{"role": "director"})
	require.Equal(t, http.StatusOK, code)

	code, res := s.do(http.MethodPost, "/v1/session/phone", tok, gin.H{"phone": "+79991234567"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "the director role is available to the owner only", res.Error)
	assert.Equal(t, session.StepPhone, res.Session.Step)
}

func TestWrongStepConflicts(t *testing.T) {
	s := newTestServer(t)
	tok := s.start()

	code, res := s.do(http.MethodPost, "/v1/session/code", tok, gin.H{"code": "123456"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, session.ErrWrongStep.Error(), res.Error)
	assert.Equal(t, session.StepRole, res.Session.Step)

	code, _ = s.do(http.MethodPost, "/v1/session/change-phone", tok, nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestNavigation(t *testing.T) {
	s := newTestServer(t)
	tok := s.start()
	s.do(http.MethodPost, "/v1/session/role", tok, gin.H{"role": "student"})
	s.do(http.MethodPost, "/v1/session/phone", tok, gin.H{"phone": "+79991234567"})

	code, res := s.do(http.MethodPost, "/v1/session/change-phone", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.StepPhone, res.Session.Step)

	code, res = s.do(http.MethodPost, "/v1/session/back", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.StepRole, res.Session.Step)
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)
	tok := s.start()
	code, res := s.do(http.MethodPost, "/v1/session/role", tok, "{")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid request body", res.Error)
}

func TestTeacherFlow(t *testing.T) {
	s := newTestServer(t)
	tok := s.start()
	code, res := s.do(http.MethodPost, "/v1/session/role", tok, gin.H{"role": "teacher"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, session.StepCredentials, res.Session.Step)

	code, res = s.do(http.MethodPost, "/v1/session/credentials", tok, gin.H{"username": "anna", "password": ""})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "this field cannot be blank", res.Fields["password"])

	code, res = s.do(http.MethodPost, "/v1/session/credentials", tok, gin.H{"username": "anna", "password": "secret"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.TeacherProfile{Username: "anna"}, res.Session.User.Profile)

	code, res = s.do(http.MethodPost, "/v1/grades", tok, gin.H{"student_id": 4, "subject_id": 1, "grade": 5})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 1, res.GradeID)

	code, res = s.do(http.MethodPost, "/v1/grades", tok, gin.H{"student_id": 4, "subject_id": 1, "grade": 7})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, res.Fields, "grade")

	code, _ = s.do(http.MethodPost, "/v1/grades/reload", tok, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(http.MethodGet, "/v1/teachers", tok, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestDirectorManagesTeachers(t *testing.T) {
	s := newTestServer(t)
	tok := s.signIn(model.RoleDirector, schoolapi.DemoDirectorPhone)

	code, res := s.do(http.MethodGet, "/v1/teachers", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, res.Teachers)

	newTeacher := gin.H{"username": "anna", "password": "pw", "full_name": "Анна Петровна"}
	code, res = s.do(http.MethodPost, "/v1/teachers", tok, newTeacher)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "anna", res.Teacher.Username)

	code, res = s.do(http.MethodPost, "/v1/teachers", tok, newTeacher)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "username is already taken", res.Error)

	code, res = s.do(http.MethodPost, "/v1/teachers", tok, gin.H{"username": "boris"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, res.Fields, "password")
	assert.Contains(t, res.Fields, "full_name")

	code, res = s.do(http.MethodGet, "/v1/teachers", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, res.Teachers, 1)

	code, _ = s.do(http.MethodPost, "/v1/grades", tok, gin.H{"student_id": 4, "subject_id": 1, "grade": 5})
	assert.Equal(t, http.StatusForbidden, code)
}
