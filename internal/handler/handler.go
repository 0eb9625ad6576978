package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"diary/internal/auth"
	"diary/internal/logger"
	"diary/internal/model"
	"diary/internal/schoolapi"
	"diary/internal/session"
	"diary/internal/stats"
	"diary/internal/validate"
)

// School is the part of the school API used by teachers and the director.
type School interface {
	AddGrade(ctx context.Context, g model.NewGrade) (int, error)
	Teachers(ctx context.Context) ([]model.Teacher, error)
	CreateTeacher(ctx context.Context, nt model.NewTeacher) (model.Teacher, error)
}

// Tokens configures the session tokens handed to browsers.
type Tokens struct {
	Issuer string
	Key    string
	TTL    time.Duration
}

type Handler struct {
	sessions *session.Controller
	store    session.Store
	school   School
	tokens   Tokens
	log      logger.Logger
}

func New(sessions *session.Controller, store session.Store, school School, tokens Tokens, log logger.Logger) *Handler {
	return &Handler{sessions: sessions, store: store, school: school, tokens: tokens, log: log}
}

// Register mounts the API on r. limit, when set, guards every /v1 route.
func (h *Handler) Register(r gin.IRouter, limit gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	if limit != nil {
		v1.Use(limit)
	}
	v1.POST("/sessions", h.StartSession)

	authed := v1.Group("", auth.SessionAuth(h.tokens.Key, h.tokens.Issuer))
	{
		authed.GET("/session", h.GetSession)
		authed.DELETE("/session", h.Logout)
		authed.POST("/session/role", h.SelectRole)
		authed.POST("/session/back", h.Back)
		authed.POST("/session/phone", h.RequestCode)
		authed.POST("/session/change-phone", h.ChangePhone)
		authed.POST("/session/code", h.SubmitCode)
		authed.POST("/session/credentials", h.Login)

		authed.GET("/dashboard", h.Dashboard)
		authed.POST("/grades/reload", h.ReloadGrades)
		authed.POST("/grades", h.AddGrade)
		authed.GET("/teachers", h.ListTeachers)
		authed.POST("/teachers", h.CreateTeacher)
	}
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.Warn("health check failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "store": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": true})
}

// ---------- Session ----------

// StartSession creates a session and returns the bearer token that owns it.
func (h *Handler) StartSession(c *gin.Context) {
	st, err := h.sessions.Start(c.Request.Context())
	if err != nil {
		h.fail(c, st, err)
		return
	}
	tok, err := auth.Issue(st.ID, h.tokens.Issuer, h.tokens.Key, h.tokens.TTL)
	if err != nil {
		h.log.Error("token issue failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"token":      tok.Value,
		"expires_at": tok.ExpiresAt.Unix(),
		"session":    st,
	})
}

func (h *Handler) GetSession(c *gin.Context) {
	st, err := h.sessions.Snapshot(c.Request.Context(), auth.SessionID(c))
	h.respond(c, st, err)
}

func (h *Handler) Logout(c *gin.Context) {
	st, err := h.sessions.Logout(c.Request.Context(), auth.SessionID(c))
	h.respond(c, st, err)
}

func (h *Handler) SelectRole(c *gin.Context) {
	var req struct {
		Role string `json:"role"`
	}
	if !bind(c, &req) {
		return
	}
	st, err := h.sessions.SelectRole(c.Request.Context(), auth.SessionID(c), req.Role)
	h.respond(c, st, err)
}

func (h *Handler) Back(c *gin.Context) {
	st, err := h.sessions.Back(c.Request.Context(), auth.SessionID(c))
	h.respond(c, st, err)
}

func (h *Handler) ChangePhone(c *gin.Context) {
	st, err := h.sessions.ChangePhone(c.Request.Context(), auth.SessionID(c))
	h.respond(c, st, err)
}

func (h *Handler) RequestCode(c *gin.Context) {
	var req struct {
		Phone string `json:"phone"`
	}
	if !bind(c, &req) {
		return
	}
	st, err := h.sessions.RequestCode(c.Request.Context(), auth.SessionID(c), req.Phone)
	h.respond(c, st, err)
}

func (h *Handler) SubmitCode(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if !bind(c, &req) {
		return
	}
	st, err := h.sessions.SubmitCode(c.Request.Context(), auth.SessionID(c), req.Code)
	h.respond(c, st, err)
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !bind(c, &req) {
		return
	}
	st, err := h.sessions.Login(c.Request.Context(), auth.SessionID(c), req.Username, req.Password)
	h.respond(c, st, err)
}

// ---------- Grades ----------

// Dashboard returns the derived view of the signed in user's grades.
func (h *Handler) Dashboard(c *gin.Context) {
	st, err := h.sessions.Snapshot(c.Request.Context(), auth.SessionID(c))
	if err == nil && !st.Authenticated() {
		err = session.ErrWrongStep
	}
	if err != nil {
		h.fail(c, st, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dashboard": stats.Summarize(st.Book, *st.User)})
}

func (h *Handler) ReloadGrades(c *gin.Context) {
	st, err := h.sessions.ReloadGrades(c.Request.Context(), auth.SessionID(c))
	h.respond(c, st, err)
}

// AddGrade lets a signed in teacher put a grade.
func (h *Handler) AddGrade(c *gin.Context) {
	st, ok := h.requireRole(c, model.RoleTeacher)
	if !ok {
		return
	}
	var req struct {
		StudentID int `json:"student_id"`
		SubjectID int `json:"subject_id"`
		Grade     int `json:"grade"`
	}
	if !bind(c, &req) {
		return
	}
	id, err := h.school.AddGrade(c.Request.Context(), model.NewGrade{
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		Grade:     req.Grade,
		TeacherID: st.User.ID,
	})
	if err != nil {
		h.fail(c, session.State{}, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"grade_id": id})
}

// ---------- Director ----------

func (h *Handler) ListTeachers(c *gin.Context) {
	if _, ok := h.requireRole(c, model.RoleDirector); !ok {
		return
	}
	teachers, err := h.school.Teachers(c.Request.Context())
	if err != nil {
		h.fail(c, session.State{}, err)
		return
	}
	if teachers == nil {
		teachers = []model.Teacher{}
	}
	c.JSON(http.StatusOK, gin.H{"teachers": teachers})
}

func (h *Handler) CreateTeacher(c *gin.Context) {
	if _, ok := h.requireRole(c, model.RoleDirector); !ok {
		return
	}
	var req model.NewTeacher
	if !bind(c, &req) {
		return
	}
	t, err := h.school.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		h.fail(c, session.State{}, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"teacher": t})
}

// ---------- helpers ----------

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	return true
}

// requireRole answers 403 unless the session is signed in with role.
func (h *Handler) requireRole(c *gin.Context, role model.Role) (session.State, bool) {
	st, err := h.sessions.Snapshot(c.Request.Context(), auth.SessionID(c))
	if err != nil {
		h.fail(c, st, err)
		return st, false
	}
	if !st.Authenticated() || st.User.Role() != role {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return st, false
	}
	return st, true
}

func (h *Handler) respond(c *gin.Context, st session.State, err error) {
	if err != nil {
		h.fail(c, st, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": st})
}

// fail maps an error to a status. The session is included when there is one.
func (h *Handler) fail(c *gin.Context, st session.State, err error) {
	body := gin.H{"error": err.Error()}
	if st.ID != "" {
		body["session"] = st
	}

	var verr *validate.ValidationError
	var apiErr *schoolapi.Error
	switch {
	case errors.As(err, &verr):
		body["error"] = "validation failed"
		body["fields"] = verr.FieldMap()
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &apiErr):
		status := apiErr.Status
		if status < http.StatusBadRequest {
			status = http.StatusBadRequest
		}
		c.JSON(status, body)
	case errors.Is(err, schoolapi.ErrUnavailable):
		body["error"] = session.UnavailableMessage
		c.JSON(http.StatusBadGateway, body)
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, body)
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrWrongStep), errors.Is(err, session.ErrStale):
		c.JSON(http.StatusConflict, body)
	default:
		h.log.Error("request failed", err, map[string]interface{}{"path": c.FullPath()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
