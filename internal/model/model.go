package model

import (
	"encoding/json"
	"fmt"
)

// Role is one of the three closed login roles.
type Role string

const (
	RoleStudent  Role = "student"
	RoleTeacher  Role = "teacher"
	RoleDirector Role = "director"
)

// Roles lists every valid role.
var Roles = []Role{RoleStudent, RoleTeacher, RoleDirector}

// ParseRole returns the Role named by s.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// UsesPhoneLogin reports whether the role signs in with a phone and a one-time code.
// Teachers sign in with a username and password instead.
func (r Role) UsesPhoneLogin() bool {
	return r == RoleStudent || r == RoleDirector
}

// Profile carries the role-specific part of a User.
// Only the variants below implement it.
type Profile interface {
	Role() Role
	isProfile()
}

// StudentProfile is the profile of a user who logged in as a student.
type StudentProfile struct {
	Phone     string
	ClassName string
}

// TeacherProfile is the profile of a user who logged in with credentials.
type TeacherProfile struct {
	Username string
}

// DirectorProfile is the profile of the school owner.
type DirectorProfile struct {
	Phone string
}

func (StudentProfile) Role() Role  { return RoleStudent }
func (TeacherProfile) Role() Role  { return RoleTeacher }
func (DirectorProfile) Role() Role { return RoleDirector }

func (StudentProfile) isProfile()  {}
func (TeacherProfile) isProfile()  {}
func (DirectorProfile) isProfile() {}

// User is the authenticated identity of a session.
type User struct {
	ID          int
	FullName    string
	AvatarEmoji string
	Profile     Profile
}

// Role returns the role of the user's profile, or "" for a zero User.
func (u User) Role() Role {
	if u.Profile == nil {
		return ""
	}
	return u.Profile.Role()
}

// IsStudent reports whether grades can be loaded for the user.
func (u User) IsStudent() bool { return u.Role() == RoleStudent }

// wireUser is the flat record exchanged with the auth service.
type wireUser struct {
	ID          int     `json:"id"`
	Role        Role    `json:"role"`
	FullName    string  `json:"full_name"`
	Phone       *string `json:"phone,omitempty"`
	ClassName   *string `json:"class_name,omitempty"`
	Username    *string `json:"username,omitempty"`
	AvatarEmoji string  `json:"avatar_emoji"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (u User) MarshalJSON() ([]byte, error) {
	w := wireUser{
		ID:          u.ID,
		Role:        u.Role(),
		FullName:    u.FullName,
		AvatarEmoji: u.AvatarEmoji,
	}
	switch p := u.Profile.(type) {
	case StudentProfile:
		w.Phone = optional(p.Phone)
		w.ClassName = optional(p.ClassName)
	case TeacherProfile:
		w.Username = optional(p.Username)
	case DirectorProfile:
		w.Phone = optional(p.Phone)
	}
	return json.Marshal(w)
}

func (u *User) UnmarshalJSON(data []byte) error {
	var w wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	role, err := ParseRole(string(w.Role))
	if err != nil {
		return fmt.Errorf("user %d: %w", w.ID, err)
	}
	u.ID = w.ID
	u.FullName = w.FullName
	u.AvatarEmoji = w.AvatarEmoji
	switch role {
	case RoleStudent:
		u.Profile = StudentProfile{Phone: deref(w.Phone), ClassName: deref(w.ClassName)}
	case RoleTeacher:
		u.Profile = TeacherProfile{Username: deref(w.Username)}
	case RoleDirector:
		u.Profile = DirectorProfile{Phone: deref(w.Phone)}
	}
	return nil
}

// Grade bounds accepted by the grades service.
const (
	MinGrade = 2
	MaxGrade = 5
)

// ValidGrade reports whether g is on the school's 2..5 scale.
func ValidGrade(g int) bool { return g >= MinGrade && g <= MaxGrade }

// Subject is one school subject with the student's grades in chronological order.
// Average is derived from Grades on the client.
type Subject struct {
	ID      int     `json:"id"`
	Name    string  `json:"name"`
	Icon    string  `json:"icon"`
	Grades  []int   `json:"grades"`
	Average float64 `json:"average"`
}

// HasGrades reports whether the subject has any grade yet.
func (s Subject) HasGrades() bool { return len(s.Grades) > 0 }

// LeaderboardEntry is one student's row in the school ranking.
type LeaderboardEntry struct {
	ID     int     `json:"id"`
	Name   string  `json:"name"`
	Avatar string  `json:"avatar"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// NewGrade is a grade a teacher puts for a student.
type NewGrade struct {
	StudentID int `json:"student_id" validate:"required,gt=0"`
	SubjectID int `json:"subject_id" validate:"required,gt=0"`
	Grade     int `json:"grade" validate:"required,min=2,max=5"`
	TeacherID int `json:"teacher_id" validate:"required,gt=0"`
}

// Teacher is a teacher account as listed by the director service.
type Teacher struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	FullName    string `json:"full_name"`
	AvatarEmoji string `json:"avatar_emoji"`
	CreatedAt   string `json:"created_at,omitempty"` // naive ISO timestamp
}

// NewTeacher contains the information needed to create a teacher account.
type NewTeacher struct {
	Username    string `json:"username" validate:"notblank"`
	Password    string `json:"password" validate:"notblank"`
	FullName    string `json:"full_name" validate:"notblank"`
	AvatarEmoji string `json:"avatar_emoji,omitempty"`
}
