package schoolapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"diary/internal/model"
)

// Demo mode answers from a built-in school instead of calling the services.
const (
	DemoCode          = "123456"
	DemoDirectorPhone = "+79999999999"
	DemoStudentID     = 4
)

type demoSchool struct {
	mu          sync.Mutex
	subjects    []model.Subject
	leaderboard []model.LeaderboardEntry
	teachers    []model.Teacher
	nextGradeID int
}

func newDemoSchool() *demoSchool {
	return &demoSchool{
		subjects: []model.Subject{
			{ID: 1, Name: "Математика", Icon: "Calculator", Grades: []int{5, 4, 5, 5, 4}, Average: 4.6},
			{ID: 2, Name: "Русский язык", Icon: "BookOpen", Grades: []int{5, 5, 4, 5}, Average: 4.75},
			{ID: 3, Name: "История", Icon: "Scroll", Grades: []int{4, 5, 5, 4, 5}, Average: 4.6},
			{ID: 4, Name: "Физика", Icon: "Atom", Grades: []int{5, 5, 5, 4}, Average: 4.75},
			{ID: 5, Name: "Английский", Icon: "Languages", Grades: []int{5, 4, 4, 5}, Average: 4.5},
		},
		leaderboard: []model.LeaderboardEntry{
			{ID: 1, Name: "Анна Смирнова", Avatar: "🏆", Score: 4.89, Rank: 1},
			{ID: 2, Name: "Иван Петров", Avatar: "🥈", Score: 4.82, Rank: 2},
			{ID: 3, Name: "Мария Козлова", Avatar: "🥉", Score: 4.78, Rank: 3},
			{ID: DemoStudentID, Name: "Ты", Avatar: "😊", Score: 4.65, Rank: 4},
			{ID: 5, Name: "Дмитрий Волков", Avatar: "👨‍🎓", Score: 4.61, Rank: 5},
		},
		nextGradeID: 1,
	}
}

func rejected(action string, status int, msg string) *Error {
	return &Error{Action: action, Status: status, Message: msg}
}

func (d *demoSchool) sendCode(phone string, role model.Role) (CodeResult, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return CodeResult{}, rejected(ActionSendCode, http.StatusBadRequest, "phone is required")
	}
	if role == model.RoleDirector && phone != DemoDirectorPhone {
		return CodeResult{}, rejected(ActionSendCode, http.StatusForbidden, "the director role is available to the owner only")
	}
	return CodeResult{Code: DemoCode, Message: "code sent: " + DemoCode}, nil
}

func (d *demoSchool) verifyCode(req VerifyRequest) (model.User, error) {
	if strings.TrimSpace(req.Code) != DemoCode {
		return model.User{}, rejected(ActionVerifyCode, http.StatusBadRequest, "invalid or expired code")
	}
	phone := strings.TrimSpace(req.Phone)
	if req.Role == model.RoleDirector {
		return model.User{
			ID:          100,
			FullName:    "Директор",
			AvatarEmoji: "👑",
			Profile:     model.DirectorProfile{Phone: phone},
		}, nil
	}
	name := req.FullName
	if name == "" {
		name = "Ты"
	}
	return model.User{
		ID:          DemoStudentID,
		FullName:    name,
		AvatarEmoji: "😊",
		Profile:     model.StudentProfile{Phone: phone, ClassName: req.ClassName},
	}, nil
}

func (d *demoSchool) loginTeacher(username, password string) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return model.User{}, rejected(ActionLoginTeacher, http.StatusBadRequest, "username and password are required")
	}
	return model.User{
		ID:          50,
		FullName:    "Учитель",
		AvatarEmoji: "👨‍🏫",
		Profile:     model.TeacherProfile{Username: username},
	}, nil
}

func (d *demoSchool) grades(studentID int) GradesResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	res := GradesResult{
		Subjects:    make([]model.Subject, len(d.subjects)),
		Leaderboard: append([]model.LeaderboardEntry(nil), d.leaderboard...),
	}
	for i, s := range d.subjects {
		if studentID != DemoStudentID {
			s.Grades = nil
			s.Average = 0
		}
		s.Grades = append([]int(nil), s.Grades...)
		res.Subjects[i] = s
	}
	return res
}

func (d *demoSchool) addGrade(g model.NewGrade) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if g.StudentID == DemoStudentID {
		for i := range d.subjects {
			if d.subjects[i].ID == g.SubjectID {
				d.subjects[i].Grades = append(d.subjects[i].Grades, g.Grade)
			}
		}
	}
	id := d.nextGradeID
	d.nextGradeID++
	return id, nil
}

func (d *demoSchool) listTeachers() []model.Teacher {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.Teacher, 0, len(d.teachers))
	for i := len(d.teachers) - 1; i >= 0; i-- {
		out = append(out, d.teachers[i])
	}
	return out
}

func (d *demoSchool) createTeacher(nt model.NewTeacher) (model.Teacher, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	username := strings.TrimSpace(nt.Username)
	for _, t := range d.teachers {
		if t.Username == username {
			return model.Teacher{}, rejected(ActionCreateTeacher, http.StatusBadRequest, "username is already taken")
		}
	}
	avatar := nt.AvatarEmoji
	if avatar == "" {
		avatar = "👨‍🏫"
	}
	t := model.Teacher{
		ID:          200 + len(d.teachers),
		Username:    username,
		FullName:    strings.TrimSpace(nt.FullName),
		AvatarEmoji: avatar,
		CreatedAt:   time.Now().UTC().Format("2006-01-02T15:04:05"),
	}
	d.teachers = append(d.teachers, t)
	return t, nil
}
