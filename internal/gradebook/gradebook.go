package gradebook

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"diary/internal/model"
	"diary/internal/schoolapi"
)

// Book is the grades state of one student session.
// It is replaced as a whole on every successful load.
type Book struct {
	StudentID   int                      `json:"student_id"`
	Subjects    []model.Subject          `json:"subjects"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
	LoadedAt    time.Time                `json:"loaded_at"`
}

// Empty reports whether nothing has been loaded yet.
func (b Book) Empty() bool {
	return b.LoadedAt.IsZero() && len(b.Subjects) == 0 && len(b.Leaderboard) == 0
}

// Clone returns a deep copy of the book.
func (b Book) Clone() Book {
	out := b
	if b.Subjects != nil {
		out.Subjects = make([]model.Subject, len(b.Subjects))
		for i, s := range b.Subjects {
			if s.Grades != nil {
				s.Grades = append([]int(nil), s.Grades...)
			}
			out.Subjects[i] = s
		}
	}
	if b.Leaderboard != nil {
		out.Leaderboard = append([]model.LeaderboardEntry(nil), b.Leaderboard...)
	}
	return out
}

// Fetcher returns the raw grades of a student.
type Fetcher interface {
	Grades(ctx context.Context, studentID int) (schoolapi.GradesResult, error)
}

// Loader fetches and normalizes grades.
type Loader struct {
	Fetcher Fetcher
	Now     func() time.Time
}

// NewLoader creates a loader around f.
func NewLoader(f Fetcher) *Loader {
	return &Loader{Fetcher: f, Now: time.Now}
}

// Load fetches the grades of studentID. On error the caller keeps its previous Book.
func (l *Loader) Load(ctx context.Context, studentID int) (Book, error) {
	res, err := l.Fetcher.Grades(ctx, studentID)
	if err != nil {
		return Book{}, fmt.Errorf("load grades for student %d: %w", studentID, err)
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	return Book{
		StudentID:   studentID,
		Subjects:    NormalizeSubjects(res.Subjects),
		Leaderboard: NormalizeLeaderboard(res.Leaderboard),
		LoadedAt:    now().UTC(),
	}, nil
}

// NormalizeSubjects drops grades outside the 2..5 scale and recomputes every average.
// The server's averages are ignored.
func NormalizeSubjects(in []model.Subject) []model.Subject {
	out := make([]model.Subject, 0, len(in))
	for _, s := range in {
		grades := make([]int, 0, len(s.Grades))
		for _, g := range s.Grades {
			if model.ValidGrade(g) {
				grades = append(grades, g)
			}
		}
		s.Grades = grades
		s.Average = Average(grades)
		out = append(out, s)
	}
	return out
}

// Average is the mean of grades rounded to two decimals, 0 for no grades.
func Average(grades []int) float64 {
	if len(grades) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, g := range grades {
		sum = sum.Add(decimal.NewFromInt(int64(g)))
	}
	avg, _ := sum.Div(decimal.NewFromInt(int64(len(grades)))).Round(2).Float64()
	return avg
}

// NormalizeLeaderboard orders entries by score descending, ties by id ascending,
// and rewrites ranks to 1..n.
func NormalizeLeaderboard(in []model.LeaderboardEntry) []model.LeaderboardEntry {
	out := append([]model.LeaderboardEntry{}, in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
