package stats

import (
	"strconv"

	"github.com/shopspring/decimal"

	"diary/internal/gradebook"
	"diary/internal/model"
)

const (
	// UnknownRank is shown when the user is not on the leaderboard.
	UnknownRank = "—"
	// NoGrades is shown instead of an average for a subject without grades.
	NoGrades = "no grades yet"
)

var hundred = decimal.NewFromInt(100)

// OverallAverage is the mean of every subject's average as a two decimal string.
// A subject without grades counts with its zero average. It is "0.00" for no subjects.
func OverallAverage(subjects []model.Subject) string {
	if len(subjects) == 0 {
		return "0.00"
	}
	sum := decimal.Zero
	for _, s := range subjects {
		sum = sum.Add(decimal.NewFromFloat(s.Average))
	}
	return sum.Div(decimal.NewFromInt(int64(len(subjects)))).StringFixed(2)
}

// Rank returns the 1-based leaderboard position of userID.
func Rank(board []model.LeaderboardEntry, userID int) (int, bool) {
	for i, e := range board {
		if e.ID == userID {
			return i + 1, true
		}
	}
	return 0, false
}

// RankLabel formats the rank of userID as "#n" or UnknownRank.
func RankLabel(board []model.LeaderboardEntry, userID int) string {
	if r, ok := Rank(board, userID); ok {
		return "#" + strconv.Itoa(r)
	}
	return UnknownRank
}

// Distribution counts grades by bucket.
type Distribution struct {
	Total        int  `json:"total"`
	Excellent    int  `json:"excellent"`    // 5
	Good         int  `json:"good"`         // 4
	Satisfactory int  `json:"satisfactory"` // 3 and below
	Empty        bool `json:"empty"`
}

// GradeDistribution buckets every grade of every subject.
func GradeDistribution(subjects []model.Subject) Distribution {
	var d Distribution
	for _, s := range subjects {
		for _, g := range s.Grades {
			switch {
			case g >= 5:
				d.Excellent++
			case g == 4:
				d.Good++
			default:
				d.Satisfactory++
			}
			d.Total++
		}
	}
	d.Empty = d.Total == 0
	return d
}

// Percents returns the rounded share of each bucket.
func (d Distribution) Percents() (excellent, good, satisfactory int) {
	return BucketPercent(d.Excellent, d.Total), BucketPercent(d.Good, d.Total), BucketPercent(d.Satisfactory, d.Total)
}

// BucketPercent is count/total as a whole percent, rounded half away from zero.
// A zero total yields 0.
func BucketPercent(count, total int) int {
	if total <= 0 {
		return 0
	}
	p := decimal.NewFromInt(int64(count)).Mul(hundred).Div(decimal.NewFromInt(int64(total))).Round(0)
	return int(p.IntPart())
}

// SubjectAverage returns the display average of a subject and whether it has grades.
func SubjectAverage(s model.Subject) (string, bool) {
	if !s.HasGrades() {
		return NoGrades, false
	}
	return decimal.NewFromFloat(s.Average).StringFixed(2), true
}

// Progress is the subject average as a percent of the top grade.
func Progress(s model.Subject) int {
	if !s.HasGrades() {
		return 0
	}
	p := decimal.NewFromFloat(s.Average).Mul(hundred).Div(decimal.NewFromInt(model.MaxGrade)).Round(0)
	return int(p.IntPart())
}

// SubjectLine is the display form of one subject.
type SubjectLine struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Grades    []int  `json:"grades"`
	Average   string `json:"average"`
	HasGrades bool   `json:"has_grades"`
	Progress  int    `json:"progress"`
}

// Summary is the dashboard view of a session.
type Summary struct {
	User            model.User               `json:"user"`
	OverallAverage  string                   `json:"overall_average"`
	Rank            string                   `json:"rank"`
	Subjects        []SubjectLine            `json:"subjects"`
	Leaderboard     []model.LeaderboardEntry `json:"leaderboard"`
	Distribution    Distribution             `json:"distribution"`
	ExcellentPct    int                      `json:"excellent_pct"`
	GoodPct         int                      `json:"good_pct"`
	SatisfactoryPct int                      `json:"satisfactory_pct"`
}

// Summarize derives the dashboard from a book for usr.
func Summarize(book gradebook.Book, usr model.User) Summary {
	d := GradeDistribution(book.Subjects)
	ex, good, sat := d.Percents()
	lines := make([]SubjectLine, 0, len(book.Subjects))
	for _, s := range book.Subjects {
		avg, has := SubjectAverage(s)
		lines = append(lines, SubjectLine{
			ID:        s.ID,
			Name:      s.Name,
			Icon:      s.Icon,
			Grades:    append([]int{}, s.Grades...),
			Average:   avg,
			HasGrades: has,
			Progress:  Progress(s),
		})
	}
	return Summary{
		User:            usr,
		OverallAverage:  OverallAverage(book.Subjects),
		Rank:            RankLabel(book.Leaderboard, usr.ID),
		Subjects:        lines,
		Leaderboard:     append([]model.LeaderboardEntry{}, book.Leaderboard...),
		Distribution:    d,
		ExcellentPct:    ex,
		GoodPct:         good,
		SatisfactoryPct: sat,
	}
}
