package gradebook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diary/internal/model"
	"diary/internal/schoolapi"
)

type stubFetcher struct {
	res   schoolapi.GradesResult
	err   error
	calls []int
}

func (s *stubFetcher) Grades(_ context.Context, id int) (schoolapi.GradesResult, error) {
	s.calls = append(s.calls, id)
	return s.res, s.err
}

func fixedNow() time.Time { return time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC) }

func TestAverage(t *testing.T) {
	tests := []struct {
		name   string
		grades []int
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []int{5}, 5},
		{"math", []int{5, 4, 5, 5, 4}, 4.6},
		{"russian", []int{5, 5, 4, 5}, 4.75},
		{"repeating", []int{5, 4, 4}, 4.33},
		{"quarter", []int{5, 5, 4, 4, 4, 4, 4, 4}, 4.25},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Average(tc.grades))
		})
	}
}

func TestNormalizeSubjects(t *testing.T) {
	in := []model.Subject{
		{ID: 1, Name: "Математика", Grades: []int{5, 1, 4, 6}, Average: 3.9},
		{ID: 2, Name: "История", Grades: nil, Average: 4.2},
	}
	out := NormalizeSubjects(in)

	require.Len(t, out, 2)
	assert.Equal(t, []int{5, 4}, out[0].Grades)
	assert.Equal(t, 4.5, out[0].Average)
	assert.Empty(t, out[1].Grades)
	assert.Equal(t, float64(0), out[1].Average)
	assert.Equal(t, []int{5, 1, 4, 6}, in[0].Grades, "input is not modified")
}

func TestNormalizeLeaderboard(t *testing.T) {
	in := []model.LeaderboardEntry{
		{ID: 9, Name: "c", Score: 4.5, Rank: 1},
		{ID: 3, Name: "a", Score: 4.9, Rank: 7},
		{ID: 2, Name: "b", Score: 4.5, Rank: 2},
	}
	out := NormalizeLeaderboard(in)

	require.Len(t, out, 3)
	assert.Equal(t, []int{3, 2, 9}, []int{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, []int{1, 2, 3}, []int{out[0].Rank, out[1].Rank, out[2].Rank})
	assert.Equal(t, 9, in[0].ID, "input is not reordered")
}

func TestLoad(t *testing.T) {
	f := &stubFetcher{res: schoolapi.GradesResult{
		Subjects:    []model.Subject{{ID: 1, Name: "Физика", Grades: []int{5, 5, 5, 4}, Average: 1}},
		Leaderboard: []model.LeaderboardEntry{{ID: 4, Name: "Ты", Score: 4.65, Rank: 4}},
	}}
	l := &Loader{Fetcher: f, Now: fixedNow}

	b, err := l.Load(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, f.calls)
	assert.Equal(t, 4, b.StudentID)
	assert.Equal(t, 4.75, b.Subjects[0].Average)
	assert.Equal(t, 1, b.Leaderboard[0].Rank)
	assert.Equal(t, fixedNow(), b.LoadedAt)
	assert.False(t, b.Empty())
}

func TestLoadTwiceIsIdempotent(t *testing.T) {
	f := &stubFetcher{res: schoolapi.GradesResult{
		Subjects: []model.Subject{
			{ID: 1, Name: "Математика", Grades: []int{5, 4, 5, 5, 4}},
			{ID: 2, Name: "Русский язык", Grades: []int{5, 5, 4, 5}},
		},
		Leaderboard: []model.LeaderboardEntry{
			{ID: 1, Score: 4.89, Rank: 1},
			{ID: 4, Score: 4.65, Rank: 4},
		},
	}}
	l := &Loader{Fetcher: f, Now: fixedNow}

	first, err := l.Load(context.Background(), 4)
	require.NoError(t, err)
	second, err := l.Load(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLoadError(t *testing.T) {
	f := &stubFetcher{err: schoolapi.ErrUnavailable}
	l := NewLoader(f)

	b, err := l.Load(context.Background(), 4)
	assert.True(t, errors.Is(err, schoolapi.ErrUnavailable))
	assert.True(t, b.Empty())
}

func TestClone(t *testing.T) {
	b := Book{
		Subjects:    []model.Subject{{ID: 1, Grades: []int{5}}},
		Leaderboard: []model.LeaderboardEntry{{ID: 1, Rank: 1}},
	}
	c := b.Clone()
	c.Subjects[0].Grades[0] = 2
	c.Leaderboard[0].Rank = 9

	assert.Equal(t, 5, b.Subjects[0].Grades[0])
	assert.Equal(t, 1, b.Leaderboard[0].Rank)
}
