package storage

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestHistoryRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordCalculation("a", "3 + 5", 8))
	require.NoError(t, s.RecordCalculation("a", "1 / 0", math.Inf(1)))
	require.NoError(t, s.RecordCalculation("a", "0 / 0", math.NaN()))
	require.NoError(t, s.RecordCalculation("b", "3 + 5", 8))

	history, err := s.LoadHistory("a")
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Equal(t, 8.0, history["3 + 5"])
	assert.True(t, math.IsInf(history["1 / 0"], 1))
	assert.True(t, math.IsNaN(history["0 / 0"]))

	empty, err := s.LoadHistory("nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRecordCalculationOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordCalculation("a", "x", 1))
	require.NoError(t, s.RecordCalculation("a", "x", 2))

	history, err := s.LoadHistory("a")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"x": 2}, history)
}

func TestRemoveCalculation(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.RecordCalculation("a", "1+1", 2))
	require.NoError(t, s.RecordCalculation("b", "1+1", 2))
	require.NoError(t, s.RemoveCalculation("a", "1+1"))
	require.NoError(t, s.RemoveCalculation("a", "missing"))

	a, err := s.LoadHistory("a")
	require.NoError(t, err)
	assert.Empty(t, a)

	b, err := s.LoadHistory("b")
	require.NoError(t, err)
	assert.Len(t, b, 1, "other sessions are untouched")
}

func TestTopScores(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, e := range []ScoreEntry{
		{Nickname: "ada", Difficulty: "easy", Score: 3},
		{Nickname: "bob", Difficulty: "easy", Score: 7},
		{Nickname: "cy", Difficulty: "easy", Score: 3},
		{Nickname: "dee", Difficulty: "medium", Score: 9},
		{Nickname: "eve", Difficulty: "easy", Score: 5},
	} {
		_, err := s.SaveScore(e)
		require.NoError(t, err)
	}

	top, err := s.TopScores("easy", 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "bob", top[0].Nickname)
	assert.Equal(t, "eve", top[1].Nickname)
	assert.Equal(t, "ada", top[2].Nickname, "earlier entry wins a tie")

	medium, err := s.TopScores("medium", 5)
	require.NoError(t, err)
	require.Len(t, medium, 1)
	assert.Equal(t, 9, medium[0].Score)
	assert.NotEmpty(t, medium[0].ID)
	assert.Equal(t, base.Add(4*time.Second).UnixNano(), medium[0].CreatedAt.UnixNano())

	none, err := s.TopScores("easy", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSaveScoreRejectsInvalidEntries(t *testing.T) {
	s := openTestStore(t)

	for _, e := range []ScoreEntry{
		{Nickname: "  ", Difficulty: "easy", Score: 1},
		{Nickname: "ada", Score: 1},
		{Nickname: "ada", Difficulty: "easy", Score: -1},
	} {
		_, err := s.SaveScore(e)
		assert.ErrorIs(t, err, ErrInvalidScore)
	}

	saved, err := s.SaveScore(ScoreEntry{Nickname: " ada ", Difficulty: "easy", Score: 0})
	require.NoError(t, err)
	assert.Equal(t, "ada", saved.Nickname)
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.RecordCalculation("a", "2*2", 4))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	history, err := s.LoadHistory("a")
	require.NoError(t, err)
	assert.Equal(t, 4.0, history["2*2"])
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.RecordCalculation("a", "1", 1))
	history, err := s.LoadHistory("a")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
