package quiz

import (
	"errors"
	"math/rand"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/antibyte/retrocalc/pkg/calculator"
	"github.com/antibyte/retrocalc/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memoryBoard struct {
	entries []storage.ScoreEntry
	err     error
}

func (b *memoryBoard) SaveScore(e storage.ScoreEntry) (storage.ScoreEntry, error) {
	if b.err != nil {
		return storage.ScoreEntry{}, b.err
	}
	b.entries = append(b.entries, e)
	return e, nil
}

func (b *memoryBoard) TopScores(string, int) ([]storage.ScoreEntry, error) {
	return b.entries, nil
}

func newTestSession(t *testing.T, questions []string, opts ...Option) (*Session, *fakeClock, *calculator.Calculator) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	calc := calculator.New()
	base := []Option{
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewSource(1))),
		WithTimeLimit(time.Minute),
		WithMaxNicknameLength(20),
	}
	if questions != nil {
		base = append(base, WithQuestions(questions))
	}
	s, err := NewSession("ada", Easy, calc, append(base, opts...)...)
	require.NoError(t, err)
	return s, clock, calc
}

func answerFor(t *testing.T, question string) string {
	t.Helper()
	v, err := calculator.New().Calculate(question)
	require.NoError(t, err)
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty(" Medium ")
	require.NoError(t, err)
	assert.Equal(t, Medium, d)

	_, err = ParseDifficulty("hard")
	assert.ErrorIs(t, err, ErrUnknownDifficulty)

	assert.Equal(t, []Difficulty{Easy, Medium}, Difficulties())
}

func TestBanksAreAnswerable(t *testing.T) {
	calc := calculator.New()
	for _, d := range Difficulties() {
		bank := Questions(d)
		assert.NotEmpty(t, bank)
		for _, q := range bank {
			v, err := calc.Calculate(q)
			require.NoError(t, err, q)

			parsed, ok := calc.ParseAnswer(strconv.FormatFloat(v, 'f', -1, 64))
			require.True(t, ok, q)
			assert.Equal(t, v, parsed, q)
		}
	}
}

func TestValidateNickname(t *testing.T) {
	name, err := ValidateNickname("  ada  ", 5)
	require.NoError(t, err)
	assert.Equal(t, "ada", name)

	_, err = ValidateNickname("   ", 5)
	assert.ErrorIs(t, err, ErrInvalidNickname)

	_, err = ValidateNickname("abcdef", 5)
	assert.ErrorIs(t, err, ErrInvalidNickname)

	_, err = ValidateNickname("äöüß", 4)
	assert.NoError(t, err, "length counts runes")

	_, err = ValidateNickname("a very long name indeed", 0)
	assert.NoError(t, err)
}

func TestNewSessionValidation(t *testing.T) {
	_, err := NewSession("", Easy, nil)
	assert.ErrorIs(t, err, ErrInvalidNickname)

	_, err = NewSession("ada", Difficulty("hard"), nil)
	assert.ErrorIs(t, err, ErrUnknownDifficulty)

	_, err = NewSession("ada", Easy, nil, WithQuestions([]string{}))
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	a, _, _ := newTestSession(t, nil)
	b, _, _ := newTestSession(t, nil)
	assert.Equal(t, a.questions, b.questions)
	assert.ElementsMatch(t, Questions(Easy), a.questions)
}

func TestCorrectAnswersComplete(t *testing.T) {
	s, _, calc := newTestSession(t, []string{"2 + 2", "7 / 2"})

	for i := 0; i < 2; i++ {
		q, ok := s.Current()
		require.True(t, ok)

		out, err := s.Answer(answerFor(t, q))
		require.NoError(t, err)
		assert.True(t, out.Correct)
		assert.Equal(t, i+1, out.Score)
		assert.Equal(t, q, out.Question)
	}

	assert.Equal(t, Completed, s.State())
	_, ok := s.Current()
	assert.False(t, ok)

	entry, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, storage.ScoreEntry{Nickname: "ada", Difficulty: "easy", Score: 2}, entry)

	assert.Equal(t, 2, calc.History().Len(), "questions are recorded in history")

	_, err := s.Answer("4")
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestAnswerAcceptsCommaSeparator(t *testing.T) {
	s, _, _ := newTestSession(t, []string{"7 / 2"})
	out, err := s.Answer(" 3,5 ")
	require.NoError(t, err)
	assert.True(t, out.Correct)
}

func TestWrongAnswerFails(t *testing.T) {
	s, _, _ := newTestSession(t, []string{"2 + 2", "3 + 3"})

	q, _ := s.Current()
	_, err := s.Answer(answerFor(t, q))
	require.NoError(t, err)

	out, err := s.Answer("not a number")
	require.NoError(t, err)
	assert.False(t, out.Correct)
	assert.Equal(t, "failed", out.State)
	assert.Equal(t, 1, out.Score)
	assert.Empty(t, out.Next)

	_, ok := s.Result()
	assert.False(t, ok, "failed sessions are not saved")

	board := &memoryBoard{}
	saved, err := s.Save(board)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Empty(t, board.entries)
}

func TestOutcomeCarriesNextQuestion(t *testing.T) {
	s, _, _ := newTestSession(t, []string{"1 + 1", "2 + 2"})
	first, _ := s.Current()
	out, err := s.Answer(answerFor(t, first))
	require.NoError(t, err)

	second, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, second, out.Next)
	assert.Equal(t, "running", out.State)
	assert.Equal(t, answerFor(t, first), strconv.FormatFloat(out.Expected, 'f', -1, 64))
}

func TestTimeUpCompletesSession(t *testing.T) {
	s, clock, _ := newTestSession(t, []string{"1 + 1", "2 + 2"})

	assert.Equal(t, time.Minute, s.Remaining())
	assert.False(t, s.Expire(), "not yet")

	q, _ := s.Current()
	_, err := s.Answer(answerFor(t, q))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.Zero(t, s.Remaining())
	assert.True(t, s.Expire())
	assert.False(t, s.Expire(), "only once")

	out := s.Outcome()
	assert.True(t, out.TimedOut)
	assert.Equal(t, "completed", out.State)

	entry, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, 1, entry.Score)
}

func TestLateAnswerIsNotGraded(t *testing.T) {
	s, clock, calc := newTestSession(t, []string{"1 + 1"})
	clock.Advance(2 * time.Minute)

	out, err := s.Answer("2")
	require.NoError(t, err)
	assert.False(t, out.Correct)
	assert.True(t, out.TimedOut)
	assert.Equal(t, 0, out.Score)
	assert.Equal(t, Completed, s.State())
	assert.Empty(t, out.Question)
	assert.Zero(t, calc.History().Len())
}

func TestUnparseableQuestionsAreSkipped(t *testing.T) {
	dotOnly := calculator.New(calculator.WithDecimalSeparators("."))

	s, err := NewSession("ada", Medium, dotOnly, WithQuestions([]string{"2,5 * 4", "1 + 1"}))
	require.NoError(t, err)
	q, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "1 + 1", q)

	out, err := s.Answer("2")
	require.NoError(t, err)
	assert.True(t, out.Correct)
	assert.Equal(t, Completed, s.State())

	_, err = NewSession("ada", Medium, dotOnly, WithQuestions([]string{"2,5 * 4"}))
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestMediumBankWithDotSeparatorNeverStalls(t *testing.T) {
	dotOnly := calculator.New(calculator.WithDecimalSeparators("."))
	s, err := NewSession("ada", Medium, dotOnly)
	require.NoError(t, err)

	for {
		q, ok := s.Current()
		if !ok {
			break
		}
		out, err := s.Answer(answerFor(t, q))
		require.NoError(t, err, q)
		require.True(t, out.Correct, q)
	}
	assert.Equal(t, Completed, s.State())
}

func TestSaveOnce(t *testing.T) {
	s, _, _ := newTestSession(t, []string{"1 + 1"})
	board := &memoryBoard{}

	saved, err := s.Save(board)
	require.NoError(t, err)
	assert.False(t, saved, "running sessions have no result")

	_, err = s.Answer("2")
	require.NoError(t, err)

	saved, err = s.Save(board)
	require.NoError(t, err)
	assert.True(t, saved)

	saved, err = s.Save(board)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Len(t, board.entries, 1)
}

func TestSaveError(t *testing.T) {
	s, _, _ := newTestSession(t, []string{"1 + 1"})
	_, err := s.Answer("2")
	require.NoError(t, err)

	boom := errors.New("disk full")
	_, err = s.Save(&memoryBoard{err: boom})
	assert.ErrorIs(t, err, boom)

	saved, err := s.Save(&memoryBoard{})
	require.NoError(t, err)
	assert.True(t, saved, "a failed save can be retried")
}

func TestSaveToStore(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "quiz.db"))
	require.NoError(t, err)
	defer store.Close()

	s, _, _ := newTestSession(t, []string{"6 * 7"})
	_, err = s.Answer("42")
	require.NoError(t, err)

	saved, err := s.Save(store)
	require.NoError(t, err)
	require.True(t, saved)

	top, err := store.TopScores("easy", HighScoreLimit())
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "ada", top[0].Nickname)
	assert.Equal(t, 1, top[0].Score)
}

func TestConcurrentExpireAndAnswer(t *testing.T) {
	s, clock, _ := newTestSession(t, []string{"1 + 1", "1 + 1", "1 + 1"})
	clock.Advance(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); s.Expire() }()
		go func() { defer wg.Done(); _, _ = s.Answer("2") }()
	}
	wg.Wait()
	assert.Equal(t, Completed, s.State())
	assert.Equal(t, 0, s.Score())
}
