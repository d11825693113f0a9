// Package quiz runs timed arithmetic quizzes on top of the calculator.
package quiz

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/antibyte/retrocalc/pkg/calculator"
	"github.com/antibyte/retrocalc/pkg/configuration"
	"github.com/antibyte/retrocalc/pkg/logger"
	"github.com/antibyte/retrocalc/pkg/storage"
)

var (
	ErrSessionFinished = errors.New("quiz session is finished")
	ErrInvalidNickname = errors.New("invalid nickname")
	ErrNoQuestions     = errors.New("quiz has no questions")
)

// State of a session
type State int

const (
	Running State = iota
	// Completed sessions answered every question or ran out of time.
	Completed
	// Failed sessions ended on a wrong answer; their score is not kept.
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Scoreboard stores and ranks finished sessions. storage.Store implements it.
type Scoreboard interface {
	SaveScore(entry storage.ScoreEntry) (storage.ScoreEntry, error)
	TopScores(difficulty string, limit int) ([]storage.ScoreEntry, error)
}

// Outcome describes the effect of one answer
type Outcome struct {
	Correct  bool    `json:"correct"`
	Expected float64 `json:"expected"`
	Question string  `json:"question,omitempty"` // the graded question, empty if none was graded
	Score    int     `json:"score"`
	State    string  `json:"state"`
	TimedOut bool    `json:"timed_out,omitempty"`
	Next     string  `json:"next,omitempty"`
}

// Session is one player's run through a shuffled question bank. Its methods
// are safe for concurrent use, so a countdown timer may call Expire while
// answers arrive.
type Session struct {
	mu         sync.Mutex
	nickname   string
	difficulty Difficulty
	calc       *calculator.Calculator
	questions  []string
	index      int
	score      int
	state      State
	deadline   time.Time
	timedOut   bool
	saved      bool
	now        func() time.Time
}

type settings struct {
	timeLimit   time.Duration
	maxNickname int
	rnd         *rand.Rand
	now         func() time.Time
	questions   []string
}

// Option customizes a new session
type Option func(*settings)

// WithTimeLimit overrides [Quiz] time_limit
func WithTimeLimit(d time.Duration) Option {
	return func(s *settings) { s.timeLimit = d }
}

// WithMaxNicknameLength overrides [Quiz] max_nickname_length
func WithMaxNicknameLength(n int) Option {
	return func(s *settings) { s.maxNickname = n }
}

// WithRand sets the source used to shuffle questions
func WithRand(r *rand.Rand) Option {
	return func(s *settings) { s.rnd = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithQuestions replaces the difficulty's bank. The questions are still shuffled.
func WithQuestions(questions []string) Option {
	return func(s *settings) {
		s.questions = make([]string, len(questions))
		copy(s.questions, questions)
	}
}

// ValidateNickname trims nickname and checks it is non-empty and at most
// max runes long (max <= 0 means unlimited).
func ValidateNickname(nickname string, max int) (string, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return "", ErrInvalidNickname
	}
	if max > 0 && utf8.RuneCountInString(nickname) > max {
		return "", ErrInvalidNickname
	}
	return nickname, nil
}

// MaxNicknameLength returns the configured nickname limit
func MaxNicknameLength() int {
	return configuration.GetInt("Quiz", "max_nickname_length", 20)
}

// NewSession starts a quiz. The countdown begins immediately. Questions are
// evaluated with calc, so they land in its history.
func NewSession(nickname string, difficulty Difficulty, calc *calculator.Calculator, opts ...Option) (*Session, error) {
	cfg := settings{
		timeLimit:   configuration.GetDuration("Quiz", "time_limit", 60*time.Second),
		maxNickname: MaxNicknameLength(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	name, err := ValidateNickname(nickname, cfg.maxNickname)
	if err != nil {
		return nil, err
	}
	if _, ok := banks[difficulty]; !ok && cfg.questions == nil {
		return nil, ErrUnknownDifficulty
	}
	questions := cfg.questions
	if questions == nil {
		questions = Questions(difficulty)
	}
	if calc == nil {
		calc = calculator.NewFromConfig()
	}
	questions = answerable(questions, calc)
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if cfg.rnd == nil {
		cfg.rnd = rand.New(rand.NewSource(cfg.now().UnixNano()))
	}
	cfg.rnd.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})

	logger.QuizInfo("%s started a %s quiz with %d questions", name, difficulty, len(questions))
	return &Session{
		nickname:   name,
		difficulty: difficulty,
		calc:       calc,
		questions:  questions,
		deadline:   cfg.now().Add(cfg.timeLimit),
		now:        cfg.now,
	}, nil
}

// answerable drops questions calc cannot parse, e.g. a "2,5" question when
// only '.' is a decimal separator.
func answerable(questions []string, calc *calculator.Calculator) []string {
	kept := questions[:0]
	for _, q := range questions {
		if _, err := calc.ParseExpression(q); err != nil {
			logger.QuizWarn("skipping question %q: %v", q, err)
			continue
		}
		kept = append(kept, q)
	}
	return kept
}

// Nickname returns the validated nickname
func (s *Session) Nickname() string { return s.nickname }

// Difficulty returns the selected difficulty
func (s *Session) Difficulty() Difficulty { return s.difficulty }

// Deadline is the moment the countdown runs out
func (s *Session) Deadline() time.Time { return s.deadline }

// Remaining returns the time left, never negative.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return 0
	}
	if d := s.deadline.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

// Current returns the question waiting for an answer.
func (s *Session) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return "", false
	}
	return s.questions[s.index], true
}

// Score returns the number of correct answers so far
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// State returns the session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Answer checks raw against the current question. An answer arriving after
// the deadline ends the session as completed without being graded.
func (s *Session) Answer(raw string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Running {
		return Outcome{}, ErrSessionFinished
	}
	if s.expiredLocked() {
		return s.outcomeLocked(false, 0), nil
	}

	question := s.questions[s.index]
	expected, err := s.calc.Calculate(question)
	if err != nil {
		return Outcome{}, err
	}

	answer, ok := s.calc.ParseAnswer(raw)
	correct := ok && answer == expected
	if correct {
		s.score++
		s.index++
		if s.index >= len(s.questions) {
			s.state = Completed
			logger.QuizInfo("%s answered all %d questions", s.nickname, len(s.questions))
		}
	} else {
		s.state = Failed
		logger.QuizDebug("%s answered %q to %q, expected %v", s.nickname, raw, question, expected)
	}
	out := s.outcomeLocked(correct, expected)
	out.Question = question
	return out, nil
}

// Expire ends a running session whose deadline has passed and reports
// whether it did so.
func (s *Session) Expire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return false
	}
	return s.expiredLocked()
}

func (s *Session) expiredLocked() bool {
	if s.now().Before(s.deadline) {
		return false
	}
	s.state = Completed
	s.timedOut = true
	logger.QuizInfo("%s ran out of time with score %d", s.nickname, s.score)
	return true
}

// Outcome reports the current state without answering
func (s *Session) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomeLocked(false, 0)
}

func (s *Session) outcomeLocked(correct bool, expected float64) Outcome {
	o := Outcome{
		Correct:  correct,
		Expected: expected,
		Score:    s.score,
		State:    s.state.String(),
		TimedOut: s.timedOut,
	}
	if s.state == Running {
		o.Next = s.questions[s.index]
	}
	return o
}

// Result returns the score entry of a completed session. Running and
// failed sessions have none.
func (s *Session) Result() (storage.ScoreEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultLocked()
}

func (s *Session) resultLocked() (storage.ScoreEntry, bool) {
	if s.state != Completed {
		return storage.ScoreEntry{}, false
	}
	return storage.ScoreEntry{
		Nickname:   s.nickname,
		Difficulty: string(s.difficulty),
		Score:      s.score,
	}, true
}

// Save stores the result on board once. It reports whether an entry was
// written by this call.
func (s *Session) Save(board Scoreboard) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.resultLocked()
	if !ok || s.saved || board == nil {
		return false, nil
	}
	if _, err := board.SaveScore(entry); err != nil {
		return false, err
	}
	s.saved = true
	return true, nil
}

// HighScoreLimit returns the configured number of ranks shown per difficulty
func HighScoreLimit() int {
	return configuration.GetInt("Quiz", "high_score_limit", 5)
}
