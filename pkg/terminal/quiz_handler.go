package terminal

import (
	"errors"
	"time"

	"github.com/antibyte/retrocalc/pkg/logger"
	"github.com/antibyte/retrocalc/pkg/quiz"
	"github.com/antibyte/retrocalc/pkg/shared"
)

var errNoQuiz = errors.New("no quiz running")

// startQuiz replaces any running quiz of this client with a new one
func (c *Client) startQuiz(msg shared.Message) shared.Message {
	difficulty, err := quiz.ParseDifficulty(msg.Difficulty)
	if err != nil {
		return errorMessage("", err)
	}
	nickname := msg.Nickname
	if nickname == "" {
		nickname = c.nickname
	}

	session, err := quiz.NewSession(nickname, difficulty, c.calc)
	if err != nil {
		return errorMessage("", err)
	}

	c.mu.Lock()
	if c.quizTimer != nil {
		c.quizTimer.Stop()
	}
	c.quiz = session
	c.quizTimer = time.AfterFunc(session.Remaining(), func() { c.expireQuiz(session) })
	c.mu.Unlock()

	question, _ := session.Current()
	return shared.Message{
		Type:        shared.MessageTypeQuestion,
		Nickname:    session.Nickname(),
		Difficulty:  string(difficulty),
		Question:    question,
		State:       quiz.Running.String(),
		RemainingMS: session.Remaining().Milliseconds(),
	}
}

func (c *Client) currentQuiz() *quiz.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quiz
}

func (c *Client) answer(raw string) shared.Message {
	session := c.currentQuiz()
	if session == nil {
		return errorMessage("", errNoQuiz)
	}

	out, err := session.Answer(raw)
	if err != nil {
		return errorMessage("", err)
	}
	if out.Question != "" {
		c.persist(out.Question, out.Expected)
	}
	if session.State() != quiz.Running {
		return c.finishQuiz(session, &out)
	}

	correct := out.Correct
	return shared.Message{
		Type:        shared.MessageTypeQuestion,
		Difficulty:  string(session.Difficulty()),
		Question:    out.Next,
		Correct:     &correct,
		Expected:    shared.FormatNumber(out.Expected),
		Score:       out.Score,
		State:       out.State,
		RemainingMS: session.Remaining().Milliseconds(),
	}
}

// expireQuiz runs on the countdown timer goroutine
func (c *Client) expireQuiz(session *quiz.Session) {
	if c.currentQuiz() != session || !session.Expire() {
		return
	}
	c.sendMessage(c.finishQuiz(session, nil))
}

// finishQuiz stops the countdown, stores a savable result and builds the
// quiz_over message. out is nil when the timer ended the quiz.
func (c *Client) finishQuiz(session *quiz.Session, out *quiz.Outcome) shared.Message {
	c.mu.Lock()
	if c.quiz == session && c.quizTimer != nil {
		c.quizTimer.Stop()
		c.quizTimer = nil
	}
	c.mu.Unlock()

	if out == nil {
		o := session.Outcome()
		out = &o
	}

	saved, err := session.Save(c.handler.store)
	if err != nil {
		logger.QuizWarn("saving score of %s: %v", session.Nickname(), err)
	}
	scores, _ := c.handler.topScores(session.Difficulty())
	logger.QuizInfo("%s finished %s quiz: %s with score %d", session.Nickname(), session.Difficulty(), out.State, out.Score)

	msg := shared.Message{
		Type:       shared.MessageTypeQuizOver,
		Nickname:   session.Nickname(),
		Difficulty: string(session.Difficulty()),
		Score:      out.Score,
		State:      out.State,
		TimedOut:   out.TimedOut,
		Saved:      saved,
		HighScores: scores,
	}
	if !out.TimedOut {
		correct := out.Correct
		msg.Correct = &correct
		msg.Expected = shared.FormatNumber(out.Expected)
	}
	return msg
}

func (c *Client) stopQuizTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.quizTimer != nil {
		c.quizTimer.Stop()
		c.quizTimer = nil
	}
}

func (c *Client) highScores(raw string) shared.Message {
	difficulty, err := quiz.ParseDifficulty(raw)
	if err != nil {
		return errorMessage("", err)
	}
	scores, err := c.handler.topScores(difficulty)
	if err != nil {
		return errorMessage("", errors.New("high scores unavailable"))
	}
	return shared.Message{
		Type:       shared.MessageTypeHighScores,
		Difficulty: string(difficulty),
		HighScores: scores,
	}
}
