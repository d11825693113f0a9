// Package shared holds the wire format spoken over the websocket.
package shared

import (
	"strconv"

	"github.com/antibyte/retrocalc/pkg/storage"
)

// MessageType names a websocket message
type MessageType string

// Requests are sent by the client, replies by the server.
const (
	MessageTypeCalculate     MessageType = "calculate"      // request: evaluate Expression
	MessageTypeResult        MessageType = "result"         // reply: Expression = Result
	MessageTypeError         MessageType = "error"          // reply: any failure
	MessageTypeHistory       MessageType = "history"        // request and reply: full history
	MessageTypeHistoryRemove MessageType = "history_remove" // request: drop Expression
	MessageTypeQuizStart     MessageType = "quiz_start"     // request: Difficulty, optional Nickname
	MessageTypeQuestion      MessageType = "question"       // reply: next Question
	MessageTypeAnswer        MessageType = "answer"         // request: Answer to the current question
	MessageTypeQuizOver      MessageType = "quiz_over"      // reply: final score and high scores
	MessageTypeHighScores    MessageType = "high_scores"    // request and reply
	MessageTypeSession       MessageType = "session"        // reply: sent once after connecting
)

// Message is one websocket frame. Numbers travel as strings so that
// +Inf, -Inf and NaN survive JSON.
type Message struct {
	Type MessageType `json:"type"`

	// Echoed back so clients can pair replies with requests
	RequestID string `json:"requestId,omitempty"`

	// SESSION
	SessionID string `json:"sessionId,omitempty"`
	Nickname  string `json:"nickname,omitempty"`

	// CALCULATE, RESULT, HISTORY_REMOVE
	Expression string `json:"expression,omitempty"`
	Result     string `json:"result,omitempty"`

	// ERROR
	Error    string `json:"error,omitempty"`
	Category string `json:"category,omitempty"` // SYNTAX ERROR / EVALUATION ERROR
	Code     string `json:"code,omitempty"`     // machine readable kind, e.g. "adjacent_numbers"
	Token    string `json:"token,omitempty"`
	Position *int   `json:"position,omitempty"`

	// HISTORY
	History map[string]string `json:"history,omitempty"`

	// QUIZ
	Difficulty  string               `json:"difficulty,omitempty"`
	Question    string               `json:"question,omitempty"`
	Answer      string               `json:"answer,omitempty"`
	Correct     *bool                `json:"correct,omitempty"`
	Expected    string               `json:"expected,omitempty"`
	Score       int                  `json:"score,omitempty"`
	State       string               `json:"state,omitempty"`
	TimedOut    bool                 `json:"timedOut,omitempty"`
	RemainingMS int64                `json:"remainingMs,omitempty"`
	Saved       bool                 `json:"saved,omitempty"`
	HighScores  []storage.ScoreEntry `json:"highScores,omitempty"`
}

// FormatNumber renders a result for the wire
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// FormatHistory converts a history snapshot for the wire
func FormatHistory(h map[string]float64) map[string]string {
	out := make(map[string]string, len(h))
	for expr, v := range h {
		out[expr] = FormatNumber(v)
	}
	return out
}
