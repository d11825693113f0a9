// Package terminal serves the calculator over HTTP and websockets.
package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/antibyte/retrocalc/pkg/auth"
	"github.com/antibyte/retrocalc/pkg/calculator"
	"github.com/antibyte/retrocalc/pkg/configuration"
	"github.com/antibyte/retrocalc/pkg/logger"
	"github.com/antibyte/retrocalc/pkg/quiz"
	"github.com/antibyte/retrocalc/pkg/shared"
	"github.com/antibyte/retrocalc/pkg/storage"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Store is the persistence the handler needs. storage.Store implements it.
type Store interface {
	quiz.Scoreboard
	RecordCalculation(sessionID, expression string, result float64) error
	RemoveCalculation(sessionID, expression string) error
	LoadHistory(sessionID string) (map[string]float64, error)
}

// Handler owns the router, the websocket clients and the HTTP server.
type Handler struct {
	router         *httprouter.Router
	store          Store
	persistHistory bool
	clients        *ClientManager
	validator      *JSONValidator
	upgrader       websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
}

// NewHandler wires every route. store must not be nil.
func NewHandler(store Store) *Handler {
	h := &Handler{
		router:         httprouter.New(),
		store:          store,
		persistHistory: configuration.GetBool("Storage", "persist_history", true),
		clients:        NewClientManager(),
		validator:      NewJSONValidator(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     checkOrigin(configuration.GetString("Network", "allowed_origins", "")),
	}

	h.router.HandlerFunc(http.MethodPost, "/api/session", auth.HandleCreateSession)
	h.router.HandlerFunc(http.MethodOptions, "/api/session", auth.HandleCreateSession)
	h.router.HandlerFunc(http.MethodGet, "/api/session", auth.HandleTokenValidation)
	h.router.HandlerFunc(http.MethodDelete, "/api/session", auth.HandleLogout)
	h.router.POST("/api/calculate", h.handleCalculate)
	h.router.GET("/api/highscores/:difficulty", h.handleHighScores)
	h.router.GET("/api/health", h.handleHealth)
	h.router.HandlerFunc(http.MethodGet, "/ws", auth.RequirePlayerToken(h.HandleWebSocket))

	return h
}

// checkOrigin allows every origin when allowed is empty, otherwise only the
// comma separated list.
func checkOrigin(allowed string) func(*http.Request) bool {
	origins := make(map[string]bool)
	for _, o := range strings.Split(allowed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(origins) == 0 || origin == "" {
			return true
		}
		if !origins[origin] {
			logger.SecurityWarn("Rejected websocket origin %s from %s", origin, r.RemoteAddr)
			return false
		}
		return true
	}
}

// ServeHTTP makes the handler usable with any http.Server
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (h *Handler) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	h.mu.Lock()
	h.server = server
	h.mu.Unlock()

	logger.ServerInfo("listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes every websocket client and stops the server started by Start.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.clients.CloseAll()

	h.mu.Lock()
	server := h.server
	h.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// ClientCount returns the number of open websocket connections
func (h *Handler) ClientCount() int {
	return h.clients.GetClientCount()
}

type calculateRequest struct {
	Expression string `json:"expression"`
}

// handleCalculate evaluates one expression without history
func (h *Handler) handleCalculate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req calculateRequest
	body := http.MaxBytesReader(w, r.Body, getMaxMessageSize())
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, shared.Message{Type: shared.MessageTypeError, Error: "invalid request format"})
		return
	}

	calc := calculator.NewFromConfig()
	result, err := calc.Calculate(req.Expression)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorMessage(req.Expression, err))
		return
	}
	writeJSON(w, http.StatusOK, shared.Message{
		Type:       shared.MessageTypeResult,
		Expression: req.Expression,
		Result:     shared.FormatNumber(result),
	})
}

func (h *Handler) handleHighScores(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	difficulty, err := quiz.ParseDifficulty(ps.ByName("difficulty"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, shared.Message{Type: shared.MessageTypeError, Error: err.Error()})
		return
	}
	scores, err := h.topScores(difficulty)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, shared.Message{Type: shared.MessageTypeError, Error: "high scores unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, shared.Message{
		Type:       shared.MessageTypeHighScores,
		Difficulty: string(difficulty),
		HighScores: scores,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	areas := make(map[string]bool)
	for _, area := range logger.ListAreas() {
		areas[string(area)] = logger.GetAreaStatus(area)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"clients":   h.clients.GetClientCount(),
		"log_areas": areas,
	})
}

func (h *Handler) topScores(d quiz.Difficulty) ([]storage.ScoreEntry, error) {
	scores, err := h.store.TopScores(string(d), quiz.HighScoreLimit())
	if err != nil {
		logger.ServerError("loading high scores for %s: %v", d, err)
	}
	return scores, err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ServerWarn("encoding response: %v", err)
	}
}

// errorCodes maps pipeline failures to stable wire codes. ErrEmptyResult
// comes before ErrMalformedExpression because it wraps it.
var errorCodes = []struct {
	err  error
	code string
}{
	{calculator.ErrInvalidToken, "invalid_token"},
	{calculator.ErrLeadingOperator, "leading_operator"},
	{calculator.ErrTrailingOperator, "trailing_operator"},
	{calculator.ErrAdjacentNumbers, "adjacent_numbers"},
	{calculator.ErrAdjacentOperators, "adjacent_operators"},
	{calculator.ErrUnknownOperator, "unknown_operator"},
	{calculator.ErrEmptyResult, "empty_result"},
	{calculator.ErrMalformedExpression, "malformed_expression"},
	{calculator.ErrDivisionByZero, "division_by_zero"},
	{calculator.ErrExpressionTooLong, "expression_too_long"},
	{quiz.ErrSessionFinished, "quiz_finished"},
	{quiz.ErrInvalidNickname, "invalid_nickname"},
	{quiz.ErrUnknownDifficulty, "unknown_difficulty"},
	{errNoQuiz, "no_quiz"},
}

func errorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "error"
}

// errorMessage renders err for the wire, including token details for
// expression errors.
func errorMessage(expression string, err error) shared.Message {
	msg := shared.Message{
		Type:       shared.MessageTypeError,
		Expression: expression,
		Error:      err.Error(),
		Code:       errorCode(err),
	}
	var ee *calculator.ExpressionError
	if errors.As(err, &ee) {
		msg.Category = ee.Category()
		msg.Token = ee.Token
		if ee.Position >= 0 {
			pos := ee.Position
			msg.Position = &pos
		}
	}
	return msg
}
