package terminal

import (
	"encoding/json"
	"errors"
	"net"
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

	"github.com/gorilla/websocket"
)

// WebSocket settings come from the [Network] section

func getWriteWait() time.Duration {
	return configuration.GetDuration("Network", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Network", "pong_timeout", 90*time.Second)
}

func getPingPeriod() time.Duration {
	pongWait := getPongWait()
	return (pongWait * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Network", "max_message_size_kb", 16) * 1024)
}

func getMaxChannelBuffer() int {
	return configuration.GetInt("Network", "max_channel_buffer", 256)
}

// Client is one websocket connection. It owns its calculator; only the
// read pump touches it. The quiz fields are shared with the countdown timer.
type Client struct {
	handler   *Handler
	conn      *websocket.Conn
	send      chan []byte
	shutdown  chan struct{}
	closeOnce sync.Once

	sessionID string
	nickname  string
	calc      *calculator.Calculator

	mu        sync.Mutex
	quiz      *quiz.Session
	quizTimer *time.Timer
}

// HandleWebSocket upgrades an authenticated request. It must run behind
// auth.RequirePlayerToken.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ipAddress := clientIP(r)
	if err := h.clients.CheckRateLimit(ipAddress); err != nil {
		http.Error(w, "Too many connections", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ServerWarn("WebSocket upgrade failed for %s: %v", ipAddress, err)
		return
	}

	client := &Client{
		handler:   h,
		conn:      conn,
		send:      make(chan []byte, getMaxChannelBuffer()),
		shutdown:  make(chan struct{}),
		sessionID: claims.SessionID,
		nickname:  claims.Nickname,
		calc:      calculator.NewFromConfig(calculator.WithHistory(h.restoreHistory(claims.SessionID))),
	}
	if err := h.clients.AddClient(client); err != nil {
		logger.SecurityWarn("Connection from %s rejected: %v", ipAddress, err)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server full"),
			time.Now().Add(getWriteWait()))
		conn.Close()
		return
	}
	logger.ServerInfo("client connected: session %s (%s) from %s", client.sessionID, client.nickname, ipAddress)

	go client.writePump()

	client.sendMessage(shared.Message{
		Type:      shared.MessageTypeSession,
		SessionID: client.sessionID,
		Nickname:  client.nickname,
	})
	client.sendHistory("")

	go client.readPump()
}

// restoreHistory loads the stored history of a session; failures start empty.
func (h *Handler) restoreHistory(sessionID string) *calculator.History {
	history := calculator.NewHistory()
	if !h.persistHistory {
		return history
	}
	entries, err := h.store.LoadHistory(sessionID)
	if err != nil {
		logger.ServerError("restoring history of %s: %v", sessionID, err)
		return history
	}
	for expr, v := range entries {
		history.Add(expr, v)
	}
	return history
}

func clientIP(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// close stops both pumps; safe to call more than once.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.shutdown)
		c.stopQuizTimer()
		c.handler.clients.RemoveClient(c)
		logger.ServerInfo("client disconnected: session %s", c.sessionID)
	})
}

// sendMessage queues msg for the write pump. Messages to a closed client
// or a full queue are dropped.
func (c *Client) sendMessage(msg shared.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.ServerError("marshal %s message: %v", msg.Type, err)
		return
	}
	select {
	case <-c.shutdown:
	case c.send <- data:
	default:
		logger.ServerWarn("send queue full for session %s, dropping %s", c.sessionID, msg.Type)
	}
}

// readPump decodes requests until the connection fails or is closed
func (c *Client) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.ServerWarn("unexpected close for session %s: %v", c.sessionID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.sendError("", errors.New("only text messages are accepted"))
			continue
		}

		msg, err := c.handler.validator.Decode(data)
		if err != nil {
			logger.SecurityInfo("invalid frame from session %s: %v", c.sessionID, err)
			c.sendError("", err)
			continue
		}
		c.dispatch(msg)
	}
}

// writePump sends queued messages and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.shutdown:
			c.drain()
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// drain flushes whatever is still queued, one frame per message
func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// dispatch runs one request on the read pump goroutine
func (c *Client) dispatch(msg shared.Message) {
	var reply shared.Message
	switch msg.Type {
	case shared.MessageTypeCalculate:
		reply = c.calculate(msg.Expression)
	case shared.MessageTypeHistory:
		c.sendHistory(msg.RequestID)
		return
	case shared.MessageTypeHistoryRemove:
		c.removeFromHistory(msg.Expression)
		c.sendHistory(msg.RequestID)
		return
	case shared.MessageTypeQuizStart:
		reply = c.startQuiz(msg)
	case shared.MessageTypeAnswer:
		reply = c.answer(msg.Answer)
	case shared.MessageTypeHighScores:
		reply = c.highScores(msg.Difficulty)
	default:
		reply = shared.Message{Type: shared.MessageTypeError, Error: "unknown message type: " + string(msg.Type), Code: "unknown_type"}
	}
	reply.RequestID = msg.RequestID
	c.sendMessage(reply)
}

func (c *Client) sendError(requestID string, err error) {
	reply := errorMessage("", err)
	reply.RequestID = requestID
	c.sendMessage(reply)
}

func (c *Client) sendHistory(requestID string) {
	c.sendMessage(shared.Message{
		Type:      shared.MessageTypeHistory,
		RequestID: requestID,
		History:   shared.FormatHistory(c.calc.GetHistory()),
	})
}

func (c *Client) calculate(expression string) shared.Message {
	result, err := c.calc.Calculate(expression)
	if err != nil {
		return errorMessage(expression, err)
	}
	c.persist(expression, result)
	return shared.Message{
		Type:       shared.MessageTypeResult,
		Expression: expression,
		Result:     shared.FormatNumber(result),
	}
}

// persist mirrors a history entry of the calculator into the store
func (c *Client) persist(expression string, result float64) {
	if !c.handler.persistHistory {
		return
	}
	if err := c.handler.store.RecordCalculation(c.sessionID, expression, result); err != nil {
		logger.ServerError("persisting %q for %s: %v", expression, c.sessionID, err)
	}
}

func (c *Client) removeFromHistory(expression string) {
	c.calc.RemoveFromHistory(expression)
	if c.handler.persistHistory {
		if err := c.handler.store.RemoveCalculation(c.sessionID, expression); err != nil {
			logger.ServerError("removing %q for %s: %v", expression, c.sessionID, err)
		}
	}
}
