package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/antibyte/retrocalc/pkg/logger"
	"github.com/antibyte/retrocalc/pkg/quiz"
)

// SessionRequest is the body of POST /api/session
type SessionRequest struct {
	Nickname string `json:"nickname"`
}

// SessionResponse is returned by the session handlers
type SessionResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	Message   string `json:"message"`
}

func setCORSHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

// HandleCreateSession issues a player token for a nickname. A request that
// already carries a valid token keeps its session id, so history stored for
// that session is restored on the next connection.
func HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "POST, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for session creation: %s", r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SessionRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		logger.AuthWarn("Invalid JSON in session request from %s: %v", getClientIP(r), err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	nickname, err := quiz.ValidateNickname(req.Nickname, quiz.MaxNicknameLength())
	if err != nil {
		respondWithError(w, "Nickname must be 1 to "+strconv.Itoa(quiz.MaxNicknameLength())+" characters", http.StatusBadRequest)
		return
	}

	sessionID := ""
	if existing, err := ExtractTokenFromRequest(r); err == nil {
		if claims, err := ValidatePlayerToken(existing); err == nil {
			sessionID = claims.SessionID
		}
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	token, err := GeneratePlayerToken(sessionID, nickname)
	if err != nil {
		logger.SecurityWarn("Failed to generate token for session %s: %v", sessionID, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(getTokenExpiration().Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	logger.AuthInfo("Session %s created for %s from %s", sessionID, nickname, getClientIP(r))
	writeJSON(w, http.StatusOK, SessionResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Nickname:  nickname,
		Message:   "Session created successfully",
	})
}

// HandleTokenValidation reports the session behind the request's token
func HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "GET, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	tokenString, err := ExtractTokenFromRequest(r)
	if err != nil {
		respondWithError(w, "Token not found", http.StatusUnauthorized)
		return
	}
	claims, err := ValidatePlayerToken(tokenString)
	if err != nil {
		logger.AuthWarn("Token validation failed: %v", err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Success:   true,
		SessionID: claims.SessionID,
		Nickname:  claims.Nickname,
		Message:   "Token valid",
	})
}

// HandleLogout clears the token cookie
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w, "DELETE, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, SessionResponse{Success: true, Message: "Logout successful"})
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.AuthWarn("Failed to encode response: %v", err)
	}
}

func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, SessionResponse{Success: false, Message: message})
}
