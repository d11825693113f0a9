// Package storage persists calculation history and quiz high scores in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antibyte/retrocalc/pkg/logger"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrInvalidScore is returned by SaveScore for entries that cannot be stored.
var ErrInvalidScore = errors.New("invalid score entry")

// ScoreEntry is one row of the high score table
type ScoreEntry struct {
	ID         string    `json:"id"`
	Nickname   string    `json:"nickname"`
	Difficulty string    `json:"difficulty"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is a wrapper around the SQLite database connection
type Store struct {
	conn *sql.DB
	now  func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema exists.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := initDB(path)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	logger.DatabaseDebug("opened %s", path)
	return &Store{conn: db, now: time.Now}, nil
}

// initDB initializes the SQLite database connection
func initDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection serializes writers and keeps :memory: databases intact
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS calculations (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			expression TEXT NOT NULL,
			result TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (session_id, expression)
		)`,
		`CREATE TABLE IF NOT EXISTS high_scores (
			id TEXT PRIMARY KEY,
			nickname TEXT NOT NULL,
			difficulty TEXT NOT NULL,
			score INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_high_scores_difficulty ON high_scores(difficulty, score)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Close closes the underlying connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// RecordCalculation stores result for expression in the given session,
// replacing an earlier result for the same expression.
func (s *Store) RecordCalculation(sessionID, expression string, result float64) error {
	_, err := s.conn.Exec(`
		INSERT INTO calculations (id, session_id, expression, result, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id, expression)
		DO UPDATE SET result = excluded.result, created_at = excluded.created_at`,
		uuid.New().String(), sessionID, expression, formatResult(result), s.now().UnixNano())
	if err != nil {
		logger.DatabaseError("record calculation for %s: %v", sessionID, err)
		return fmt.Errorf("error recording calculation: %w", err)
	}
	return nil
}

// RemoveCalculation deletes one history entry; missing entries are ignored.
func (s *Store) RemoveCalculation(sessionID, expression string) error {
	_, err := s.conn.Exec(`DELETE FROM calculations WHERE session_id = ? AND expression = ?`,
		sessionID, expression)
	if err != nil {
		return fmt.Errorf("error removing calculation: %w", err)
	}
	return nil
}

// LoadHistory returns every stored result of a session.
func (s *Store) LoadHistory(sessionID string) (map[string]float64, error) {
	rows, err := s.conn.Query(`SELECT expression, result FROM calculations WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error loading history: %w", err)
	}
	defer rows.Close()

	history := make(map[string]float64)
	for rows.Next() {
		var expression, text string
		if err := rows.Scan(&expression, &text); err != nil {
			return nil, fmt.Errorf("error scanning history row: %w", err)
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			logger.DatabaseError("skipping unreadable result %q for %q", text, expression)
			continue
		}
		history[expression] = v
	}
	return history, rows.Err()
}

// SaveScore inserts a high score entry. ID and CreatedAt are filled in
// when empty; the stored entry is returned.
func (s *Store) SaveScore(entry ScoreEntry) (ScoreEntry, error) {
	entry.Nickname = strings.TrimSpace(entry.Nickname)
	if entry.Nickname == "" || entry.Difficulty == "" || entry.Score < 0 {
		return ScoreEntry{}, ErrInvalidScore
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	_, err := s.conn.Exec(`INSERT INTO high_scores (id, nickname, difficulty, score, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Nickname, entry.Difficulty, entry.Score, entry.CreatedAt.UnixNano())
	if err != nil {
		logger.DatabaseError("save score for %s: %v", entry.Nickname, err)
		return ScoreEntry{}, fmt.Errorf("error saving score: %w", err)
	}
	logger.DatabaseDebug("saved score %d for %s (%s)", entry.Score, entry.Nickname, entry.Difficulty)
	return entry, nil
}

// TopScores returns at most limit entries of a difficulty, best first.
// Equal scores keep the order in which they were reached.
func (s *Store) TopScores(difficulty string, limit int) ([]ScoreEntry, error) {
	if limit <= 0 {
		return []ScoreEntry{}, nil
	}
	rows, err := s.conn.Query(`
		SELECT id, nickname, difficulty, score, created_at FROM high_scores
		WHERE difficulty = ?
		ORDER BY score DESC, created_at ASC, rowid ASC
		LIMIT ?`, difficulty, limit)
	if err != nil {
		return nil, fmt.Errorf("error loading high scores: %w", err)
	}
	defer rows.Close()

	scores := []ScoreEntry{}
	for rows.Next() {
		var e ScoreEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.Nickname, &e.Difficulty, &e.Score, &created); err != nil {
			return nil, fmt.Errorf("error scanning high score row: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		scores = append(scores, e)
	}
	return scores, rows.Err()
}

// formatResult keeps +Inf, -Inf and NaN readable by strconv.ParseFloat
func formatResult(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
