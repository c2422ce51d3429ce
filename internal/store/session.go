package store

import (
	"database/sql"
	"encoding/json"

	_ "github.com/glebarez/go-sqlite"
	"github.com/tmc/langchaingo/llms"

	"github.com/nsharma/weft/internal/engine"
)

// SessionStore persists per-chat state: message history, recurring goals,
// blackboard snapshots and execution reports.
type SessionStore struct {
	DB *sql.DB
}

func NewSessionStore(dbPath string) (*SessionStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS goals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			goal TEXT,
			interval_seconds INTEGER,
			last_run DATETIME,
			status TEXT DEFAULT 'active'
		);`,
		`CREATE TABLE IF NOT EXISTS blackboards (
			chat_id TEXT PRIMARY KEY,
			snapshot TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			plan_id TEXT,
			status TEXT,
			report TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err = db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &SessionStore{DB: db}, nil
}

func (s *SessionStore) AddMessage(chatID string, role string, content string) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := s.DB.Exec(query, chatID, role, content)
	return err
}

func (s *SessionStore) GetHistory(chatID string, limit int) ([]llms.MessageContent, error) {
	query := `SELECT role, content FROM messages WHERE chat_id = ? ORDER BY timestamp DESC LIMIT ?`
	rows, err := s.DB.Query(query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var msgRole llms.ChatMessageType
		switch role {
		case "human":
			msgRole = llms.ChatMessageTypeHuman
		case "ai":
			msgRole = llms.ChatMessageTypeAI
		case "system":
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}

		history = append(history, llms.MessageContent{
			Role: msgRole,
			Parts: []llms.ContentPart{
				llms.TextPart(content),
			},
		})
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

func (s *SessionStore) SaveBoard(chatID string, snapshot map[string]any) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	query := `INSERT INTO blackboards (chat_id, snapshot, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(chat_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`
	_, err = s.DB.Exec(query, chatID, string(data))
	return err
}

func (s *SessionStore) LoadBoard(chatID string) (map[string]any, error) {
	var raw string
	err := s.DB.QueryRow(`SELECT snapshot FROM blackboards WHERE chat_id = ?`, chatID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot map[string]any
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *SessionStore) SaveReport(chatID string, report *engine.ExecutionReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	query := `INSERT INTO reports (chat_id, plan_id, status, report) VALUES (?, ?, ?, ?)`
	_, err = s.DB.Exec(query, chatID, report.PlanID, string(report.Status), string(data))
	return err
}

func (s *SessionStore) AddGoal(chatID string, goal string, intervalSeconds int) error {
	query := `INSERT INTO goals (chat_id, goal, interval_seconds, last_run) VALUES (?, ?, ?, datetime('now', '-365 days'))`
	_, err := s.DB.Exec(query, chatID, goal, intervalSeconds)
	return err
}

func (s *SessionStore) GetDueGoals() ([]map[string]any, error) {
	query := `
		SELECT id, chat_id, goal, interval_seconds, last_run
		FROM goals
		WHERE status = 'active'
		AND (last_run IS NULL OR (julianday('now') - julianday(last_run)) * 86400 >= interval_seconds)`
	rows, err := s.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []map[string]any
	for rows.Next() {
		var id, interval int
		var chatID, goal, lastRun string
		if err := rows.Scan(&id, &chatID, &goal, &interval, &lastRun); err != nil {
			return nil, err
		}
		goals = append(goals, map[string]any{
			"id":               id,
			"chat_id":          chatID,
			"goal":             goal,
			"interval_seconds": interval,
		})
	}
	return goals, nil
}

func (s *SessionStore) UpdateGoalLastRun(id int) error {
	query := `UPDATE goals SET last_run = datetime('now') WHERE id = ?`
	_, err := s.DB.Exec(query, id)
	return err
}

func (s *SessionStore) DeleteGoal(chatID string, goalID int) error {
	query := `DELETE FROM goals WHERE chat_id = ? AND id = ?`
	_, err := s.DB.Exec(query, chatID, goalID)
	return err
}

func (s *SessionStore) ClearGoals(chatID string) error {
	query := `DELETE FROM goals WHERE chat_id = ?`
	_, err := s.DB.Exec(query, chatID)
	return err
}
