package store

import (
	"database/sql"
	"fmt"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rahul/medcrew/internal/agent"
)

// HistoryStore keeps chat transcripts for the gateways. The pipeline core
// never touches it.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages (chat_id, id);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("init history store: %w", err)
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

func (h *HistoryStore) AddMessage(chatID string, role string, content string) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := h.DB.Exec(query, chatID, role, content)
	return err
}

func (h *HistoryStore) ClearHistory(chatID string) error {
	query := `DELETE FROM messages WHERE chat_id = ?`
	_, err := h.DB.Exec(query, chatID)
	return err
}

// GetHistory returns the last limit messages of a chat in chronological order.
func (h *HistoryStore) GetHistory(chatID string, limit int) ([]agent.Message, error) {
	rows, err := h.recent(chatID, limit)
	if err != nil {
		return nil, err
	}

	history := make([]agent.Message, 0, len(rows))
	for _, m := range rows {
		history = append(history, agent.Message{Role: normalizeRole(m.Role), Content: m.Content})
	}
	return history, nil
}

// Messages returns the stored rows of a chat, oldest first.
func (h *HistoryStore) Messages(chatID string, limit int) ([]StoredMessage, error) {
	return h.recent(chatID, limit)
}

func (h *HistoryStore) recent(chatID string, limit int) ([]StoredMessage, error) {
	query := `SELECT id, chat_id, role, content, timestamp FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.Query(query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Role, &m.Content, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func normalizeRole(role string) agent.Role {
	switch role {
	case "assistant", "ai":
		return agent.RoleAssistant
	default:
		return agent.RoleUser
	}
}
