// Package store provides a SQLite-backed chat history store. Every exchange
// (question and answer) is persisted under a chat ID so that follow-up
// questions can carry the most recent turns into the prompt, and so the HTTP
// shell can return a conversation's transcript.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrEmptyChatID is returned when a write is attempted without a chat ID.
var ErrEmptyChatID = errors.New("store: chat id is required")

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser is a question asked by the end user.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the pipeline.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a chat.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Intent is the classified question type; set on assistant turns only.
	Intent    string    `json:"questionType,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// ConversationStore persists and retrieves chat history keyed by chat ID.
// Implementations must be safe for concurrent use.
type ConversationStore interface {
	// Append persists a single message.
	Append(ctx context.Context, chatID string, role Role, content string) error
	// AppendExchange persists a question and its answer atomically.
	AppendExchange(ctx context.Context, chatID, question, answer, intent string) error
	// Recent returns the last n messages, oldest-first.
	Recent(ctx context.Context, chatID string, n int) ([]Message, error)
	// History returns every message of the chat, oldest-first.
	History(ctx context.Context, chatID string) ([]Message, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a ConversationStore backed by a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ ConversationStore = (*SQLiteStore)(nil)

// DefaultDBPath returns MEDCHAT_HISTORY_DB when set, otherwise
// ~/.medchat/history.db. The parent directory is created if needed.
func DefaultDBPath() (string, error) {
	if p := os.Getenv("MEDCHAT_HISTORY_DB"); p != "" {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return "", fmt.Errorf("store: could not create %s: %w", filepath.Dir(p), err)
		}
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".medchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer connection; SQLite serialises writes anyway and this
	// keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS messages (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id      TEXT    NOT NULL,
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    intent       TEXT    NOT NULL DEFAULT '',
    created_at   INTEGER NOT NULL  -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_messages_chat_id
    ON messages (chat_id, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

const insertMessage = `INSERT INTO messages (chat_id, role, content, intent, created_at) VALUES (?, ?, ?, ?, ?)`

// Append persists a single message.
func (s *SQLiteStore) Append(ctx context.Context, chatID string, role Role, content string) error {
	if chatID == "" {
		return ErrEmptyChatID
	}
	if _, err := s.db.ExecContext(ctx, insertMessage, chatID, string(role), content, "", time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// AppendExchange persists the user's question followed by the assistant's
// answer in one transaction, so a transcript never holds half an exchange.
func (s *SQLiteStore) AppendExchange(ctx context.Context, chatID, question, answer, intent string) error {
	if chatID == "" {
		return ErrEmptyChatID
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, insertMessage, chatID, string(RoleUser), question, "", now); err != nil {
		return fmt.Errorf("store: append question: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertMessage, chatID, string(RoleAssistant), answer, intent, now); err != nil {
		return fmt.Errorf("store: append answer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Recent returns the last n messages of the chat, oldest-first.
func (s *SQLiteStore) Recent(ctx context.Context, chatID string, n int) ([]Message, error) {
	const q = `
SELECT role, content, intent, created_at FROM (
    SELECT id, role, content, intent, created_at
    FROM   messages
    WHERE  chat_id = ?
    ORDER  BY id DESC
    LIMIT  ?
) ORDER BY id ASC`
	return s.query(ctx, "recent", q, chatID, n)
}

// History returns the full transcript of the chat, oldest-first.
func (s *SQLiteStore) History(ctx context.Context, chatID string) ([]Message, error) {
	const q = `SELECT role, content, intent, created_at FROM messages WHERE chat_id = ? ORDER BY id ASC`
	return s.query(ctx, "history", q, chatID)
}

func (s *SQLiteStore) query(ctx context.Context, op, q string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: %s: %w", op, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var (
			m    Message
			ts   int64
			role string
		)
		if err := rows.Scan(&role, &m.Content, &m.Intent, &ts); err != nil {
			return nil, fmt.Errorf("store: %s scan: %w", op, err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.UnixMilli(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s rows: %w", op, err)
	}
	return msgs, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
