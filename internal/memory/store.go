// Package memory persists conversation history and analysis records in
// SQLite so context survives restarts.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"triagebot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps conversations, messages, and file analysis records.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id          TEXT PRIMARY KEY,
		chat_key    TEXT NOT NULL UNIQUE,
		title       TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conv ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS analyses (
		id             TEXT PRIMARY KEY,
		chat_key       TEXT NOT NULL,
		file_name      TEXT NOT NULL,
		declared_size  INTEGER DEFAULT 0,
		bytes_read     INTEGER DEFAULT 0,
		category       TEXT NOT NULL,
		truncated      INTEGER DEFAULT 0,
		summary        TEXT,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_chat ON analyses(chat_key, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetOrCreateConversation returns the conversation for a chat key, creating
// it on first contact.
func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, chatKey string) (*domain.Conversation, error) {
	conv, err := s.getConversation(ctx, chatKey)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	now := time.Now()
	conv = &domain.Conversation{
		ID:        uuid.NewString(),
		ChatKey:   chatKey,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, chat_key, title, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.ChatKey, conv.Title, conv.CreatedAt, conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	// A concurrent insert can win the race; re-read to get the canonical row.
	return s.getConversation(ctx, chatKey)
}

func (s *SQLiteStore) getConversation(ctx context.Context, chatKey string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chat_key, title, created_at, updated_at FROM conversations WHERE chat_key = ?`, chatKey,
	).Scan(&conv.ID, &conv.ChatKey, &title, &conv.CreatedAt, &conv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	conv.Title = title.String
	return &conv, nil
}

// AppendMessage records one turn of a conversation and bumps its timestamp.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, role, content, now,
	)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at=? WHERE id=?`, now, conversationID,
	)
	return err
}

// RecentMessages returns the last limit turns in chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.MessageRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages WHERE conversation_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, conversationID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []domain.MessageRecord
	for rows.Next() {
		var m domain.MessageRecord
		var content sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &content, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Content = content.String
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClearMessages drops the history of one conversation.
func (s *SQLiteStore) ClearMessages(ctx context.Context, conversationID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	return err
}

// RecordAnalysis persists the outcome of one file analysis.
func (s *SQLiteStore) RecordAnalysis(ctx context.Context, rec domain.AnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	truncated := 0
	if rec.Truncated {
		truncated = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, chat_key, file_name, declared_size, bytes_read, category, truncated, summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChatKey, rec.FileName, rec.DeclaredSize, rec.BytesRead, rec.Category, truncated, rec.Summary, rec.CreatedAt,
	)
	return err
}

// RecentAnalyses returns the latest analyses for a chat, newest first.
func (s *SQLiteStore) RecentAnalyses(ctx context.Context, chatKey string, limit int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_key, file_name, declared_size, bytes_read, category, truncated, summary, created_at
		 FROM analyses WHERE chat_key = ? ORDER BY created_at DESC, id DESC LIMIT ?`, chatKey, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.AnalysisRecord
	for rows.Next() {
		var r domain.AnalysisRecord
		var truncated int
		var summary sql.NullString
		if err := rows.Scan(&r.ID, &r.ChatKey, &r.FileName, &r.DeclaredSize, &r.BytesRead, &r.Category, &truncated, &summary, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Truncated = truncated != 0
		r.Summary = summary.String
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
