package domain

import "time"

// Conversation groups the message history for one chat.
type Conversation struct {
	ID        string
	ChatKey   string // "<channel>:<chatID>"
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRecord is a persisted chat turn.
type MessageRecord struct {
	ID             int64
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// AnalysisRecord is the persisted summary row for one analyzed file.
// Only the rendered summary survives; file bytes are never retained.
type AnalysisRecord struct {
	ID           string
	ChatKey      string
	FileName     string
	DeclaredSize int64
	BytesRead    int64
	Category     string
	Truncated    bool
	Summary      string
	CreatedAt    time.Time
}
