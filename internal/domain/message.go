package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
)

// ChatMessage is one immutable turn of the conversation. Messages are
// append-only; ordering is by CreatedAt with insertion order (Seq) breaking ties.
type ChatMessage struct {
	ID          uuid.UUID      `json:"id"`
	SessionID   string         `json:"session_id"`
	MessageType MessageType    `json:"message_type"`
	Content     string         `json:"content"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Seq         int64          `json:"seq"`
	CreatedAt   time.Time      `json:"created_at"`
}

// MessageRepository stores the append-only message log. Entries are never
// mutated after insertion.
type MessageRepository interface {
	Append(ctx context.Context, m *ChatMessage) error
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*ChatMessage, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}
