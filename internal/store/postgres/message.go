package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpflow/rfpflow/internal/domain"
)

// MessageRepo persists the append-only chat log. The seq column is a bigserial
// breaking ordering ties between messages written in the same instant.
type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Append(ctx context.Context, m *domain.ChatMessage) error {
	metadata, err := json.Marshal(m.Metadata)
	if err != nil {
		return fmt.Errorf("messageRepo.Append: marshal metadata: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO chat_messages (id, session_id, message_type, content, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING seq`,
		m.ID, m.SessionID, m.MessageType, m.Content, metadata, m.CreatedAt,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("messageRepo.Append: %w", err)
	}

	return nil
}

func (r *MessageRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, message_type, content, metadata, seq, created_at
		 FROM chat_messages WHERE session_id = $1
		 ORDER BY created_at, seq
		 LIMIT $2 OFFSET $3`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var metadata []byte

		err = rows.Scan(&m.ID, &m.SessionID, &m.MessageType, &m.Content, &metadata, &m.Seq, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("messageRepo.ListBySession: scan: %w", err)
		}

		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("messageRepo.ListBySession: unmarshal metadata: %w", err)
			}
		}
		msgs = append(msgs, &m)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("messageRepo.ListBySession: rows: %w", err)
	}

	return msgs, nil
}

func (r *MessageRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64

	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM chat_messages WHERE session_id = $1`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("messageRepo.CountBySession: %w", err)
	}

	return count, nil
}
