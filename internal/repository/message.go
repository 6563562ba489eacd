package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
)

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func (r *MessageRepository) Append(ctx context.Context, m *model.ChatMessage) error {
	defer logger.DeferLogDuration("message.Append", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, group_id, sender, message, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.GroupID, m.Sender, m.Message, m.Timestamp,
	)
	if err != nil {
		return apperr.Transport("messageRepo.Append", err)
	}
	return nil
}

// ListByGroup — история чата по времени; id (ULID) разрешает совпадения.
func (r *MessageRepository) ListByGroup(ctx context.Context, groupID string) ([]model.ChatMessage, error) {
	defer logger.DeferLogDuration("message.ListByGroup", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, group_id, sender, message, created_at
		 FROM chat_messages WHERE group_id = $1
		 ORDER BY created_at, id`, groupID,
	)
	if err != nil {
		return nil, apperr.Transport("messageRepo.ListByGroup query", err)
	}
	defer rows.Close()

	msgs := make([]model.ChatMessage, 0, 50)
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.ID, &m.GroupID, &m.Sender, &m.Message, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("messageRepo.ListByGroup scan: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transport("messageRepo.ListByGroup rows", err)
	}
	return msgs, nil
}
