package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/logger"
)

// ReminderRepository — журнал отправленных напоминаний (reminders/{key}).
type ReminderRepository struct {
	pool *pgxpool.Pool
}

func NewReminderRepository(pool *pgxpool.Pool) *ReminderRepository {
	return &ReminderRepository{pool: pool}
}

// Claim вставляет отметку; ON CONFLICT DO NOTHING даёт ровно одного победителя.
func (r *ReminderRepository) Claim(ctx context.Context, key, eventID string, at time.Time) (bool, error) {
	defer logger.DeferLogDuration("reminder.Claim", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO reminders (key, event_id, sent_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO NOTHING`,
		key, eventID, at,
	)
	if err != nil {
		return false, apperr.Transport("reminderRepo.Claim", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Prune удаляет отметки старше before.
func (r *ReminderRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	defer logger.DeferLogDuration("reminder.Prune", time.Now())()
	tag, err := r.pool.Exec(ctx, `DELETE FROM reminders WHERE sent_at < $1`, before)
	if err != nil {
		return 0, apperr.Transport("reminderRepo.Prune", err)
	}
	return tag.RowsAffected(), nil
}
