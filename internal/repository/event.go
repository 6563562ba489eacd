package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
)

const eventCols = `id, title, date, description, location, kind, completed, assigned_to, group_ids, created_by, created_at, updated_at`

type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// scanEvent сканирует строку в model.Event (порядок соответствует eventCols).
func scanEvent(s interface{ Scan(dest ...any) error }, e *model.Event) error {
	var kind string
	if err := s.Scan(&e.ID, &e.Title, &e.Date, &e.Description, &e.Location, &kind, &e.Completed,
		&e.AssignedTo, &e.GroupIDs, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return err
	}
	e.Kind = model.EventKind(kind)
	return nil
}

func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	defer logger.DeferLogDuration("event.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO events (`+eventCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Title, e.Date, e.Description, e.Location, string(e.Kind), e.Completed,
		nonNil(e.AssignedTo), nonNil(e.GroupIDs), e.CreatedBy, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return apperr.Transport("eventRepo.Create", err)
	}
	return nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	defer logger.DeferLogDuration("event.GetByID", time.Now())()
	e := &model.Event{}
	row := r.pool.QueryRow(ctx, `SELECT `+eventCols+` FROM events WHERE id = $1`, id)
	if err := scanEvent(row, e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("event", id)
		}
		return nil, apperr.Transport("eventRepo.GetByID", err)
	}
	return e, nil
}

// Update перезаписывает запись целиком (last write wins).
func (r *EventRepository) Update(ctx context.Context, e *model.Event) error {
	defer logger.DeferLogDuration("event.Update", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE events SET title = $2, date = $3, description = $4, location = $5, kind = $6,
		 completed = $7, assigned_to = $8, group_ids = $9, updated_at = $10
		 WHERE id = $1`,
		e.ID, e.Title, e.Date, e.Description, e.Location, string(e.Kind),
		e.Completed, nonNil(e.AssignedTo), nonNil(e.GroupIDs), e.UpdatedAt,
	)
	if err != nil {
		return apperr.Transport("eventRepo.Update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("event", e.ID)
	}
	return nil
}

// Delete идемпотентен: отсутствие строки не ошибка.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("event.Delete", time.Now())()
	if _, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return apperr.Transport("eventRepo.Delete", err)
	}
	return nil
}

func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	defer logger.DeferLogDuration("event.List", time.Now())()
	rows, err := r.pool.Query(ctx, `SELECT `+eventCols+` FROM events ORDER BY created_at, id`)
	if err != nil {
		return nil, apperr.Transport("eventRepo.List query", err)
	}
	defer rows.Close()

	events := make([]model.Event, 0, 32)
	for rows.Next() {
		var e model.Event
		if err := scanEvent(rows, &e); err != nil {
			return nil, fmt.Errorf("eventRepo.List scan: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transport("eventRepo.List rows", err)
	}
	return events, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
