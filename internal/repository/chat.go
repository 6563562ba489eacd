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

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_groups (id, name, description, members, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		g.ID, g.Name, g.Description, nonNil(g.Members), g.CreatedBy, g.CreatedAt,
	)
	if err != nil {
		return apperr.Transport("groupRepo.Create", err)
	}
	return nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, members, created_by, created_at
		 FROM user_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.Description, &g.Members, &g.CreatedBy, &g.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("group", id)
	}
	if err != nil {
		return nil, apperr.Transport("groupRepo.GetByID", err)
	}
	return g, nil
}

func (r *GroupRepository) List(ctx context.Context) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.List", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, members, created_by, created_at
		 FROM user_groups ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, apperr.Transport("groupRepo.List query", err)
	}
	defer rows.Close()

	groups := make([]model.Group, 0, 8)
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Members, &g.CreatedBy, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("groupRepo.List scan: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Transport("groupRepo.List rows", err)
	}
	return groups, nil
}
