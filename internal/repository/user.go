package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
)

// ErrNotFound — псевдоним общей ошибки, чтобы вызывающие могли проверять errors.Is(err, repository.ErrNotFound).
var ErrNotFound = apperr.ErrNotFound

// UserRepository хранит только статус подтверждения email: сами пользователи живут у провайдера авторизации.
type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) SetVerification(ctx context.Context, st model.UserStatus) error {
	defer logger.DeferLogDuration("user.SetVerification", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_verification (user_id, email_verified, email_verified_at, verified_via_otp)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET email_verified = EXCLUDED.email_verified,
		     email_verified_at = EXCLUDED.email_verified_at,
		     verified_via_otp = EXCLUDED.verified_via_otp`,
		st.UserID, st.EmailVerified, st.EmailVerifiedAt, st.VerifiedViaOTP,
	)
	if err != nil {
		return apperr.Transport("userRepo.SetVerification", err)
	}
	return nil
}

// GetVerification возвращает пустой статус, если записи нет.
func (r *UserRepository) GetVerification(ctx context.Context, userID string) (*model.UserStatus, error) {
	defer logger.DeferLogDuration("user.GetVerification", time.Now())()
	st := &model.UserStatus{UserID: userID}
	err := r.pool.QueryRow(ctx,
		`SELECT email_verified, email_verified_at, verified_via_otp
		 FROM user_verification WHERE user_id = $1`, userID,
	).Scan(&st.EmailVerified, &st.EmailVerifiedAt, &st.VerifiedViaOTP)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, apperr.Transport("userRepo.GetVerification", err)
	}
	return st, nil
}
