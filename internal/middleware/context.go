package middleware

import (
	"context"

	"github.com/planner/internal/model"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	EmailKey  contextKey = "email"
)

// GetUserID возвращает user_id из контекста (устанавливается AuthServiceValidate или TrustedHeaders).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func GetEmail(ctx context.Context) string {
	v, _ := ctx.Value(EmailKey).(string)
	return v
}

// GetIdentity собирает принципалов запроса; без аутентификации — пустая (анонимная) идентичность.
func GetIdentity(ctx context.Context) model.Identity {
	return model.NewIdentity(GetUserID(ctx), GetEmail(ctx))
}

func withIdentity(ctx context.Context, userID, email string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, EmailKey, email)
}
