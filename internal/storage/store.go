package storage

import (
	"context"
	"errors"
	"time"

	"github.com/planner/internal/model"
)

// ErrFeedClosed — Next после Close.
var ErrFeedClosed = errors.New("feed closed")

// Feed — живая подписка на коллекцию. Первый Next отдаёт текущий снимок,
// каждый следующий блокируется до изменения и отдаёт новый полный снимок.
// Feed читается из одной горутины; Close вызывается той же горутиной.
type Feed[T any] interface {
	Next(ctx context.Context) ([]T, error)
	Close() error
}

// EventStore — коллекция events. DeleteEvent для несуществующего id не ошибка.
type EventStore interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context) ([]model.Event, error)
}

type GroupStore interface {
	CreateGroup(ctx context.Context, g *model.Group) error
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	ListGroups(ctx context.Context) ([]model.Group, error)
}

// MessageStore — chats/{groupId}/messages, только добавление.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *model.ChatMessage) error
	ListMessages(ctx context.Context, groupID string) ([]model.ChatMessage, error)
}

// UserStore — users/{id}: статус подтверждения email.
type UserStore interface {
	SetVerification(ctx context.Context, st model.UserStatus) error
	GetVerification(ctx context.Context, userID string) (*model.UserStatus, error)
}

type LiveStore interface {
	WatchEvents(ctx context.Context) (Feed[model.Event], error)
	WatchGroups(ctx context.Context) (Feed[model.Group], error)
	WatchMessages(ctx context.Context, groupID string) (Feed[model.ChatMessage], error)
}

// Store — постоянное хранилище документов. Реализации: repository.Store (Postgres), memory.Store.
type Store interface {
	EventStore
	GroupStore
	MessageStore
	UserStore
	LiveStore
}

// OTPStore — хранилище OTP-записей по email (нижний регистр).
// GetOTP возвращает nil, nil если записи нет.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type OTPStore interface {
	PutOTP(ctx context.Context, rec model.OTPRecord) error
	GetOTP(ctx context.Context, email string) (*model.OTPRecord, error)
	DeleteOTP(ctx context.Context, email string) error
	Close() error
}

// ReminderLedger — отметки отправленных напоминаний.
// Claim атомарно ставит отметку и возвращает true, только если её ещё не было.
type ReminderLedger interface {
	Claim(ctx context.Context, key, eventID string, at time.Time) (bool, error)
}
