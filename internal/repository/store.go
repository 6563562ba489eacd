package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planner/internal/model"
	"github.com/planner/internal/storage"
)

// Store собирает репозитории в storage.Store поверх одного пула Postgres.
// Живые ленты всех подписчиков делят один Listener; Close останавливает его.
type Store struct {
	listener *Listener
	Events   *EventRepository
	Groups   *GroupRepository
	Messages *MessageRepository
	Users    *UserRepository
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		listener: NewListener(pool),
		Events:   NewEventRepository(pool),
		Groups:   NewGroupRepository(pool),
		Messages: NewMessageRepository(pool),
		Users:    NewUserRepository(pool),
	}
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Close() { s.listener.Close() }

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error { return s.Events.Create(ctx, e) }

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	return s.Events.GetByID(ctx, id)
}

func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error { return s.Events.Update(ctx, e) }

func (s *Store) DeleteEvent(ctx context.Context, id string) error { return s.Events.Delete(ctx, id) }

func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) { return s.Events.List(ctx) }

func (s *Store) CreateGroup(ctx context.Context, g *model.Group) error { return s.Groups.Create(ctx, g) }

func (s *Store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	return s.Groups.GetByID(ctx, id)
}

func (s *Store) ListGroups(ctx context.Context) ([]model.Group, error) { return s.Groups.List(ctx) }

func (s *Store) AppendMessage(ctx context.Context, m *model.ChatMessage) error {
	return s.Messages.Append(ctx, m)
}

func (s *Store) ListMessages(ctx context.Context, groupID string) ([]model.ChatMessage, error) {
	return s.Messages.ListByGroup(ctx, groupID)
}

func (s *Store) SetVerification(ctx context.Context, st model.UserStatus) error {
	return s.Users.SetVerification(ctx, st)
}

func (s *Store) GetVerification(ctx context.Context, userID string) (*model.UserStatus, error) {
	return s.Users.GetVerification(ctx, userID)
}

func (s *Store) WatchEvents(ctx context.Context) (storage.Feed[model.Event], error) {
	return listen(ctx, s.listener, channelEvents, "", s.Events.List)
}

func (s *Store) WatchGroups(ctx context.Context) (storage.Feed[model.Group], error) {
	return listen(ctx, s.listener, channelGroups, "", s.Groups.List)
}

func (s *Store) WatchMessages(ctx context.Context, groupID string) (storage.Feed[model.ChatMessage], error) {
	return listen(ctx, s.listener, channelMessages, groupID, func(ctx context.Context) ([]model.ChatMessage, error) {
		return s.Messages.ListByGroup(ctx, groupID)
	})
}
