// Package livesync держит живые подписки пользователей на события, группы и чаты.
//
// Каждая подписка читает фиды хранилища в отдельных горутинах и передаёт снимки
// единственной горутине-диспетчеру. Все колбэки подписки вызываются только из неё,
// поэтому никогда не выполняются параллельно.
package livesync

import (
	"context"
	"errors"
	"sync"

	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
	"github.com/planner/internal/storage"
)

var ErrManagerClosed = errors.New("livesync: manager closed")

// Handlers — колбэки подписки. Любой из них может быть nil.
type Handlers struct {
	OnEvents func([]model.Event)
	OnGroups func([]model.Group)
	OnError  func(error)
}

// Manager — владелец всех подписок процесса. Создаётся в main, закрывается при остановке.
type Manager struct {
	store  storage.LiveStore
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewManager(store storage.LiveStore) *Manager {
	return &Manager{store: store, subs: make(map[*Subscription]struct{})}
}

// Subscribe открывает фиды групп и событий для id. Первые снимки приходят асинхронно.
// События, видимые только через группы, скрыты, пока не пришёл первый снимок групп.
// ctx ограничивает только открытие фидов; сама подписка живёт до Unsubscribe.
func (m *Manager) Subscribe(ctx context.Context, id model.Identity, h Handlers) (*Subscription, error) {
	s, subCtx, err := m.open(ctx, h.OnError)
	if err != nil {
		return nil, err
	}
	s.identity = id
	s.handlers = h

	groups, err := m.store.WatchGroups(ctx)
	if err != nil {
		s.abort()
		return nil, err
	}
	events, err := m.store.WatchEvents(ctx)
	if err != nil {
		_ = groups.Close()
		s.abort()
		return nil, err
	}
	s.start(subCtx,
		func(ctx context.Context) { pump(ctx, s, groups, func(v []model.Group) update { return update{groups: v, kind: kindGroups} }) },
		func(ctx context.Context) { pump(ctx, s, events, func(v []model.Event) update { return update{events: v, kind: kindEvents} }) },
	)
	logger.Debugf("livesync: subscribed %s", id)
	return s, nil
}

// SubscribeChat — живая история чата группы, отсортированная по времени.
func (m *Manager) SubscribeChat(ctx context.Context, groupID string, onMessages func([]model.ChatMessage), onError func(error)) (*Subscription, error) {
	s, subCtx, err := m.open(ctx, onError)
	if err != nil {
		return nil, err
	}
	s.onMessages = onMessages

	msgs, err := m.store.WatchMessages(ctx, groupID)
	if err != nil {
		s.abort()
		return nil, err
	}
	s.start(subCtx,
		func(ctx context.Context) { pump(ctx, s, msgs, func(v []model.ChatMessage) update { return update{messages: v, kind: kindMessages} }) },
	)
	return s, nil
}

func (m *Manager) open(ctx context.Context, onError func(error)) (*Subscription, context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, ErrManagerClosed
	}
	// Подписка живёт дольше запроса, который её открыл: отвязываемся от отмены родителя.
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := newSubscription(m, cancel)
	s.handlers.OnError = onError
	m.subs[s] = struct{}{}
	return s, subCtx, nil
}

func (m *Manager) forget(s *Subscription) {
	m.mu.Lock()
	delete(m.subs, s)
	m.mu.Unlock()
}

// Active — число живых подписок.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close отписывает всех и запрещает новые подписки.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*Subscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}
