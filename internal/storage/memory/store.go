package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/model"
	"github.com/planner/internal/storage"
)

const (
	collEvents   = "events"
	collGroups   = "groups"
	collMessages = "messages:"
)

// Store — хранилище документов в памяти с живыми подписками.
// Используется в -dev режиме и как подделка хранилища в тестах.
type Store struct {
	mu       sync.RWMutex
	events   map[string]model.Event
	groups   map[string]model.Group
	messages map[string][]model.ChatMessage
	users    map[string]model.UserStatus
	watchers map[*watcher]struct{}
	// Порядок вставки: снимки отдаются в нём, как у Postgres по created_at.
	eventOrder []string
	groupOrder []string
}

func NewStore() *Store {
	return &Store{
		events:   make(map[string]model.Event),
		groups:   make(map[string]model.Group),
		messages: make(map[string][]model.ChatMessage),
		users:    make(map[string]model.UserStatus),
		watchers: make(map[*watcher]struct{}),
	}
}

var _ storage.Store = (*Store)(nil)

type watcher struct {
	coll   string
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func (w *watcher) poke() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

// notify будит подписчиков коллекции. Вызывается под s.mu.
func (s *Store) notify(coll string) {
	for w := range s.watchers {
		if w.coll == coll {
			w.poke()
		}
	}
}

func (s *Store) CreateEvent(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		s.eventOrder = append(s.eventOrder, e.ID)
	}
	s.events[e.ID] = e.Clone()
	s.notify(collEvents)
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, apperr.NotFound("event", id)
	}
	c := e.Clone()
	return &c, nil
}

func (s *Store) UpdateEvent(ctx context.Context, e *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return apperr.NotFound("event", e.ID)
	}
	s.events[e.ID] = e.Clone()
	s.notify(collEvents)
	return nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return nil
	}
	delete(s.events, id)
	for i, v := range s.eventOrder {
		if v == id {
			s.eventOrder = append(s.eventOrder[:i], s.eventOrder[i+1:]...)
			break
		}
	}
	s.notify(collEvents)
	return nil
}

func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eventsLocked(), nil
}

func (s *Store) eventsLocked() []model.Event {
	out := make([]model.Event, 0, len(s.eventOrder))
	for _, id := range s.eventOrder {
		out = append(out, s.events[id].Clone())
	}
	return out
}

func (s *Store) CreateGroup(ctx context.Context, g *model.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		s.groupOrder = append(s.groupOrder, g.ID)
	}
	s.groups[g.ID] = g.Clone()
	s.notify(collGroups)
	return nil
}

// PutGroup заменяет группу целиком (правка состава участников в тестах и инструментах).
func (s *Store) PutGroup(g model.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		s.groupOrder = append(s.groupOrder, g.ID)
	}
	s.groups[g.ID] = g.Clone()
	s.notify(collGroups)
}

func (s *Store) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, apperr.NotFound("group", id)
	}
	c := g.Clone()
	return &c, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]model.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.groupsLocked(), nil
}

func (s *Store) groupsLocked() []model.Group {
	out := make([]model.Group, 0, len(s.groupOrder))
	for _, id := range s.groupOrder {
		out = append(out, s.groups[id].Clone())
	}
	return out
}

func (s *Store) AppendMessage(ctx context.Context, m *model.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.GroupID] = append(s.messages[m.GroupID], *m)
	s.notify(collMessages + m.GroupID)
	return nil
}

func (s *Store) ListMessages(ctx context.Context, groupID string) ([]model.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesLocked(groupID), nil
}

func (s *Store) messagesLocked(groupID string) []model.ChatMessage {
	out := append([]model.ChatMessage(nil), s.messages[groupID]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (s *Store) SetVerification(ctx context.Context, st model.UserStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[st.UserID] = st
	return nil
}

func (s *Store) GetVerification(ctx context.Context, userID string) (*model.UserStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.users[userID]
	if !ok {
		return &model.UserStatus{UserID: userID}, nil
	}
	return &st, nil
}

func (s *Store) WatchEvents(ctx context.Context) (storage.Feed[model.Event], error) {
	return watch(s, collEvents, s.eventsLocked), nil
}

func (s *Store) WatchGroups(ctx context.Context) (storage.Feed[model.Group], error) {
	return watch(s, collGroups, s.groupsLocked), nil
}

func (s *Store) WatchMessages(ctx context.Context, groupID string) (storage.Feed[model.ChatMessage], error) {
	return watch(s, collMessages+groupID, func() []model.ChatMessage { return s.messagesLocked(groupID) }), nil
}

// FailFeeds обрывает все открытые подписки с ошибкой err (имитация обрыва связи).
func (s *Store) FailFeeds(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		w.err = err
		w.poke()
	}
}

// OpenFeeds — число открытых подписок.
func (s *Store) OpenFeeds() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.watchers)
}

type feed[T any] struct {
	s       *Store
	w       *watcher
	read    func() []T
	started bool
}

func watch[T any](s *Store, coll string, read func() []T) *feed[T] {
	w := &watcher{coll: coll, signal: make(chan struct{}, 1), done: make(chan struct{})}
	s.mu.Lock()
	s.watchers[w] = struct{}{}
	s.mu.Unlock()
	return &feed[T]{s: s, w: w, read: read}
}

func (f *feed[T]) Next(ctx context.Context) ([]T, error) {
	if f.started {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-f.w.done:
			return nil, storage.ErrFeedClosed
		case <-f.w.signal:
		}
	}
	f.started = true
	select {
	case <-f.w.done:
		return nil, storage.ErrFeedClosed
	default:
	}
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	if f.w.err != nil {
		return nil, apperr.Transport("memory.feed "+f.w.coll, f.w.err)
	}
	return f.read(), nil
}

func (f *feed[T]) Close() error {
	f.w.once.Do(func() {
		close(f.w.done)
		f.s.mu.Lock()
		delete(f.s.watchers, f.w)
		f.s.mu.Unlock()
	})
	return nil
}
