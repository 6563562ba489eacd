package livesync

import (
	"context"
	"sort"
	"sync"

	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
	"github.com/planner/internal/storage"
	"github.com/planner/internal/visibility"
)

type updateKind int

const (
	kindGroups updateKind = iota + 1
	kindEvents
	kindMessages
)

type update struct {
	kind     updateKind
	groups   []model.Group
	events   []model.Event
	messages []model.ChatMessage
	err      error
}

// Subscription — одна живая подписка.
// Lifecycle: Subscribe -> [readers, dispatcher] -> Unsubscribe | ошибка фида -> done.
type Subscription struct {
	m       *Manager
	cancel  context.CancelFunc
	updates chan update
	done    chan struct{}
	readers sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	inCallback bool

	// Состояние диспетчера: читается и пишется только из его горутины.
	identity   model.Identity
	handlers   Handlers
	onMessages func([]model.ChatMessage)
	index      *visibility.Index
}

func newSubscription(m *Manager, cancel context.CancelFunc) *Subscription {
	return &Subscription{
		m:       m,
		cancel:  cancel,
		updates: make(chan update),
		done:    make(chan struct{}),
	}
}

func (s *Subscription) start(ctx context.Context, readers ...func(context.Context)) {
	s.readers.Add(len(readers))
	for _, r := range readers {
		go func(r func(context.Context)) {
			defer s.readers.Done()
			r(ctx)
		}(r)
	}
	go s.dispatch(ctx)
}

// abort — откат, если фиды не открылись: диспетчер ещё не запущен.
func (s *Subscription) abort() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	close(s.done)
	s.m.forget(s)
}

// pump читает фид и передаёт снимки диспетчеру. Фид закрывается здесь же, в читающей горутине.
func pump[T any](ctx context.Context, s *Subscription, f storage.Feed[T], wrap func([]T) update) {
	defer func() {
		if err := f.Close(); err != nil {
			logger.Errorf("livesync: close feed: %v", err)
		}
	}()
	for {
		items, err := f.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.push(ctx, update{err: err})
			return
		}
		if !s.push(ctx, wrap(items)) {
			return
		}
	}
}

func (s *Subscription) push(ctx context.Context, u update) bool {
	select {
	case s.updates <- u:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Subscription) dispatch(ctx context.Context) {
	defer func() {
		s.cancel()
		s.readers.Wait()
		s.m.forget(s)
		close(s.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.updates:
			if !s.deliver(u) {
				return
			}
		}
	}
}

// deliver возвращает false, когда подписка должна остановиться.
func (s *Subscription) deliver(u update) bool {
	if u.err != nil {
		logger.Errorf("livesync: feed failed for %s: %v", s.identity, u.err)
		if s.handlers.OnError != nil {
			s.invoke(func() { s.handlers.OnError(u.err) })
		}
		return false
	}
	switch u.kind {
	case kindGroups:
		s.index = visibility.BuildIndex(s.identity, u.groups)
		visible := visibility.FilterGroups(s.identity, u.groups)
		if s.handlers.OnGroups == nil {
			return s.alive()
		}
		return s.invoke(func() { s.handlers.OnGroups(visible) })
	case kindEvents:
		visible := visibility.FilterEvents(s.identity, u.events, s.index)
		if s.handlers.OnEvents == nil {
			return s.alive()
		}
		return s.invoke(func() { s.handlers.OnEvents(visible) })
	case kindMessages:
		msgs := u.messages
		sort.SliceStable(msgs, func(i, j int) bool {
			if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
				return msgs[i].ID < msgs[j].ID
			}
			return msgs[i].Timestamp.Before(msgs[j].Timestamp)
		})
		if s.onMessages == nil {
			return s.alive()
		}
		return s.invoke(func() { s.onMessages(msgs) })
	}
	return s.alive()
}

func (s *Subscription) alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// invoke вызывает колбэк, если подписка ещё жива. Паника колбэка логируется и не роняет диспетчер.
func (s *Subscription) invoke(cb func()) (alive bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.inCallback = true
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("livesync: callback panic for %s: %v", s.identity, r)
		}
		s.mu.Lock()
		s.inCallback = false
		alive = !s.closed
		s.mu.Unlock()
	}()
	cb()
	return true
}

// Unsubscribe останавливает фиды. После возврата ни один новый колбэк не начнётся.
// Повторный вызов безопасен. Из колбэка тоже можно: текущий колбэк станет последним.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	s.closed = true
	busy := s.inCallback
	s.mu.Unlock()

	s.cancel()
	if !busy {
		<-s.done
	}
}

// Done закрывается, когда подписка полностью остановлена (отписка или ошибка фида).
func (s *Subscription) Done() <-chan struct{} { return s.done }
