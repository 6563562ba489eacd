package repository

import (
	"context"
	"time"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/storage"
)

const (
	channelEvents   = "planner_events"
	channelGroups   = "planner_groups"
	channelMessages = "planner_messages"

	// feedLoadTimeout ограничивает перечитывание снимка: Acquire из занятого пула не ждёт вечно.
	feedLoadTimeout = 10 * time.Second
)

// notifyFeed ждёт пробуждения от Listener и на каждое перечитывает снимок через load.
// Своего соединения у ленты нет: load берёт соединение из пула только на время запроса.
type notifyFeed[T any] struct {
	l       *Listener
	w       *waiter
	load    func(ctx context.Context) ([]T, error)
	started bool
	closed  bool
}

func listen[T any](ctx context.Context, l *Listener, channel, filter string, load func(context.Context) ([]T, error)) (storage.Feed[T], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, err := l.register(channel, filter)
	if err != nil {
		return nil, err
	}
	return &notifyFeed[T]{l: l, w: w, load: load}, nil
}

func (f *notifyFeed[T]) Next(ctx context.Context) ([]T, error) {
	if f.closed {
		return nil, storage.ErrFeedClosed
	}
	if !f.started {
		f.started = true
		return f.reload(ctx)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.l.done:
		return nil, apperr.Transport("feed.Next "+f.w.channel, errListenerClosed)
	case <-f.w.wake:
	}
	return f.reload(ctx)
}

func (f *notifyFeed[T]) reload(ctx context.Context) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, feedLoadTimeout)
	defer cancel()
	return f.load(ctx)
}

func (f *notifyFeed[T]) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.l.unregister(f.w)
	return nil
}
