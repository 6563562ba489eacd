package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planner/internal/logger"
	"github.com/planner/internal/storage"
)

var errListenerClosed = errors.New("listener closed")

const (
	listenRetryMin = time.Second
	listenRetryMax = 30 * time.Second
)

// notifyConn — то, что Listener использует от *pgx.Conn.
type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// waiter — одна лента, ждущая уведомлений канала (и payload == filter, если filter задан).
// wake буферизован на одно значение: пачка уведомлений до чтения схлопывается в одно.
type waiter struct {
	channel string
	filter  string
	wake    chan struct{}
}

func (w *waiter) poke() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Listener держит одно соединение с LISTEN на все каналы коллекций и раздаёт уведомления лентам.
// Соединение открывается при первой подписке вне пула, так что число лент не расходует пул.
// После переподключения будятся все ленты: уведомления за время обрыва потеряны.
type Listener struct {
	connect func(ctx context.Context) (notifyConn, error)
	retry   time.Duration

	mu      sync.Mutex
	waiters map[*waiter]struct{}
	started bool
	closed  bool

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewListener(pool *pgxpool.Pool) *Listener {
	return newListener(func(ctx context.Context) (notifyConn, error) {
		return pgx.ConnectConfig(ctx, pool.Config().ConnConfig)
	})
}

func newListener(connect func(ctx context.Context) (notifyConn, error)) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		connect: connect,
		retry:   listenRetryMin,
		waiters: make(map[*waiter]struct{}),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (l *Listener) register(channel, filter string) (*waiter, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, storage.ErrFeedClosed
	}
	if !l.started {
		l.started = true
		go l.run()
	}
	w := &waiter{channel: channel, filter: filter, wake: make(chan struct{}, 1)}
	l.waiters[w] = struct{}{}
	return w, nil
}

func (l *Listener) unregister(w *waiter) {
	l.mu.Lock()
	delete(l.waiters, w)
	l.mu.Unlock()
}

// Waiters — число зарегистрированных лент.
func (l *Listener) Waiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

func (l *Listener) dispatch(channel, payload string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for w := range l.waiters {
		if w.channel == channel && (w.filter == "" || w.filter == payload) {
			w.poke()
		}
	}
}

func (l *Listener) wakeAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for w := range l.waiters {
		w.poke()
	}
}

func (l *Listener) run() {
	defer close(l.done)
	delay := l.retry
	for {
		conn, err := l.open()
		if err == nil {
			delay = l.retry
			l.wakeAll()
			err = l.receive(conn)
			closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = conn.Close(closeCtx)
			cancel()
		}
		if l.ctx.Err() != nil {
			return
		}
		logger.Errorf("listener: %v, retry in %s", err, delay)
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(delay):
		}
		delay = min(delay*2, listenRetryMax)
	}
}

func (l *Listener) open() (notifyConn, error) {
	conn, err := l.connect(l.ctx)
	if err != nil {
		return nil, err
	}
	for _, ch := range []string{channelEvents, channelGroups, channelMessages} {
		if _, err := conn.Exec(l.ctx, "LISTEN "+pgx.Identifier{ch}.Sanitize()); err != nil {
			_ = conn.Close(context.Background())
			return nil, err
		}
	}
	logger.Debugf("listener: listening")
	return conn, nil
}

func (l *Listener) receive(conn notifyConn) error {
	for {
		n, err := conn.WaitForNotification(l.ctx)
		if err != nil {
			return err
		}
		l.dispatch(n.Channel, n.Payload)
	}
}

// Close рвёт соединение и дожидается остановки. Ленты получают ошибку на следующем Next.
func (l *Listener) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		started := l.started
		l.mu.Unlock()
		l.cancel()
		if !started {
			close(l.done)
		}
	})
	<-l.done
}
