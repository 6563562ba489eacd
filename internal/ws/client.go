package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/planner/internal/livesync"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	// DefaultSendBuffer — ёмкость очереди исходящих кадров клиента.
	DefaultSendBuffer = 64
)

// bufPool pools bytes.Buffer for JSON encoding in the hot-path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client represents a single WebSocket connection.
// Lifecycle: NewClient -> Start(ctx, cancel) -> [ReadPump, WritePump] -> Close -> Wait.
// The hub attaches a calendar subscription after register and drops every subscription after Close on unregister.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan OutgoingMessage
	identity model.Identity
	key      string

	subMu    sync.Mutex
	calendar *livesync.Subscription
	chats    map[string]*livesync.Subscription

	// done is used as a non-blocking guard in sendToClient.
	done chan struct{}
	// cancel cancels the context passed to Start, triggering pump shutdown.
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, identity model.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan OutgoingMessage, hub.sendBuffer),
		identity: identity,
		key:      identity.Author(),
		chats:    make(map[string]*livesync.Subscription),
		done:     make(chan struct{}),
	}
}

// closed проверяется под subMu: после Close новые подписки не прикрепляются,
// а dropSubscriptions (вызывается после Close) снимает всё прикреплённое раньше.
func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// setCalendar прикрепляет календарную подписку. false — клиент уже закрыт, подписку снимает вызывающий.
func (c *Client) setCalendar(sub *livesync.Subscription) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed() {
		return false
	}
	c.calendar = sub
	return true
}

// setChat запоминает подписку на чат и возвращает ту, что нужно закрыть:
// прежнюю подписку на ту же группу или саму sub, если клиент уже закрыт.
func (c *Client) setChat(groupID string, sub *livesync.Subscription) *livesync.Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.closed() {
		return sub
	}
	prev := c.chats[groupID]
	c.chats[groupID] = sub
	return prev
}

func (c *Client) takeChat(groupID string) *livesync.Subscription {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	sub := c.chats[groupID]
	delete(c.chats, groupID)
	return sub
}

// dropSubscriptions отписывает календарь и все чаты клиента. Повторный вызов ничего не делает.
func (c *Client) dropSubscriptions() {
	c.subMu.Lock()
	subs := make([]*livesync.Subscription, 0, len(c.chats)+1)
	if c.calendar != nil {
		subs = append(subs, c.calendar)
		c.calendar = nil
	}
	for id, sub := range c.chats {
		subs = append(subs, sub)
		delete(c.chats, id)
	}
	c.subMu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// Start launches ReadPump and WritePump goroutines with controlled lifecycle.
// ctx controls pump lifetime; cancel is stored for Close().
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Wait blocks until both pump goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close signals the client to stop. Safe to call multiple times from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		// Force both pumps to unblock (ReadMessage / WriteMessage will error).
		c.conn.Close()
	})
}

// readPump reads messages from the WebSocket connection.
// Exits on read error (triggered by conn.Close from Close() or WritePump exit).
func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline user=%s: %v", c.key, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error user=%s: %v", c.key, err)
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Errorf("ws unmarshal error user=%s: %v", c.key, err)
			continue
		}

		c.hub.HandleMessage(ctx, c, msg)
	}
}

// writePump writes messages to the WebSocket connection.
// Exits on ctx cancellation, write error, or connection close.
func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			if err := c.conn.WriteMessage(websocket.CloseMessage, nil); err != nil {
				logger.Errorf("ws close message user=%s: %v", c.key, err)
			}
			return
		case msg := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.key, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			enc := json.NewEncoder(buf)
			if err := enc.Encode(msg); err != nil {
				bufPool.Put(buf)
				logger.Errorf("ws marshal error user=%s: %v", c.key, err)
				continue
			}
			data := buf.Bytes()
			// json.Encoder appends '\n'; trim it for WebSocket text messages.
			if len(data) > 0 && data[len(data)-1] == '\n' {
				data = data[:len(data)-1]
			}
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.key, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
