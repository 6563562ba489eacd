package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/livesync"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
	"github.com/planner/internal/visibility"
)

// ChatService — операции чата, которые нужны хабу (реализует service.Planner).
type ChatService interface {
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	SendChatMessage(ctx context.Context, groupID, sender, text string) (*model.ChatMessage, error)
}

// subscribeTimeout ограничивает открытие календарной подписки нового клиента.
const subscribeTimeout = 10 * time.Second

// Hub держит соединения и их живые подписки. Снимки приходят из livesync и
// кладутся в очередь клиента; запись в сокет — только из writePump.
// Подписка открывается вне горутины Run: медленное хранилище не задерживает регистрацию других клиентов.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	total      int
	maxConns   int
	sendBuffer int
	live       *livesync.Manager
	chat       ChatService
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	subscribeTimeout time.Duration
	pending          sync.WaitGroup
}

func NewHub(live *livesync.Manager, chat ChatService, maxConns, sendBuffer int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		sendBuffer: sendBuffer,
		live:       live,
		chat:       chat,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),

		subscribeTimeout: subscribeTimeout,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(ctx, client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	h.pending.Wait()
	for _, c := range allClients {
		c.dropSubscriptions()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

// Connections — число открытых соединений.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *Hub) addClient(ctx context.Context, c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.key)
		c.Close()
		return
	}
	if _, ok := h.clients[c.key]; !ok {
		h.clients[c.key] = make(map[*Client]struct{})
	}
	h.clients[c.key][c] = struct{}{}
	h.total++
	h.mu.Unlock()

	h.pending.Add(1)
	go h.subscribe(ctx, c)
}

// subscribe открывает календарную подписку клиента. Если клиент успел закрыться, подписка сразу снимается.
func (h *Hub) subscribe(ctx context.Context, c *Client) {
	defer h.pending.Done()
	ctx, cancel := context.WithTimeout(ctx, h.subscribeTimeout)
	defer cancel()

	sub, err := h.live.Subscribe(ctx, c.identity, livesync.Handlers{
		OnEvents: func(events []model.Event) {
			h.sendToClient(c, OutgoingMessage{Type: EventEvents, Payload: EventsPayload{Events: nonNilEvents(events)}})
		},
		OnGroups: func(groups []model.Group) {
			h.sendToClient(c, OutgoingMessage{Type: EventGroups, Payload: GroupsPayload{Groups: nonNilGroups(groups)}})
		},
		OnError: func(err error) {
			logger.Errorf("ws calendar feed user=%s: %v", c.key, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{Error: "live feed failed"}})
		},
	})
	if err != nil {
		logger.Errorf("ws subscribe user=%s: %v", c.key, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{Error: "subscribe failed"}})
		return
	}
	if !c.setCalendar(sub) {
		sub.Unsubscribe()
	}
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.key]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.key)
	}
	h.mu.Unlock()

	c.Close()
	c.dropSubscriptions()
}

// HandleMessage dispatches incoming WebSocket messages.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventChatSubscribe:
		h.handleChatSubscribe(ctx, c, msg)
	case EventChatUnsubscribe:
		if sub := c.takeChat(msg.GroupID); sub != nil {
			sub.Unsubscribe()
		}
	case EventChatSend:
		h.handleChatSend(ctx, c, msg)
	case EventPing:
		h.sendToClient(c, OutgoingMessage{Type: EventPong})
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{Error: "unknown event type"}})
	}
}

// canAccess — чат группы доступен тем же, кто видит группу.
func (h *Hub) canAccess(ctx context.Context, c *Client, groupID string) bool {
	if groupID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{Error: "group_id required"}})
		return false
	}
	g, err := h.chat.GetGroup(ctx, groupID)
	if err != nil {
		msg := "group lookup failed"
		if errors.Is(err, apperr.ErrNotFound) {
			msg = "group not found"
		}
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{GroupID: groupID, Error: msg}})
		return false
	}
	if !visibility.CanSeeGroup(c.identity, *g) {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{GroupID: groupID, Error: "forbidden"}})
		return false
	}
	return true
}

func (h *Hub) handleChatSubscribe(ctx context.Context, c *Client, msg IncomingMessage) {
	if !h.canAccess(ctx, c, msg.GroupID) {
		return
	}
	groupID := msg.GroupID
	sub, err := h.live.SubscribeChat(ctx, groupID,
		func(msgs []model.ChatMessage) {
			if msgs == nil {
				msgs = []model.ChatMessage{}
			}
			h.sendToClient(c, OutgoingMessage{Type: EventChatMessages, Payload: ChatMessagesPayload{GroupID: groupID, Messages: msgs}})
		},
		func(err error) {
			logger.Errorf("ws chat feed user=%s group=%s: %v", c.key, groupID, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{GroupID: groupID, Error: "chat feed failed"}})
		},
	)
	if err != nil {
		logger.Errorf("ws chat subscribe user=%s group=%s: %v", c.key, groupID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{GroupID: groupID, Error: "subscribe failed"}})
		return
	}
	if stale := c.setChat(groupID, sub); stale != nil {
		stale.Unsubscribe()
	}
}

func (h *Hub) handleChatSend(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleChatSend", time.Now())()
	if !h.canAccess(ctx, c, msg.GroupID) {
		return
	}
	sent, err := h.chat.SendChatMessage(ctx, msg.GroupID, c.identity.Contact(), msg.Message)
	if err != nil {
		text := "send failed"
		var ve *apperr.ValidationError
		if errors.As(err, &ve) {
			text = ve.Error()
		}
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: ErrorPayload{GroupID: msg.GroupID, Error: text}})
		return
	}
	h.sendToClient(c, OutgoingMessage{Type: EventChatSent, Payload: sent})
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.key)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func nonNilEvents(v []model.Event) []model.Event {
	if v == nil {
		return []model.Event{}
	}
	return v
}

func nonNilGroups(v []model.Group) []model.Group {
	if v == nil {
		return []model.Group{}
	}
	return v
}
