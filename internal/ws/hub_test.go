package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/gorilla/websocket"

	"github.com/planner/internal/livesync"
	"github.com/planner/internal/model"
	"github.com/planner/internal/storage"
	"github.com/planner/internal/storage/memory"
)

type storeChat struct {
	*memory.Store
	mu sync.Mutex
	n  int
}

func (s *storeChat) SendChatMessage(ctx context.Context, groupID, sender, text string) (*model.ChatMessage, error) {
	s.mu.Lock()
	s.n++
	id := "m" + string(rune('0'+s.n))
	s.mu.Unlock()
	m := &model.ChatMessage{ID: id, GroupID: groupID, Sender: sender, Message: text, Timestamp: time.Now().UTC()}
	return m, s.AppendMessage(ctx, m)
}

type frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type testHub struct {
	hub  *Hub
	url  string
	stop func()
}

// newTestHub поднимает хаб поверх feeds (живые ленты) и store (чат); tune правит хаб до Run.
func newTestHub(t *testing.T, feeds storage.LiveStore, store *memory.Store, identity model.Identity, tune func(*Hub)) *testHub {
	t.Helper()
	live := livesync.NewManager(feeds)
	hub := NewHub(live, &storeChat{Store: store}, 10, 16)
	if tune != nil {
		tune(hub)
	}
	hubCtx, hubCancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx)
	}()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		c := NewClient(hub, conn, identity)
		c.Start(ctx, cancel)
		hub.Register(c)
	}))
	return &testHub{
		hub: hub,
		url: "ws" + strings.TrimPrefix(srv.URL, "http"),
		stop: func() {
			hubCancel()
			<-hubDone
			live.Close()
			srv.Close()
		},
	}
}

func (th *testHub) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(th.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func startHub(t *testing.T, store *memory.Store, identity model.Identity) (*websocket.Conn, func()) {
	t.Helper()
	th := newTestHub(t, store, store, identity, nil)
	conn := th.dial(t)
	return conn, func() {
		conn.Close()
		th.stop()
	}
}

// slowFeeds держит открытие ленты групп до release или отмены ctx.
type slowFeeds struct {
	*memory.Store
	release chan struct{}
	entered chan struct{}
}

func (s *slowFeeds) WatchGroups(ctx context.Context) (storage.Feed[model.Group], error) {
	s.entered <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.release:
		return s.Store.WatchGroups(ctx)
	}
}

// readUntil пропускает кадры, пока не придёт подходящий.
func readUntil(t *testing.T, conn *websocket.Conn, typ EventType, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if f.Type == typ && (match == nil || match(f.Payload)) {
			return f.Payload
		}
	}
}

func TestHubStreamsVisibleSnapshots(t *testing.T) {
	store := memory.NewStore()
	store.PutGroup(model.Group{ID: "g1", CreatedBy: "owner", Members: []string{"bob@x.io"}})
	store.PutGroup(model.Group{ID: "g2", CreatedBy: "owner", Members: []string{"eve@x.io"}})
	_ = store.CreateEvent(context.Background(), &model.Event{ID: "e1", CreatedBy: "owner", AssignedTo: []string{"Bob@x.io"}})
	_ = store.CreateEvent(context.Background(), &model.Event{ID: "e2", CreatedBy: "owner"})

	conn, stop := startHub(t, store, model.NewIdentity("", "bob@x.io"))
	defer stop()

	// Порядок первых кадров events и groups не задан.
	var (
		events EventsPayload
		groups GroupsPayload
		seen   = map[EventType]bool{}
	)
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for !seen[EventEvents] || !seen[EventGroups] {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("initial snapshots: %v", err)
		}
		switch f.Type {
		case EventEvents:
			_ = json.Unmarshal(f.Payload, &events)
		case EventGroups:
			_ = json.Unmarshal(f.Payload, &groups)
		}
		seen[f.Type] = true
	}
	assert.Equal(t, len(events.Events), 1)
	assert.Equal(t, events.Events[0].ID, "e1")
	assert.Equal(t, len(groups.Groups), 1)
	assert.Equal(t, groups.Groups[0].ID, "g1")

	assert.Equal(t, conn.WriteJSON(IncomingMessage{Type: EventPing}), nil)
	readUntil(t, conn, EventPong, nil)
}

func TestHubChat(t *testing.T) {
	store := memory.NewStore()
	store.PutGroup(model.Group{ID: "g1", CreatedBy: "owner", Members: []string{"bob@x.io"}})
	store.PutGroup(model.Group{ID: "g2", CreatedBy: "owner", Members: []string{"eve@x.io"}})

	conn, stop := startHub(t, store, model.NewIdentity("u1", "bob@x.io"))
	defer stop()

	assert.Equal(t, conn.WriteJSON(IncomingMessage{Type: EventChatSubscribe, GroupID: "g2"}), nil)
	var e ErrorPayload
	_ = json.Unmarshal(readUntil(t, conn, EventError, nil), &e)
	assert.Equal(t, e.GroupID, "g2")
	assert.Equal(t, e.Error, "forbidden")

	assert.Equal(t, conn.WriteJSON(IncomingMessage{Type: EventChatSubscribe, GroupID: "g1"}), nil)
	readUntil(t, conn, EventChatMessages, nil)

	assert.Equal(t, conn.WriteJSON(IncomingMessage{Type: EventChatSend, GroupID: "g1", Message: "hi"}), nil)
	var chat ChatMessagesPayload
	_ = json.Unmarshal(readUntil(t, conn, EventChatMessages, func(raw json.RawMessage) bool {
		var p ChatMessagesPayload
		_ = json.Unmarshal(raw, &p)
		return len(p.Messages) == 1
	}), &chat)
	assert.Equal(t, chat.GroupID, "g1")
	assert.Equal(t, chat.Messages[0].Sender, "bob@x.io")
	assert.Equal(t, chat.Messages[0].Message, "hi")

	assert.Equal(t, conn.WriteJSON(IncomingMessage{Type: "dance"}), nil)
	_ = json.Unmarshal(readUntil(t, conn, EventError, nil), &e)
	assert.Equal(t, e.Error, "unknown event type")
}

func TestHubRegistersWhileSubscribeBlocks(t *testing.T) {
	store := memory.NewStore()
	store.PutGroup(model.Group{ID: "g1", CreatedBy: "owner", Members: []string{"bob@x.io"}})
	feeds := &slowFeeds{Store: store, release: make(chan struct{}), entered: make(chan struct{}, 4)}
	th := newTestHub(t, feeds, store, model.NewIdentity("", "bob@x.io"), nil)
	defer th.stop()

	first := th.dial(t)
	defer first.Close()
	second := th.dial(t)
	defer second.Close()

	// Обе подписки открываются одновременно: первая ещё висит, когда приходит вторая.
	for i := 0; i < 2; i++ {
		select {
		case <-feeds.entered:
		case <-time.After(2 * time.Second):
			t.Fatalf("subscribe %d did not start while the first one was pending", i+1)
		}
	}
	assert.Equal(t, th.hub.Connections(), 2)

	close(feeds.release)
	readUntil(t, first, EventGroups, nil)
	readUntil(t, second, EventGroups, nil)
}

func TestHubSubscribeTimeout(t *testing.T) {
	store := memory.NewStore()
	feeds := &slowFeeds{Store: store, release: make(chan struct{}), entered: make(chan struct{}, 4)}
	th := newTestHub(t, feeds, store, model.NewIdentity("u1", ""), func(h *Hub) { h.subscribeTimeout = 50 * time.Millisecond })
	defer th.stop()

	conn := th.dial(t)
	defer conn.Close()
	readUntil(t, conn, EventError, func(p json.RawMessage) bool {
		return strings.Contains(string(p), "subscribe failed")
	})

	// Соединение остаётся рабочим.
	assert.Equal(t, conn.WriteJSON(IncomingMessage{Type: EventPing}), nil)
	readUntil(t, conn, EventPong, nil)
	assert.Equal(t, th.hub.Connections(), 1)
}
