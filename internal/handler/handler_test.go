package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/assert/v2"

	"github.com/planner/internal/middleware"
	"github.com/planner/internal/model"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/service"
	"github.com/planner/internal/storage/memory"
)

type nopTransport struct{ configured bool }

func (n nopTransport) Configured() bool { return n.configured }
func (n nopTransport) Send(ctx context.Context, msg notify.Message) error { return nil }

func newRouter(t *testing.T, configured bool) (http.Handler, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	planner := service.NewPlanner(store, notify.New(nopTransport{configured: configured}))
	eventH := NewEventHandler(planner)
	groupH := NewGroupHandler(planner)
	calendarH := NewCalendarHandler(planner, time.UTC)

	r := chi.NewRouter()
	r.Use(middleware.TrustedHeaders)
	r.Get("/api/events", eventH.List)
	r.Post("/api/events", eventH.Create)
	r.Get("/api/events/{id}", eventH.Get)
	r.Put("/api/events/{id}", eventH.Update)
	r.Post("/api/events/{id}/toggle", eventH.Toggle)
	r.Delete("/api/events/{id}", eventH.Delete)
	r.Get("/api/groups", groupH.List)
	r.Post("/api/groups", groupH.Create)
	r.Get("/api/groups/{id}/messages", groupH.Messages)
	r.Post("/api/groups/{id}/messages", groupH.SendMessage)
	r.Get("/api/calendar.ics", calendarH.Export)
	return r, store
}

func do(h http.Handler, method, path, body, userID, email string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	if email != "" {
		req.Header.Set("X-User-Email", email)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestEventLifecycle(t *testing.T) {
	h, _ := newRouter(t, true)

	rec := do(h, "POST", "/api/events", `{"title":"Review","date":"2024-04-02T10:00","assigned_to":["bob@x.io"]}`, "u1", "alice@x.io")
	assert.Equal(t, rec.Code, http.StatusCreated)
	var created eventResponse
	assert.Equal(t, json.Unmarshal(rec.Body.Bytes(), &created), nil)
	assert.Equal(t, created.Event.CreatedBy, "u1")
	assert.Equal(t, created.Notice.Sent, 1)
	assert.Equal(t, created.Warning, "")
	id := created.Event.ID

	var list []model.Event
	rec = do(h, "GET", "/api/events", "", "", "BOB@x.io")
	assert.Equal(t, json.Unmarshal(rec.Body.Bytes(), &list), nil)
	assert.Equal(t, len(list), 1)

	rec = do(h, "GET", "/api/events", "", "u9", "eve@x.io")
	assert.Equal(t, strings.TrimSpace(rec.Body.String()), "[]")

	rec = do(h, "PUT", "/api/events/"+id, `{"title":"Review v2"}`, "u1", "")
	assert.Equal(t, rec.Code, http.StatusOK)

	rec = do(h, "GET", "/api/events/"+id, "", "u1", "")
	var got model.Event
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	assert.Equal(t, got.Title, "Review v2")

	rec = do(h, "DELETE", "/api/events/"+id, "", "u1", "")
	assert.Equal(t, rec.Code, http.StatusNoContent)
	rec = do(h, "DELETE", "/api/events/"+id, "", "u1", "")
	assert.Equal(t, rec.Code, http.StatusNoContent)
	rec = do(h, "GET", "/api/events/"+id, "", "u1", "")
	assert.Equal(t, rec.Code, http.StatusNotFound)
}

func TestEventErrors(t *testing.T) {
	h, _ := newRouter(t, true)

	rec := do(h, "POST", "/api/events", `{`, "u1", "")
	assert.Equal(t, rec.Code, http.StatusBadRequest)

	rec = do(h, "POST", "/api/events", `{"date":"2024-04-02"}`, "u1", "")
	assert.Equal(t, rec.Code, http.StatusBadRequest)
	assert.Equal(t, strings.Contains(rec.Body.String(), "title"), true)

	rec = do(h, "POST", "/api/events/missing/toggle", "", "u1", "")
	assert.Equal(t, rec.Code, http.StatusNotFound)
}

func TestCreateWarnsWhenMailIsOff(t *testing.T) {
	h, _ := newRouter(t, false)
	rec := do(h, "POST", "/api/events", `{"title":"Quiet","date":"2024-04-02","assigned_to":["bob@x.io"]}`, "u1", "")
	assert.Equal(t, rec.Code, http.StatusCreated)
	var created eventResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	assert.NotEqual(t, created.Warning, "")
	assert.Equal(t, created.Notice.Skipped, true)
}

func TestGroupChatAccess(t *testing.T) {
	h, _ := newRouter(t, true)

	rec := do(h, "POST", "/api/groups", `{"name":"Ops","members":["bob@x.io"]}`, "u1", "alice@x.io")
	assert.Equal(t, rec.Code, http.StatusCreated)
	var created groupResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	assert.Equal(t, created.Group.Members, []string{"bob@x.io", "alice@x.io"})
	path := "/api/groups/" + created.Group.ID + "/messages"

	rec = do(h, "POST", path, `{"message":"hello"}`, "", "bob@x.io")
	assert.Equal(t, rec.Code, http.StatusCreated)
	var msg model.ChatMessage
	_ = json.Unmarshal(rec.Body.Bytes(), &msg)
	assert.Equal(t, msg.Sender, "bob@x.io")

	rec = do(h, "GET", path, "", "u9", "eve@x.io")
	assert.Equal(t, rec.Code, http.StatusNotFound)
	rec = do(h, "POST", path, `{"message":"let me in"}`, "u9", "eve@x.io")
	assert.Equal(t, rec.Code, http.StatusNotFound)

	var msgs []model.ChatMessage
	rec = do(h, "GET", path, "", "u1", "alice@x.io")
	_ = json.Unmarshal(rec.Body.Bytes(), &msgs)
	assert.Equal(t, len(msgs), 1)

	var groups []model.Group
	rec = do(h, "GET", "/api/groups", "", "u9", "eve@x.io")
	_ = json.Unmarshal(rec.Body.Bytes(), &groups)
	assert.Equal(t, len(groups), 0)
}

func TestCalendarExport(t *testing.T) {
	h, _ := newRouter(t, true)
	do(h, "POST", "/api/events", `{"title":"Standup","date":"2024-04-02T09:30"}`, "u1", "")

	rec := do(h, "GET", "/api/calendar.ics", "", "u1", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, rec.Header().Get("Content-Type"), "text/calendar; charset=utf-8")
	assert.Equal(t, strings.Contains(rec.Body.String(), "SUMMARY:Standup"), true)
}

func TestGetEventRespectsVisibility(t *testing.T) {
	h, store := newRouter(t, true)
	ctx := context.Background()

	g := &model.Group{ID: "g1", Name: "Ops", Members: []string{"bob@x.io"}, CreatedBy: "u7"}
	assert.Equal(t, store.CreateGroup(ctx, g), nil)
	rec := do(h, "POST", "/api/events", `{"title":"Retro","date":"2024-04-02","assigned_to":["carol@x.io"],"group_ids":["`+g.ID+`"]}`, "u1", "")
	assert.Equal(t, rec.Code, http.StatusCreated)
	var created eventResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &created)
	path := "/api/events/" + created.Event.ID

	rec = do(h, "GET", path, "", "u9", "eve@x.io")
	assert.Equal(t, rec.Code, http.StatusNotFound)
	rec = do(h, "GET", "/api/events/missing", "", "u9", "eve@x.io")
	assert.Equal(t, rec.Code, http.StatusNotFound)

	for _, who := range [][2]string{{"u1", ""}, {"", "CAROL@x.io"}, {"", "bob@x.io"}, {"u7", ""}, {"", ""}} {
		rec = do(h, "GET", path, "", who[0], who[1])
		assert.Equal(t, rec.Code, http.StatusOK)
	}
}

func TestGetEventKeepsEmptyLists(t *testing.T) {
	h, _ := newRouter(t, true)
	rec := do(h, "POST", "/api/events", `{"title":"Solo","date":"2024-04-02"}`, "u1", "")
	assert.Equal(t, rec.Code, http.StatusCreated)
	var created eventResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = do(h, "GET", "/api/events/"+created.Event.ID, "", "u1", "")
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, strings.Contains(rec.Body.String(), `"assigned_to":[]`), true)
	assert.Equal(t, strings.Contains(rec.Body.String(), `"group_ids":[]`), true)
}
