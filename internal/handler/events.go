package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/planner/internal/middleware"
	"github.com/planner/internal/model"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/service"
)

type EventHandler struct {
	planner *service.Planner
}

func NewEventHandler(planner *service.Planner) *EventHandler {
	return &EventHandler{planner: planner}
}

// eventResponse — запись после мутации. Warning непуст, если письма дошли не всем.
type eventResponse struct {
	Event   model.Event     `json:"event"`
	Notice  *notify.Outcome `json:"notice,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

func newEventResponse(res service.Result[model.Event]) eventResponse {
	return eventResponse{Event: res.Entity, Notice: res.Notice, Warning: res.Warning()}
}

// List — записи, видимые текущему пользователю.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events, _, err := h.planner.Visible(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		writeErr(w, "events.List", err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Get: чужая запись неотличима от отсутствующей (404).
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.planner.VisibleEvent(r.Context(), chi.URLParam(r, "id"), middleware.GetIdentity(r.Context()))
	if err != nil {
		writeErr(w, "events.Get", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.EventInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.planner.CreateEvent(r.Context(), in, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeErr(w, "events.Create", err)
		return
	}
	writeJSON(w, http.StatusCreated, newEventResponse(res))
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch service.EventPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	res, err := h.planner.UpdateEvent(r.Context(), chi.URLParam(r, "id"), patch, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeErr(w, "events.Update", err)
		return
	}
	writeJSON(w, http.StatusOK, newEventResponse(res))
}

// Toggle переключает Completed у задачи.
func (h *EventHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	res, err := h.planner.ToggleTodo(r.Context(), chi.URLParam(r, "id"), middleware.GetIdentity(r.Context()))
	if err != nil {
		writeErr(w, "events.Toggle", err)
		return
	}
	writeJSON(w, http.StatusOK, newEventResponse(res))
}

// Delete идемпотентен: 204 и для уже удалённой записи.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.planner.DeleteEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, "events.Delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
