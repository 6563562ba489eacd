package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/planner/internal/middleware"
	"github.com/planner/internal/model"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/service"
	"github.com/planner/internal/visibility"
)

// GroupHandler — группы и их чаты.
type GroupHandler struct {
	planner *service.Planner
}

func NewGroupHandler(planner *service.Planner) *GroupHandler {
	return &GroupHandler{planner: planner}
}

type groupResponse struct {
	Group   model.Group     `json:"group"`
	Notice  *notify.Outcome `json:"notice,omitempty"`
	Warning string          `json:"warning,omitempty"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	_, groups, err := h.planner.Visible(r.Context(), middleware.GetIdentity(r.Context()))
	if err != nil {
		writeErr(w, "groups.List", err)
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.GroupInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.planner.CreateGroup(r.Context(), in, middleware.GetIdentity(r.Context()))
	if err != nil {
		writeErr(w, "groups.Create", err)
		return
	}
	writeJSON(w, http.StatusCreated, groupResponse{Group: res.Entity, Notice: res.Notice, Warning: res.Warning()})
}

// visibleGroup отвечает 404, если группы нет или она не видна пользователю.
func (h *GroupHandler) visibleGroup(w http.ResponseWriter, r *http.Request) (*model.Group, bool) {
	g, err := h.planner.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, "groups.Get", err)
		return nil, false
	}
	if !visibility.CanSeeGroup(middleware.GetIdentity(r.Context()), *g) {
		writeError(w, http.StatusNotFound, "not found")
		return nil, false
	}
	return g, true
}

func (h *GroupHandler) Messages(w http.ResponseWriter, r *http.Request) {
	g, ok := h.visibleGroup(w, r)
	if !ok {
		return
	}
	msgs, err := h.planner.ChatMessages(r.Context(), g.ID)
	if err != nil {
		writeErr(w, "groups.Messages", err)
		return
	}
	if msgs == nil {
		msgs = []model.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *GroupHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	g, ok := h.visibleGroup(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sender := middleware.GetIdentity(r.Context()).Contact()
	m, err := h.planner.SendChatMessage(r.Context(), g.ID, sender, req.Message)
	if err != nil {
		writeErr(w, "groups.SendMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}
