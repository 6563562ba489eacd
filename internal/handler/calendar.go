package handler

import (
	"net/http"
	"time"

	"github.com/planner/internal/ics"
	"github.com/planner/internal/middleware"
	"github.com/planner/internal/service"
)

// CalendarHandler — выгрузка видимых записей в .ics для внешних календарей.
type CalendarHandler struct {
	planner *service.Planner
	loc     *time.Location
}

func NewCalendarHandler(planner *service.Planner, loc *time.Location) *CalendarHandler {
	return &CalendarHandler{planner: planner, loc: loc}
}

func (h *CalendarHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := middleware.GetIdentity(r.Context())
	events, _, err := h.planner.Visible(r.Context(), id)
	if err != nil {
		writeErr(w, "calendar.Export", err)
		return
	}
	name := "Planner"
	if c := id.Contact(); c != "" {
		name = "Planner (" + c + ")"
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="planner.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Export(events, name, h.loc)))
}
