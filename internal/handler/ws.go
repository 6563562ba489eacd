package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/planner/internal/logger"
	"github.com/planner/internal/middleware"
	"github.com/planner/internal/ws"
)

// WSHandler поднимает живой поток календаря для аутентифицированного пользователя.
type WSHandler struct {
	hub      *ws.Hub
	origins  map[string]struct{} // nil — любой origin
	upgrader websocket.Upgrader
}

// NewWSHandler: allowedOrigins задаётся как в CORS (через запятую или "*").
func NewWSHandler(hub *ws.Hub, allowedOrigins string) *WSHandler {
	h := &WSHandler{hub: hub}
	if list := strings.TrimSpace(allowedOrigins); list != "" && list != "*" {
		h.origins = make(map[string]struct{})
		for _, o := range strings.Split(list, ",") {
			if o = strings.TrimSpace(o); o != "" {
				h.origins[o] = struct{}{}
			}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// originAllowed: запросы без Origin (не из браузера) пропускаются.
func (h *WSHandler) originAllowed(r *http.Request) bool {
	if h.origins == nil {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

// ServeWS: кадры events/groups приходят сразу после подключения, чаты — по chat_subscribe.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity.Anonymous() {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.originAllowed(r) {
		logger.Warnf("ws: origin %q rejected for %s", r.Header.Get("Origin"), identity)
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade %s: %v", identity, err)
		return
	}

	// Соединение живёт дольше запроса: контекст не наследуется от r.
	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, identity)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
