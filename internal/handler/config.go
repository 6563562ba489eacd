package handler

import (
	"net/http"

	"github.com/planner/internal/config"
	"github.com/planner/internal/livesync"
	"github.com/planner/internal/ws"
)

// ConfigHandler отдаёт публичные параметры конфигурации клиенту (без авторизации).
type ConfigHandler struct {
	cfg         *config.Config
	emailActive bool
}

func NewConfigHandler(cfg *config.Config, emailActive bool) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, emailActive: emailActive}
}

type publicConfig struct {
	EmailNotifications bool   `json:"email_notifications"`
	ReminderLead       int    `json:"reminder_lead_minutes"`
	Timezone           string `json:"timezone"`
}

func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, publicConfig{
		EmailNotifications: h.emailActive,
		ReminderLead:       int(h.cfg.Reminder.Lead.Minutes()),
		Timezone:           h.cfg.Reminder.Location().String(),
	})
}

// HealthHandler — проверка живости с числом соединений и живых подписок.
type HealthHandler struct {
	hub  *ws.Hub
	live *livesync.Manager
}

func NewHealthHandler(hub *ws.Hub, live *livesync.Manager) *HealthHandler {
	return &HealthHandler{hub: hub, live: live}
}

type healthResponse struct {
	Status        string `json:"status"`
	Connections   int    `json:"ws_connections"`
	Subscriptions int    `json:"live_subscriptions"`
}

func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Connections:   h.hub.Connections(),
		Subscriptions: h.live.Active(),
	})
}
