package config

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"gopkg.in/yaml.v3"
)

func TestDefaults(t *testing.T) {
	cfg := fromYAML(defaults())
	assert.Equal(t, cfg.ServerAddr, ":8080")
	assert.Equal(t, cfg.EmailTransport, "auto")
	assert.Equal(t, cfg.Reminder.Lead, 5*time.Minute)
	assert.Equal(t, cfg.Reminder.Window, time.Minute)
	assert.Equal(t, cfg.Reminder.DueTodaySpec, "0 9 * * *")
	assert.Equal(t, cfg.Reminder.TomorrowSpec, "0 18 * * *")
	assert.Equal(t, cfg.StoreTimeout, 5*time.Second)
	assert.Equal(t, cfg.DBMaxConnections(), 50)
}

func TestYAMLThenEnv(t *testing.T) {
	yc := defaults()
	err := yaml.Unmarshal([]byte(`
server_addr: ":9000"
email_transport: smtp
reminder_lead_minutes: 15
reminder_window_minutes: 30
reminder:
  timezone: Europe/Berlin
smtp:
  host: mail.local
`), &yc)
	assert.Equal(t, err, nil)

	t.Setenv("SERVER_ADDR", ":7000")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("STORE_TIMEOUT", "bogus")

	cfg := fromYAML(yc)
	assert.Equal(t, cfg.ServerAddr, ":7000")
	assert.Equal(t, cfg.EmailTransport, "smtp")
	assert.Equal(t, cfg.SMTP.Host, "mail.local")
	assert.Equal(t, cfg.SMTP.Port, 2525)
	assert.Equal(t, cfg.Reminder.Lead, 15*time.Minute)
	// Окно шире упреждения — берётся значение по умолчанию.
	assert.Equal(t, cfg.Reminder.Window, time.Minute)
	assert.Equal(t, cfg.StoreTimeout, 5*time.Second)
	assert.Equal(t, cfg.Reminder.Timezone, "Europe/Berlin")
}

func TestReminderLocation(t *testing.T) {
	assert.Equal(t, ReminderConfig{}.Location(), time.UTC)
	assert.Equal(t, ReminderConfig{Timezone: "Nowhere/Special"}.Location(), time.UTC)
}
