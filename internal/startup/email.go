package startup

import (
	"github.com/planner/internal/config"
	"github.com/planner/internal/email"
	"github.com/planner/internal/emailjs"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/notify"
)

// EmailTransport выбирает транспорт писем по cfg.EmailTransport:
// emailjs, smtp или auto (EmailJS, если заданы ключи, иначе SMTP).
// Ненастроенный транспорт всё равно возвращается: Notifier отметит рассылку как Skipped.
func EmailTransport(cfg *config.Config) notify.Transport {
	ejs := emailjs.NewClient(cfg.EmailJS.Endpoint, cfg.EmailJS.ServiceID, cfg.EmailJS.UserID, emailjs.Templates{
		Default:  cfg.EmailJS.TemplateDefault,
		Reminder: cfg.EmailJS.TemplateReminder,
		OTP:      cfg.EmailJS.TemplateOTP,
	})
	smtp := email.NewSender(cfg.SMTP)

	var t notify.Transport
	switch cfg.EmailTransport {
	case "emailjs":
		t = ejs
	case "smtp":
		t = smtp
	default:
		t = ejs
		if !ejs.Configured() && smtp.Configured() {
			t = smtp
		}
	}
	if !t.Configured() {
		logger.Warnf("email transport %q is not configured: notifications will be skipped", cfg.EmailTransport)
	}
	return t
}
