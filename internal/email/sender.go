// Package email — SMTP-транспорт писем (gomail) с HTML-шаблонами.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"gopkg.in/gomail.v2"

	"github.com/planner/internal/config"
	"github.com/planner/internal/notify"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Dialer — то, что нужно от gomail.Dialer (подменяется в тестах).
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Sender struct {
	cfg    config.SMTPConfig
	dialer Dialer
}

func NewSender(cfg config.SMTPConfig) *Sender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.SSL = cfg.Port == 465
	return &Sender{cfg: cfg, dialer: d}
}

// NewSenderWithDialer — для тестов и нестандартных SMTP-клиентов.
func NewSenderWithDialer(cfg config.SMTPConfig, d Dialer) *Sender {
	return &Sender{cfg: cfg, dialer: d}
}

func (s *Sender) Configured() bool {
	return s != nil && s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != ""
}

func (s *Sender) from() string {
	from := s.cfg.FromEmail
	if from == "" {
		from = s.cfg.Username
	}
	return from
}

// templateName: у каждого вида письма свой шаблон, остальные — generic.html.
func templateName(kind notify.Kind) string {
	switch kind {
	case notify.KindEventCreated, notify.KindEventUpdated, notify.KindEventReminder:
		return "event.html"
	case notify.KindTodoCreated, notify.KindDueToday, notify.KindDueTomorrow:
		return "todo.html"
	case notify.KindGroupInvitation:
		return "group.html"
	case notify.KindOTP:
		return "otp.html"
	}
	return "generic.html"
}

// Render собирает HTML письма из параметров шаблона.
func Render(msg notify.Message) (string, error) {
	var buf bytes.Buffer
	data := struct {
		Kind    string
		Subject string
		P       map[string]string
	}{string(msg.Kind), msg.Subject, msg.Params}
	if err := templates.ExecuteTemplate(&buf, templateName(msg.Kind), data); err != nil {
		return "", fmt.Errorf("email: render %s: %w", msg.Kind, err)
	}
	return buf.String(), nil
}

func (s *Sender) Send(ctx context.Context, msg notify.Message) error {
	if !s.Configured() {
		return fmt.Errorf("email: SMTP не настроен")
	}
	body, err := Render(msg)
	if err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from(), s.cfg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", body)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
