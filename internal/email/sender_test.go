package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
	"gopkg.in/gomail.v2"

	"github.com/planner/internal/config"
	"github.com/planner/internal/notify"
)

type fakeDialer struct {
	err  error
	sent []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

var smtpCfg = config.SMTPConfig{Host: "smtp.x.io", Port: 587, Username: "bot@x.io", Password: "secret", FromName: "Planner"}

func TestRenderTemplates(t *testing.T) {
	html, err := Render(notify.Message{
		Kind:    notify.KindOTP,
		Subject: "Your verification code",
		Params:  map[string]string{"user_name": "Bob", "otp_code": "424242", "expiry_minutes": "10"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.Contains(html, "424242"), true)
	assert.Equal(t, strings.Contains(html, "Hello Bob"), true)

	// Параметры экранируются html/template.
	html, err = Render(notify.Message{
		Kind:   notify.KindGroupInvitation,
		Params: map[string]string{"group_name": "<b>Ops</b>"},
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, strings.Contains(html, "<b>Ops</b>"), false)
	assert.Equal(t, strings.Contains(html, "&lt;b&gt;Ops&lt;/b&gt;"), true)

	assert.Equal(t, templateName(notify.KindDueTomorrow), "todo.html")
	assert.Equal(t, templateName("unknown"), "generic.html")
}

func TestSenderSend(t *testing.T) {
	d := &fakeDialer{}
	s := NewSenderWithDialer(smtpCfg, d)
	assert.Equal(t, s.Configured(), true)

	err := s.Send(context.Background(), notify.Message{Kind: notify.KindEventCreated, To: "a@x.io", Subject: "New event: Demo"})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(d.sent), 1)
	assert.Equal(t, d.sent[0].GetHeader("To"), []string{"a@x.io"})
	assert.Equal(t, d.sent[0].GetHeader("Subject"), []string{"New event: Demo"})

	d.err = errors.New("535 auth failed")
	assert.NotEqual(t, s.Send(context.Background(), notify.Message{Kind: notify.KindEventCreated, To: "a@x.io"}), nil)

	assert.Equal(t, NewSenderWithDialer(config.SMTPConfig{}, d).Configured(), false)
}
