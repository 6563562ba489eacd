// Package emailjs — транспорт писем через HTTP API EmailJS.
package emailjs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/planner/internal/notify"
)

const DefaultEndpoint = "https://api.emailjs.com/api/v1.0/email/send"

// Templates — id шаблонов EmailJS по видам писем. Пустой вид падает на Default.
type Templates struct {
	Default  string
	Reminder string
	OTP      string
}

func (t Templates) For(kind notify.Kind) string {
	switch kind {
	case notify.KindEventReminder:
		if t.Reminder != "" {
			return t.Reminder
		}
	case notify.KindOTP:
		if t.OTP != "" {
			return t.OTP
		}
	}
	return t.Default
}

// Client вызывает EmailJS. Если service_id или user_id пустые — Configured() == false.
type Client struct {
	endpoint   string
	serviceID  string
	userID     string
	templates  Templates
	httpClient *http.Client
}

// NewClient создаёт клиент. endpoint пустой — используется DefaultEndpoint.
func NewClient(endpoint, serviceID, userID string, templates Templates) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:  strings.TrimSuffix(endpoint, "/"),
		serviceID: serviceID,
		userID:    userID,
		templates: templates,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.serviceID != "" && c.userID != "" && c.templates.Default != ""
}

type sendRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	TemplateParams map[string]string `json:"template_params"`
}

// StatusError — ответ EmailJS не 2xx/"OK"; Body — текст ответа сервиса.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("EmailJS API error: %d - %s", e.Code, e.Body)
}

// Send отправляет одно письмо. Успех — 2xx с телом "OK" или пустым.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	if !c.Configured() {
		return fmt.Errorf("emailjs: not configured")
	}
	body, err := json.Marshal(sendRequest{
		ServiceID:      c.serviceID,
		TemplateID:     c.templates.For(msg.Kind),
		UserID:         c.userID,
		TemplateParams: msg.Params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	text := strings.TrimSpace(string(raw))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Body: text}
	}
	if text != "" && text != "OK" {
		return &StatusError{Code: resp.StatusCode, Body: text}
	}
	return nil
}
