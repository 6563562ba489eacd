// Package devstore — хранилища для режима -dev без Redis: OTP в памяти,
// отметки напоминаний в Postgres (переживают перезапуск сервиса).
package devstore

import (
	"context"
	"time"

	"github.com/planner/internal/model"
	"github.com/planner/internal/repository"
	"github.com/planner/internal/storage/memory"
)

type Client struct {
	mem       *memory.Client
	reminders *repository.ReminderRepository
}

func New(reminders *repository.ReminderRepository) *Client {
	return &Client{mem: memory.New(), reminders: reminders}
}

func (c *Client) Close() error { return c.mem.Close() }

func (c *Client) PutOTP(ctx context.Context, rec model.OTPRecord) error {
	return c.mem.PutOTP(ctx, rec)
}
func (c *Client) GetOTP(ctx context.Context, email string) (*model.OTPRecord, error) {
	return c.mem.GetOTP(ctx, email)
}
func (c *Client) DeleteOTP(ctx context.Context, email string) error {
	return c.mem.DeleteOTP(ctx, email)
}

func (c *Client) Claim(ctx context.Context, key, eventID string, at time.Time) (bool, error) {
	return c.reminders.Claim(ctx, key, eventID, at)
}
