package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/planner/internal/model"
)

type mark struct {
	eventID string
	at      time.Time
}

// Client — OTP-записи и журнал напоминаний в памяти (для -dev без Redis и тестов).
type Client struct {
	mu    sync.RWMutex
	otp   map[string]model.OTPRecord
	marks map[string]mark
}

func New() *Client {
	return &Client{
		otp:   make(map[string]model.OTPRecord),
		marks: make(map[string]mark),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) PutOTP(ctx context.Context, rec model.OTPRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.otp[strings.ToLower(rec.Email)] = rec
	return nil
}

func (c *Client) GetOTP(ctx context.Context, email string) (*model.OTPRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.otp[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *Client) DeleteOTP(ctx context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.otp, strings.ToLower(email))
	return nil
}

func (c *Client) Claim(ctx context.Context, key, eventID string, at time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.marks[key]; ok {
		return false, nil
	}
	c.marks[key] = mark{eventID: eventID, at: at}
	return true, nil
}

// Claimed — есть ли отметка (для тестов и диагностики).
func (c *Client) Claimed(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.marks[key]
	return ok
}
