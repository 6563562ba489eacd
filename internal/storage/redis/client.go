package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/planner/internal/model"
)

// Отметка напоминания живёт двое суток: за это время событие гарантированно уходит из окна.
const ReminderMarkTTL = 48 * time.Hour

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

func otpKey(email string) string { return "otp_" + strings.ToLower(email) }

// PutOTP сохраняет запись целиком (JSON) по ключу otp_{email}; TTL — до ExpiryTime.
func (c *Client) PutOTP(ctx context.Context, rec model.OTPRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis PutOTP marshal: %w", err)
	}
	ttl := time.Until(rec.ExpiryTime)
	if ttl <= 0 {
		ttl = time.Second
	}
	return c.cli.Set(ctx, otpKey(rec.Email), data, ttl).Err()
}

// GetOTP возвращает запись или nil, если ключа нет.
func (c *Client) GetOTP(ctx context.Context, email string) (*model.OTPRecord, error) {
	val, err := c.cli.Get(ctx, otpKey(email)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec model.OTPRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("redis GetOTP unmarshal: %w", err)
	}
	return &rec, nil
}

func (c *Client) DeleteOTP(ctx context.Context, email string) error {
	return c.cli.Del(ctx, otpKey(email)).Err()
}

// Claim ставит reminders:{key} через SETNX: true только у первого вызывающего.
func (c *Client) Claim(ctx context.Context, key, eventID string, at time.Time) (bool, error) {
	data, _ := json.Marshal(map[string]string{"event_id": eventID, "sent_at": at.UTC().Format(time.RFC3339)})
	return c.cli.SetNX(ctx, "reminders:"+key, data, ReminderMarkTTL).Result()
}
