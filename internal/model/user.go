package model

import "time"

// UserStatus — запись users/{id}: подтверждение email.
type UserStatus struct {
	UserID          string     `json:"user_id"`
	EmailVerified   bool       `json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	VerifiedViaOTP  bool       `json:"verified_via_otp"`
}

// OTPRecord хранится по ключу otp_{email в нижнем регистре}.
type OTPRecord struct {
	Email       string    `json:"email"`
	OTP         string    `json:"otp"`
	ExpiryTime  time.Time `json:"expiry_time"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
}

func (r OTPRecord) Expired(now time.Time) bool { return !now.Before(r.ExpiryTime) }

func (r OTPRecord) Exhausted() bool { return r.Attempts >= r.MaxAttempts }
