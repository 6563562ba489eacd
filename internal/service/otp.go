package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/logger"
	"github.com/planner/internal/model"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/sanitize"
	"github.com/planner/internal/storage"
)

const (
	OTPLength      = 6
	OTPExpiry      = 10 * time.Minute
	OTPMaxAttempts = 5
)

var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrOTPNotFound      = errors.New("OTP not found or expired. Please request a new one.")
	ErrOTPExhausted     = errors.New("Maximum verification attempts exceeded. Please request a new OTP.")
	ErrOTPMismatch      = errors.New("invalid OTP")
	ErrOTPNotConfigured = errors.New("email service is not configured")
)

// MismatchError — неверный код; Remaining — сколько попыток осталось.
type MismatchError struct {
	Remaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("Invalid OTP. %d attempt(s) remaining.", e.Remaining)
}

func (e *MismatchError) Is(target error) bool { return target == ErrOTPMismatch }

// OTPService — подтверждение email одноразовым кодом.
type OTPService struct {
	store     storage.OTPStore
	transport notify.Transport
	users     storage.UserStore
	now       func() time.Time
}

func NewOTPService(store storage.OTPStore, transport notify.Transport, users storage.UserStore) *OTPService {
	return &OTPService{store: store, transport: transport, users: users, now: time.Now}
}

// generateOTP — length случайных цифр (crypto/rand).
func generateOTP(length int) string {
	const digits = "0123456789"
	b := make([]byte, length)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(digits))))
		b[i] = digits[n.Int64()]
	}
	return string(b)
}

// Request генерирует код, отправляет его и только после успешной отправки сохраняет запись.
// Новый запрос заменяет предыдущий код.
func (s *OTPService) Request(ctx context.Context, email, userName string) error {
	defer logger.DeferLogDuration("otp.Request", time.Now())()
	emailNorm := sanitize.Email(email)
	if !sanitize.ValidEmail(emailNorm) {
		return apperr.Validation("email", ErrInvalidEmail.Error())
	}
	if s.transport == nil || !s.transport.Configured() {
		return fmt.Errorf("%w: %w", apperr.ErrNotConfigured, ErrOTPNotConfigured)
	}
	code := generateOTP(OTPLength)
	msg := notify.Message{
		Kind:    notify.KindOTP,
		To:      emailNorm,
		Subject: notify.SubjectLine(notify.KindOTP, notify.Subject{}),
		Params: notify.BuildParams(notify.KindOTP, notify.Subject{Extra: map[string]string{
			"otp_code":       code,
			"expiry_minutes": strconv.Itoa(int(OTPExpiry / time.Minute)),
		}}, emailNorm, userName, time.UTC),
	}
	if err := s.transport.Send(ctx, msg); err != nil {
		return apperr.Transport("otp.send", err)
	}
	rec := model.OTPRecord{
		Email:       emailNorm,
		OTP:         code,
		ExpiryTime:  s.now().Add(OTPExpiry),
		Attempts:    0,
		MaxAttempts: OTPMaxAttempts,
	}
	if err := s.store.PutOTP(ctx, rec); err != nil {
		return apperr.Transport("otp.store", err)
	}
	logger.Infof("otp: код отправлен key=otp_%s", emailNorm)
	return nil
}

// read возвращает действующую запись; просроченные и исчерпанные удаляются при чтении.
func (s *OTPService) read(ctx context.Context, email string) (*model.OTPRecord, error) {
	rec, err := s.store.GetOTP(ctx, email)
	if err != nil {
		return nil, apperr.Transport("otp.read", err)
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Expired(s.now()) || rec.Exhausted() {
		if err := s.store.DeleteOTP(ctx, email); err != nil {
			logger.Errorf("otp: delete stale %s: %v", email, err)
		}
		return nil, nil
	}
	return rec, nil
}

// Verify сверяет код. Каждая попытка засчитывается; на MaxAttempts-й запись удаляется.
// При успехе запись удаляется, а для userID (если задан) ставится отметка подтверждения.
func (s *OTPService) Verify(ctx context.Context, email, code, userID string) error {
	defer logger.DeferLogDuration("otp.Verify", time.Now())()
	emailNorm := sanitize.Email(email)
	rec, err := s.read(ctx, emailNorm)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrOTPNotFound
	}

	rec.Attempts++
	if rec.Exhausted() {
		// Попытка, исчерпавшая лимит, не засчитывается даже с верным кодом.
		_ = s.store.DeleteOTP(ctx, emailNorm)
		return ErrOTPExhausted
	}
	if err := s.store.PutOTP(ctx, *rec); err != nil {
		return apperr.Transport("otp.store", err)
	}
	if !codeEqual(rec.OTP, code) {
		return &MismatchError{Remaining: rec.MaxAttempts - rec.Attempts}
	}

	if err := s.store.DeleteOTP(ctx, emailNorm); err != nil {
		logger.Errorf("otp: delete used %s: %v", emailNorm, err)
	}
	if userID != "" && s.users != nil {
		now := s.now().UTC()
		st := model.UserStatus{UserID: userID, EmailVerified: true, EmailVerifiedAt: &now, VerifiedViaOTP: true}
		if err := s.users.SetVerification(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func codeEqual(want, got string) bool {
	got = strings.TrimSpace(got)
	return len(got) == len(want) && subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}
