package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/planner/internal/apperr"
	"github.com/planner/internal/notify"
	"github.com/planner/internal/storage/memory"
)

func newOTP(t *testing.T) (*OTPService, *memory.Client, *memory.Store, *recordingTransport, *time.Time) {
	t.Helper()
	keys := memory.New()
	users := memory.NewStore()
	tr := newTransport()
	now := fixedNow
	svc := NewOTPService(keys, tr, users)
	svc.now = func() time.Time { return now }
	return svc, keys, users, tr, &now
}

func (r *recordingTransport) lastCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		if r.sent[i].kind == notify.KindOTP {
			return r.sent[i].msg.Params["otp_code"]
		}
	}
	return ""
}

func wrong(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestOTPRequestAndVerify(t *testing.T) {
	ctx := context.Background()
	svc, keys, users, tr, _ := newOTP(t)

	assert.Equal(t, svc.Request(ctx, " Bob@X.io ", "Bob"), nil)
	assert.Equal(t, tr.to(notify.KindOTP), []string{"bob@x.io"})
	code := tr.lastCode()
	assert.Equal(t, len(code), OTPLength)

	rec, _ := keys.GetOTP(ctx, "bob@x.io")
	assert.Equal(t, rec.MaxAttempts, OTPMaxAttempts)
	assert.Equal(t, rec.ExpiryTime, fixedNow.Add(OTPExpiry))

	assert.Equal(t, svc.Verify(ctx, "bob@x.io", code, "u1"), nil)
	st, _ := users.GetVerification(ctx, "u1")
	assert.Equal(t, st.EmailVerified, true)
	assert.Equal(t, st.VerifiedViaOTP, true)

	// Код одноразовый.
	assert.Equal(t, svc.Verify(ctx, "bob@x.io", code, "u1"), ErrOTPNotFound)
}

func TestOTPMismatchCountsDown(t *testing.T) {
	ctx := context.Background()
	svc, _, _, tr, _ := newOTP(t)
	assert.Equal(t, svc.Request(ctx, "bob@x.io", ""), nil)
	code := tr.lastCode()

	err := svc.Verify(ctx, "bob@x.io", wrong(code), "")
	var me *MismatchError
	assert.Equal(t, errors.As(err, &me), true)
	assert.Equal(t, me.Remaining, 4)
	assert.Equal(t, errors.Is(err, ErrOTPMismatch), true)

	assert.Equal(t, svc.Verify(ctx, "bob@x.io", code, ""), nil)
}

func TestOTPExhaustedEvenWithCorrectCode(t *testing.T) {
	ctx := context.Background()
	svc, keys, _, tr, _ := newOTP(t)
	assert.Equal(t, svc.Request(ctx, "bob@x.io", ""), nil)
	code := tr.lastCode()

	for i := 0; i < OTPMaxAttempts-1; i++ {
		err := svc.Verify(ctx, "bob@x.io", wrong(code), "")
		assert.Equal(t, errors.Is(err, ErrOTPMismatch), true)
	}
	assert.Equal(t, svc.Verify(ctx, "bob@x.io", code, ""), ErrOTPExhausted)

	rec, _ := keys.GetOTP(ctx, "bob@x.io")
	assert.Equal(t, rec == nil, true)
	assert.Equal(t, svc.Verify(ctx, "bob@x.io", code, ""), ErrOTPNotFound)
}

func TestOTPExpired(t *testing.T) {
	ctx := context.Background()
	svc, _, _, tr, now := newOTP(t)
	assert.Equal(t, svc.Request(ctx, "bob@x.io", ""), nil)
	code := tr.lastCode()

	*now = now.Add(OTPExpiry)
	assert.Equal(t, svc.Verify(ctx, "bob@x.io", code, ""), ErrOTPNotFound)
}

func TestOTPRequestFailures(t *testing.T) {
	ctx := context.Background()
	svc, keys, _, tr, _ := newOTP(t)

	err := svc.Request(ctx, "not-an-email", "")
	assert.Equal(t, errors.Is(err, apperr.ErrValidation), true)

	tr.fail["bob@x.io"] = true
	err = svc.Request(ctx, "bob@x.io", "")
	assert.Equal(t, errors.Is(err, apperr.ErrTransport), true)
	rec, _ := keys.GetOTP(ctx, "bob@x.io")
	assert.Equal(t, rec == nil, true)

	tr.configured = false
	err = svc.Request(ctx, "bob@x.io", "")
	assert.Equal(t, errors.Is(err, apperr.ErrNotConfigured), true)
	assert.Equal(t, errors.Is(err, ErrOTPNotConfigured), true)
}
