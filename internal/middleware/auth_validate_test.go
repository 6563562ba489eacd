package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func echoIdentity(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(GetIdentity(r.Context()).String()))
}

func TestAuthServiceValidate(t *testing.T) {
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/internal/validate")
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Token != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"user_id":"u1","email":"Alice@X.io"}`))
	}))
	defer auth.Close()

	h := AuthServiceValidate(auth.URL+"/", auth.Client())(http.HandlerFunc(echoIdentity))

	req := httptest.NewRequest("GET", "/api/events", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusOK)
	assert.Equal(t, rec.Body.String(), "u1|alice@x.io")

	req = httptest.NewRequest("GET", "/ws?token=good", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusOK)

	req = httptest.NewRequest("GET", "/api/events", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, rec.Code, http.StatusUnauthorized)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/events", nil))
	assert.Equal(t, rec.Code, http.StatusUnauthorized)
}

func TestTrustedHeaders(t *testing.T) {
	h := TrustedHeaders(http.HandlerFunc(echoIdentity))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-User-Email", " Bob@X.io ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, rec.Body.String(), "bob@x.io")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ws?user_id=u7", nil))
	assert.Equal(t, rec.Body.String(), "u7")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, rec.Body.String(), "anonymous")
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, MaskToken("abcdefghijklmnop"), "abcd***")
	assert.Equal(t, MaskToken("short"), "****")
}

func otpRequestFrom(ip string) *http.Request {
	r := httptest.NewRequest("POST", "/api/otp/request", nil)
	r.RemoteAddr = ip + ":40000"
	return r
}

func TestAllowOTPRequest(t *testing.T) {
	r := otpRequestFrom("10.0.0.1")
	for i := 0; i < rateLimitMaxOTP; i++ {
		assert.Equal(t, AllowOTPRequest(r, "Limit@X.io"), true)
	}
	assert.Equal(t, AllowOTPRequest(r, "limit@x.io"), false)
	assert.Equal(t, AllowOTPRequest(otpRequestFrom("10.0.0.2"), "limit@x.io"), false)
	assert.Equal(t, AllowOTPRequest(r, "other@x.io"), true)
}

func TestAllowOTPRequestPerIP(t *testing.T) {
	// Разные адреса с одного IP: каждый email в своём лимите, но IP упирается в общий.
	for i := 0; i < rateLimitMaxOTPIP; i++ {
		r := otpRequestFrom("10.0.1.1")
		r.RemoteAddr = fmt.Sprintf("10.0.1.1:%d", 1000+i)
		assert.Equal(t, AllowOTPRequest(r, fmt.Sprintf("user%d@x.io", i)), true)
	}
	assert.Equal(t, AllowOTPRequest(otpRequestFrom("10.0.1.1"), "fresh@x.io"), false)
	assert.Equal(t, AllowOTPRequest(otpRequestFrom("10.0.1.2"), "fresh@x.io"), true)

	proxied := otpRequestFrom("10.0.1.3")
	proxied.Header.Set("X-Forwarded-For", "10.0.1.1, 10.0.1.3")
	assert.Equal(t, AllowOTPRequest(proxied, "other-fresh@x.io"), false)
}
