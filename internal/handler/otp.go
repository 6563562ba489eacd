package handler

import (
	"errors"
	"net/http"

	"github.com/planner/internal/middleware"
	"github.com/planner/internal/sanitize"
	"github.com/planner/internal/service"
)

// OTPHandler — подтверждение email кодом и статус подтверждения.
type OTPHandler struct {
	otp     *service.OTPService
	planner *service.Planner
}

func NewOTPHandler(otp *service.OTPService, planner *service.Planner) *OTPHandler {
	return &OTPHandler{otp: otp, planner: planner}
}

type otpRequest struct {
	Email    string `json:"email"`
	UserName string `json:"user_name"`
}

type otpVerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type otpResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *OTPHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := req.Email
	if email == "" {
		email = middleware.GetEmail(r.Context())
	}
	if !middleware.AllowOTPRequest(r, sanitize.Email(email)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	if err := h.otp.Request(r.Context(), email, req.UserName); err != nil {
		writeErr(w, "otp.Request", err)
		return
	}
	writeJSON(w, http.StatusOK, otpResponse{Success: true, Message: "OTP sent successfully"})
}

// Verify: неверный/просроченный код — 400 с текстом для пользователя.
func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	email := req.Email
	if email == "" {
		email = middleware.GetEmail(r.Context())
	}
	err := h.otp.Verify(r.Context(), email, req.OTP, middleware.GetUserID(r.Context()))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, otpResponse{Success: true, Message: "Email verified successfully"})
	case errors.Is(err, service.ErrOTPNotFound), errors.Is(err, service.ErrOTPExhausted), errors.Is(err, service.ErrOTPMismatch):
		writeJSON(w, http.StatusBadRequest, otpResponse{Success: false, Message: err.Error()})
	default:
		writeErr(w, "otp.Verify", err)
	}
}

// Status — users/{id} текущего пользователя.
func (h *OTPHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	st, err := h.planner.VerificationStatus(r.Context(), userID)
	if err != nil {
		writeErr(w, "otp.Status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
