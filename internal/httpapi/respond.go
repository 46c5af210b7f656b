package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/balancebuddy/authflow"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("request body is required")

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

// publicMessages holds the client-facing wording per sentinel. Errors not
// listed fall back to a message chosen by kind.
var publicMessages = []struct {
	err error
	msg string
}{
	{authflow.ErrAccountExists, "Email already in use"},
	{authflow.ErrOTPNotFound, "OTP not found. Please request a new one."},
	{authflow.ErrOTPExpired, "OTP has expired. Please request a new one."},
	{authflow.ErrOTPMismatch, "Invalid OTP. Please try again."},
	{authflow.ErrVerificationRequired, "Please verify OTP first"},
	{authflow.ErrNoPendingFlow, "No registration in progress. Please start over."},
	{authflow.ErrUserNotFound, "User not found"},
	{authflow.ErrInvalidOrExpiredToken, "Invalid or expired reset token"},
	{authflow.ErrInvalidCredentials, "Invalid credentials"},
	{authflow.ErrInvalidIdentity, "Invalid email format"},
	{authflow.ErrInvalidCode, "Invalid OTP format"},
	{authflow.ErrInvalidDisplayName, "Invalid full name"},
	{authflow.ErrPasswordPolicy, "Password does not meet requirements"},
	{authflow.ErrDeliveryFailed, "Failed to send email"},
	{authflow.ErrOTPRateLimited, "Too many OTP requests. Please try again later."},
	{authflow.ErrPasswordResetRateLimited, "Too many reset requests. Please try again later."},
	{authflow.ErrLoginRateLimited, "Too many login attempts. Please try again later."},
}

func publicMessage(err error) string {
	for _, entry := range publicMessages {
		if errors.Is(err, entry.err) {
			return entry.msg
		}
	}
	switch authflow.KindOf(err) {
	case authflow.KindValidation:
		return "Invalid request"
	case authflow.KindUnauthorized:
		return "Not authorized"
	case authflow.KindUpstream:
		return "Service temporarily unavailable"
	default:
		return "Internal server error"
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, authflow.ErrVerificationRequired), errors.Is(err, authflow.ErrNoPendingFlow),
		errors.Is(err, authflow.ErrInvalidOrExpiredToken):
		// These mean "start over", which clients treat as a bad request.
		return http.StatusBadRequest
	case errors.Is(err, authflow.ErrDeliveryFailed):
		return http.StatusBadGateway
	}

	switch authflow.KindOf(err) {
	case authflow.KindValidation, authflow.KindExpired:
		return http.StatusBadRequest
	case authflow.KindNotFound:
		return http.StatusNotFound
	case authflow.KindConflict:
		return http.StatusConflict
	case authflow.KindRateLimited:
		return http.StatusTooManyRequests
	case authflow.KindUnauthorized:
		return http.StatusUnauthorized
	case authflow.KindUpstream:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
