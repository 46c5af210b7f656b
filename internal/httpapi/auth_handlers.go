package httpapi

import (
	"net/http"
	"strings"

	"github.com/balancebuddy/authflow"
	authmw "github.com/balancebuddy/authflow/middleware"
	"github.com/go-chi/chi/v5"
)

type registerRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) valid() bool {
	return strings.TrimSpace(r.FullName) != "" && strings.TrimSpace(r.Email) != "" && r.Password != ""
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type completeRegistrationRequest struct {
	Email    string          `json:"email"`
	UserData registerRequest `json:"userData"`
}

// identity prefers the top-level email and falls back to userData.email.
func (r completeRegistrationRequest) identity() string {
	if e := strings.TrimSpace(r.Email); e != "" {
		return e
	}
	return strings.TrimSpace(r.UserData.Email)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type deliveryResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Delivered bool   `json:"delivered"`
}

type verifyResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Valid    bool   `json:"valid"`
	Verified bool   `json:"verified"`
}

type sessionResponse struct {
	Success bool                `json:"success,omitempty"`
	Message string              `json:"message,omitempty"`
	ID      string              `json:"id,omitempty"`
	Token   string              `json:"token"`
	User    authflow.PublicUser `json:"user"`
}

type resetTokenResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil || !req.valid() {
		writeMessage(w, http.StatusBadRequest, "All fields are required")
		return
	}

	err := h.svc.RequestRegistrationOTP(r.Context(), authflow.RegistrationRequest{
		Identity:    req.Email,
		DisplayName: req.FullName,
		Password:    req.Password,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Success: true, Message: "OTP sent to your email", Delivered: true})
}

func (h *Handler) verifyRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Email == "" || req.OTP == "" {
		writeMessage(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}

	result, err := h.svc.VerifyRegistrationOTP(r.Context(), req.Email, req.OTP)
	h.writeVerify(w, r, result, err)
}

func (h *Handler) resendRegistrationOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Email == "" {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.svc.ResendRegistrationOTP(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Success: true, Message: "New OTP sent to your email", Delivered: true})
}

func (h *Handler) completeRegistration(w http.ResponseWriter, r *http.Request) {
	var req completeRegistrationRequest
	if err := decodeJSON(w, r, &req); err != nil || req.identity() == "" {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}

	session, err := h.svc.CompleteRegistration(r.Context(), req.identity(), authflow.RegistrationPayload{
		Identity:    req.UserData.Email,
		DisplayName: req.UserData.FullName,
		Password:    req.UserData.Password,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		Success: true,
		Message: "User registered successfully",
		Token:   session.Token,
		User:    session.User.Public(),
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "All fields are required")
		return
	}

	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		ID:    session.User.ID,
		Token: session.Token,
		User:  session.User.Public(),
	})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := authmw.ClaimsFromContext(r.Context())
	if !ok {
		h.fail(w, r, authflow.ErrUnauthorized)
		return
	}

	user, err := h.svc.UserForClaims(r.Context(), claims)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Email == "" {
		writeMessage(w, http.StatusBadRequest, "Email is required")
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deliveryResponse{Success: true, Message: "Password reset email sent", Delivered: true})
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Token == "" || req.NewPassword == "" {
		writeMessage(w, http.StatusBadRequest, "Token and new password are required")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, errorResponse{Success: true, Message: "Password reset successful"})
}

func (h *Handler) verifyResetToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, resetTokenResponse{Message: "Token is required"})
		return
	}

	valid, err := h.svc.VerifyResetToken(r.Context(), token)
	switch {
	case err != nil:
		h.fail(w, r, err)
	case !valid:
		writeJSON(w, http.StatusBadRequest, resetTokenResponse{Message: "Invalid or expired reset token"})
	default:
		writeJSON(w, http.StatusOK, resetTokenResponse{Valid: true, Message: "Token is valid"})
	}
}

// writeVerify reports a code check. Non-valid outcomes become errors so the
// status follows the outcome.
func (h *Handler) writeVerify(w http.ResponseWriter, r *http.Request, result authflow.VerifyResult, err error) {
	if err == nil {
		err = result.Err()
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Success:  true,
		Message:  "OTP verified successfully",
		Valid:    true,
		Verified: true,
	})
}
