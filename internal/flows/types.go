package flows

import (
	"context"
	"time"
)

// PendingRegistration is the registration snapshot carried by an OTP entry.
type PendingRegistration struct {
	DisplayName  string
	Identity     string
	PasswordHash string
}

// OTPEntry is the flow-local view of a stored code.
type OTPEntry struct {
	Identity  string
	CodeHash  [32]byte
	IssuedAt  time.Time
	ExpiresAt time.Time
	Pending   *PendingRegistration
}

// UserRecord is the flow-local view of a durable user.
type UserRecord struct {
	ID           string
	Identity     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// NewUserRecord is the input to user creation.
type NewUserRecord struct {
	Identity     string
	DisplayName  string
	PasswordHash string
}

// SessionGrant is returned by flows that authenticate a user.
type SessionGrant struct {
	User      UserRecord
	Token     string
	ExpiresAt time.Time
}

// DeliveryKind selects the message template.
type DeliveryKind int

const (
	DeliveryRegistrationCode DeliveryKind = iota
	DeliveryRegistrationResend
	DeliveryEmailCode
	DeliveryEmailResend
	DeliveryPasswordReset
)

// Delivery is a message request handed to the host for rendering and sending.
type Delivery struct {
	Kind        DeliveryKind
	To          string
	DisplayName string
	Code        string
	Link        string
	Window      time.Duration
}

// VerifyOutcome is the result of comparing a presented code.
type VerifyOutcome int

const (
	OutcomeNotFound VerifyOutcome = iota
	OutcomeValid
	OutcomeExpired
	OutcomeMismatch
)

func noopAudit(context.Context, string, bool, string, error, func() map[string]string) {}

func noopRateLimit(context.Context, string, func() map[string]string) {}

func identityMeta(identity string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{
			"identity": identity,
		}
	}
}

func reasonMeta(identity, reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{
			"identity": identity,
			"reason":   reason,
		}
	}
}
