package authflow

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/balancebuddy/authflow/internal/audit"
	"go.uber.org/zap"
)

// User is a durable user record as held by the [UserStore].
type User struct {
	ID             string
	Identity       string
	DisplayName    string
	PasswordHash   string
	ResetTokenHash string
	ResetExpiresAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PublicUser is the client-facing view of a [User].
type PublicUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	CreatedAt time.Time `json:"createdAt"`
}

// Public strips credential and reset-token fields.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Email:     u.Identity,
		FullName:  u.DisplayName,
		CreatedAt: u.CreatedAt,
	}
}

// NewUser is the input to [UserStore.Create].
type NewUser struct {
	Identity     string
	DisplayName  string
	PasswordHash string
}

// UserStore is the durable credential store.
//
// Lookups return [ErrUserNotFound] when nothing matches. Create must enforce
// identity uniqueness and report a violation as [ErrAccountExists]; that
// constraint is the authoritative duplicate-registration signal.
// ConsumeResetToken must replace the password hash and clear both reset
// fields in one atomic step, and only when the token is still unexpired at
// now; otherwise it returns [ErrUserNotFound].
type UserStore interface {
	FindByIdentity(ctx context.Context, identity string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user NewUser) (User, error)
	SetResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (User, error)
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	PurgeExpiredResetTokens(ctx context.Context, before time.Time) (int, error)
}

// Message is one rendered notification.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Notifier delivers rendered messages. Send inherits the request context;
// a non-nil error surfaces to the caller as [ErrDeliveryFailed].
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// VerifyResult is the outcome of checking a presented code.
type VerifyResult uint8

const (
	// VerifyNotFound means no code is outstanding for the identity.
	VerifyNotFound VerifyResult = iota
	// VerifyValid means the code matched a live entry. The entry is kept.
	VerifyValid
	// VerifyExpired means the window elapsed; the entry has been purged.
	VerifyExpired
	// VerifyMismatch means a live entry exists but the code differs.
	VerifyMismatch
)

func (r VerifyResult) String() string {
	switch r {
	case VerifyValid:
		return "valid"
	case VerifyExpired:
		return "expired"
	case VerifyMismatch:
		return "mismatch"
	default:
		return "not_found"
	}
}

// Err maps a non-valid outcome to its sentinel error, or nil for VerifyValid.
func (r VerifyResult) Err() error {
	switch r {
	case VerifyValid:
		return nil
	case VerifyExpired:
		return ErrOTPExpired
	case VerifyMismatch:
		return ErrOTPMismatch
	default:
		return ErrOTPNotFound
	}
}

// RegistrationRequest starts a registration.
type RegistrationRequest struct {
	Identity    string
	DisplayName string
	Password    string
}

// RegistrationPayload completes a registration. Empty fields fall back to the
// snapshot captured when the code was issued.
type RegistrationPayload struct {
	Identity    string
	DisplayName string
	Password    string
}

// SessionResult is returned by registration completion and login.
type SessionResult struct {
	User      User
	Token     string
	ExpiresAt time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// MultiSink is an [AuditSink] that forwards each event to every member.
type MultiSink = internalaudit.MultiSink

// ZapSink is an [AuditSink] that logs events through a zap logger.
type ZapSink = internalaudit.ZapSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapSink creates a [ZapSink] logging under the "audit" name.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return internalaudit.NewZapSink(logger)
}
