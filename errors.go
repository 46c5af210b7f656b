package authflow

import "errors"

var (
	// ErrInvalidIdentity is returned when an identity is not a well-formed email address.
	ErrInvalidIdentity = errors.New("invalid email address")
	// ErrInvalidCode is returned when a presented code is not exactly six digits.
	ErrInvalidCode = errors.New("invalid verification code format")
	// ErrInvalidDisplayName is returned for an empty or oversized display name.
	ErrInvalidDisplayName = errors.New("invalid display name")
	// ErrPasswordPolicy is returned when a new credential fails the password policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidRequest is returned for structurally inconsistent requests.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAccountExists is returned when a durable user already holds the identity.
	ErrAccountExists = errors.New("user already registered")
	// ErrUserNotFound is returned when no durable user holds the identity.
	ErrUserNotFound = errors.New("user not found")

	// ErrOTPNotFound reports that no code is outstanding for the identity.
	ErrOTPNotFound = errors.New("verification code not found")
	// ErrOTPExpired reports that the outstanding code's window has elapsed.
	ErrOTPExpired = errors.New("verification code expired")
	// ErrOTPMismatch reports a live code that does not match the presented one.
	ErrOTPMismatch = errors.New("invalid verification code")
	// ErrVerificationRequired is returned by registration completion without a verified entry.
	ErrVerificationRequired = errors.New("please verify otp first")
	// ErrNoPendingFlow is returned by resend when no registration is in progress.
	ErrNoPendingFlow = errors.New("no registration in progress")
	// ErrInvalidOrExpiredToken is returned when a reset token is unknown, used or expired.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")

	// ErrDeliveryFailed is returned when the notifier could not deliver a message.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrOTPStoreUnavailable wraps OTP store backend failures.
	ErrOTPStoreUnavailable = errors.New("otp store unavailable")
	// ErrUserStoreUnavailable wraps credential store backend failures.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
	// ErrRateLimiterUnavailable wraps rate limiter backend failures.
	ErrRateLimiterUnavailable = errors.New("rate limiter unavailable")
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrOTPRateLimited is returned when OTP issuance or verification exceeds its budget.
	ErrOTPRateLimited = errors.New("otp rate limited")
	// ErrPasswordResetRateLimited is returned when reset requests exceed their budget.
	ErrPasswordResetRateLimited = errors.New("password reset rate limited")
	// ErrLoginRateLimited is returned when failed logins exceed their budget.
	ErrLoginRateLimited = errors.New("login rate limited")

	// ErrInvalidCredentials is returned for an unknown identity or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized is returned for a missing, malformed or expired session credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorKind classifies every sentinel error into the failure family a
// transport maps to a status code.
type ErrorKind uint8

const (
	// KindUnknown is reported for errors outside the authflow taxonomy.
	KindUnknown ErrorKind = iota
	KindValidation
	KindNotFound
	KindExpired
	KindConflict
	KindUpstream
	KindRateLimited
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrInvalidIdentity, KindValidation},
	{ErrInvalidCode, KindValidation},
	{ErrInvalidDisplayName, KindValidation},
	{ErrPasswordPolicy, KindValidation},
	{ErrInvalidRequest, KindValidation},
	{ErrOTPMismatch, KindValidation},
	{ErrAccountExists, KindConflict},
	{ErrUserNotFound, KindNotFound},
	{ErrOTPNotFound, KindNotFound},
	{ErrVerificationRequired, KindNotFound},
	{ErrNoPendingFlow, KindNotFound},
	{ErrInvalidOrExpiredToken, KindNotFound},
	{ErrOTPExpired, KindExpired},
	{ErrDeliveryFailed, KindUpstream},
	{ErrOTPStoreUnavailable, KindUpstream},
	{ErrUserStoreUnavailable, KindUpstream},
	{ErrRateLimiterUnavailable, KindUpstream},
	{ErrEngineNotReady, KindUpstream},
	{ErrOTPRateLimited, KindRateLimited},
	{ErrPasswordResetRateLimited, KindRateLimited},
	{ErrLoginRateLimited, KindRateLimited},
	{ErrInvalidCredentials, KindUnauthorized},
	{ErrUnauthorized, KindUnauthorized},
}

// KindOf reports the ErrorKind of err, unwrapping as needed. Errors that do
// not wrap an authflow sentinel report KindUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	for _, entry := range errorKinds {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindUnknown
}
