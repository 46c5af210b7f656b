package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
)

// OTPMetrics carries metric IDs for one OTP flow variant.
type OTPMetrics struct {
	Issued      int
	Resent      int
	Valid       int
	Mismatch    int
	Expired     int
	NotFound    int
	Cleared     int
	RateLimited int
	Duplicate   int
}

// OTPEvents carries audit event names for one OTP flow variant.
type OTPEvents struct {
	Issued  string
	Resent  string
	Verify  string
	Cleared string
}

// OTPErrors carries host-level sentinel errors used by the OTP flows.
type OTPErrors struct {
	EngineNotReady     error
	InvalidIdentity    error
	InvalidCode        error
	InvalidDisplayName error
	PasswordPolicy     error
	AccountExists      error
	NoPendingFlow      error
	DeliveryFailed     error
	RateLimited        error
}

// OTPIssueRequest is the input to RunIssueOTP. DisplayName and Password are
// only read when the variant captures a pending registration.
type OTPIssueRequest struct {
	Identity    string
	DisplayName string
	Password    string
}

// OTPDeps is the dependency set for one OTP flow variant. The registration
// variant sets CapturePending, RefuseRegistered and RequirePendingOnResend;
// the standalone email variant leaves them false.
type OTPDeps struct {
	Window                 time.Duration
	StoreTTL               time.Duration
	CapturePending         bool
	RefuseRegistered       bool
	RequirePendingOnResend bool
	IssueKind              DeliveryKind
	ResendKind             DeliveryKind

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string
	NormalizeIdentity   func(string) (string, bool)
	ValidateDisplayName func(string) (string, bool)
	CheckPassword       func(string) error
	HashPassword        func(string) (string, error)

	GenerateCode func() (string, error)
	HashCode     func(string) [32]byte
	IsCode       func(string) bool

	GetEntry        func(context.Context, string) (OTPEntry, error)
	SaveEntry       func(context.Context, OTPEntry, time.Duration) error
	DeleteEntry     func(context.Context, string) error
	IsEntryNotFound func(error) bool
	MapStoreError   func(error) error

	UserExists        func(context.Context, string) (bool, error)
	MapUserStoreError func(error) error

	CheckIssueLimiter  func(context.Context, string, string) error
	CheckVerifyLimiter func(context.Context, string, string) error
	MapLimiterError    func(error) error

	Deliver func(context.Context, Delivery) error

	MetricInc     func(int)
	EmitAudit     func(context.Context, string, bool, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, func() map[string]string)

	Metrics OTPMetrics
	Events  OTPEvents
	Errors  OTPErrors
}

// RunIssueOTP generates a fresh code for the identity, overwrites any live
// entry and delivers exactly one message. A delivery failure leaves the
// entry in place and returns Errors.DeliveryFailed.
func RunIssueOTP(ctx context.Context, req OTPIssueRequest, deps OTPDeps) error {
	normalizeOTPDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	identity, ok := deps.NormalizeIdentity(req.Identity)
	if !ok {
		deps.EmitAudit(ctx, deps.Events.Issued, false, "", deps.Errors.InvalidIdentity, nil)
		return deps.Errors.InvalidIdentity
	}

	var pending *PendingRegistration
	if deps.CapturePending {
		if deps.ValidateDisplayName == nil || deps.CheckPassword == nil || deps.HashPassword == nil {
			return deps.Errors.EngineNotReady
		}
		displayName, ok := deps.ValidateDisplayName(req.DisplayName)
		if !ok {
			deps.EmitAudit(ctx, deps.Events.Issued, false, "", deps.Errors.InvalidDisplayName, identityMeta(identity))
			return deps.Errors.InvalidDisplayName
		}
		if err := deps.CheckPassword(req.Password); err != nil {
			deps.EmitAudit(ctx, deps.Events.Issued, false, "", deps.Errors.PasswordPolicy, identityMeta(identity))
			return fmt.Errorf("%w: %v", deps.Errors.PasswordPolicy, err)
		}
		pending = &PendingRegistration{
			DisplayName: displayName,
			Identity:    identity,
		}
	}

	if err := deps.checkIssueLimit(ctx, identity, deps.Events.Issued); err != nil {
		return err
	}

	if deps.RefuseRegistered {
		if err := deps.refuseRegistered(ctx, identity, deps.Events.Issued); err != nil {
			return err
		}
	}

	if pending != nil {
		hash, err := deps.HashPassword(req.Password)
		if err != nil {
			return err
		}
		pending.PasswordHash = hash
	}

	return deps.issue(ctx, identity, pending, deps.IssueKind, deps.Metrics.Issued, deps.Events.Issued)
}

// RunResendOTP replaces the identity's code with a fresh one and a full
// window. With RequirePendingOnResend the entry must exist and carry a
// pending registration; otherwise resend behaves like a fresh issuance.
func RunResendOTP(ctx context.Context, identityInput string, deps OTPDeps) error {
	normalizeOTPDeps(&deps)
	if !deps.ready() {
		return deps.Errors.EngineNotReady
	}

	identity, ok := deps.NormalizeIdentity(identityInput)
	if !ok {
		deps.EmitAudit(ctx, deps.Events.Resent, false, "", deps.Errors.InvalidIdentity, nil)
		return deps.Errors.InvalidIdentity
	}

	if err := deps.checkIssueLimit(ctx, identity, deps.Events.Resent); err != nil {
		return err
	}

	if !deps.RequirePendingOnResend {
		return deps.issue(ctx, identity, nil, deps.ResendKind, deps.Metrics.Resent, deps.Events.Resent)
	}

	entry, err := deps.GetEntry(ctx, identity)
	if err != nil {
		if !deps.IsEntryNotFound(err) {
			mapped := deps.MapStoreError(err)
			deps.EmitAudit(ctx, deps.Events.Resent, false, "", mapped, identityMeta(identity))
			return mapped
		}
		if deps.RefuseRegistered {
			if err := deps.refuseRegistered(ctx, identity, deps.Events.Resent); err != nil {
				return err
			}
		}
		deps.EmitAudit(ctx, deps.Events.Resent, false, "", deps.Errors.NoPendingFlow, reasonMeta(identity, "no_entry"))
		return deps.Errors.NoPendingFlow
	}
	if entry.Pending == nil {
		deps.EmitAudit(ctx, deps.Events.Resent, false, "", deps.Errors.NoPendingFlow, reasonMeta(identity, "no_snapshot"))
		return deps.Errors.NoPendingFlow
	}

	return deps.issue(ctx, identity, entry.Pending, deps.ResendKind, deps.Metrics.Resent, deps.Events.Resent)
}

// RunVerifyOTP compares code against the identity's live entry. It never
// deletes the entry on success. An expired entry is purged and reported as
// OutcomeExpired; the next call then reports OutcomeNotFound.
func RunVerifyOTP(ctx context.Context, identityInput, code string, deps OTPDeps) (VerifyOutcome, error) {
	normalizeOTPDeps(&deps)
	if !deps.ready() {
		return OutcomeNotFound, deps.Errors.EngineNotReady
	}

	identity, ok := deps.NormalizeIdentity(identityInput)
	if !ok {
		return OutcomeNotFound, deps.Errors.InvalidIdentity
	}
	if !deps.IsCode(code) {
		deps.EmitAudit(ctx, deps.Events.Verify, false, "", deps.Errors.InvalidCode, reasonMeta(identity, "malformed_code"))
		return OutcomeNotFound, deps.Errors.InvalidCode
	}

	if deps.CheckVerifyLimiter != nil {
		if err := deps.CheckVerifyLimiter(ctx, identity, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			deps.reportLimit(ctx, mapped, identity, deps.Events.Verify, "otp_verify")
			return OutcomeNotFound, mapped
		}
	}

	entry, err := deps.GetEntry(ctx, identity)
	if err != nil {
		if deps.IsEntryNotFound(err) {
			deps.MetricInc(deps.Metrics.NotFound)
			deps.EmitAudit(ctx, deps.Events.Verify, false, "", nil, reasonMeta(identity, "not_found"))
			return OutcomeNotFound, nil
		}
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Verify, false, "", mapped, identityMeta(identity))
		return OutcomeNotFound, mapped
	}

	if deps.Now().After(entry.ExpiresAt) {
		if err := deps.DeleteEntry(ctx, identity); err != nil && !deps.IsEntryNotFound(err) {
			mapped := deps.MapStoreError(err)
			deps.EmitAudit(ctx, deps.Events.Verify, false, "", mapped, reasonMeta(identity, "expired_purge_failed"))
			return OutcomeExpired, mapped
		}
		deps.MetricInc(deps.Metrics.Expired)
		deps.EmitAudit(ctx, deps.Events.Verify, false, "", nil, reasonMeta(identity, "expired"))
		return OutcomeExpired, nil
	}

	presented := deps.HashCode(code)
	if subtle.ConstantTimeCompare(presented[:], entry.CodeHash[:]) != 1 {
		deps.MetricInc(deps.Metrics.Mismatch)
		deps.EmitAudit(ctx, deps.Events.Verify, false, "", nil, reasonMeta(identity, "mismatch"))
		return OutcomeMismatch, nil
	}

	deps.MetricInc(deps.Metrics.Valid)
	deps.EmitAudit(ctx, deps.Events.Verify, true, "", nil, identityMeta(identity))
	return OutcomeValid, nil
}

// RunClearOTP removes the identity's entry. Clearing an absent entry is not
// an error.
func RunClearOTP(ctx context.Context, identityInput string, deps OTPDeps) error {
	normalizeOTPDeps(&deps)
	if deps.DeleteEntry == nil || deps.NormalizeIdentity == nil {
		return deps.Errors.EngineNotReady
	}

	identity, ok := deps.NormalizeIdentity(identityInput)
	if !ok {
		return deps.Errors.InvalidIdentity
	}
	if err := deps.DeleteEntry(ctx, identity); err != nil && !deps.IsEntryNotFound(err) {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Cleared, false, "", mapped, identityMeta(identity))
		return mapped
	}

	deps.MetricInc(deps.Metrics.Cleared)
	deps.EmitAudit(ctx, deps.Events.Cleared, true, "", nil, identityMeta(identity))
	return nil
}

func (deps *OTPDeps) ready() bool {
	return deps.NormalizeIdentity != nil &&
		deps.GenerateCode != nil &&
		deps.HashCode != nil &&
		deps.IsCode != nil &&
		deps.GetEntry != nil &&
		deps.SaveEntry != nil &&
		deps.DeleteEntry != nil &&
		deps.Deliver != nil
}

func (deps *OTPDeps) issue(ctx context.Context, identity string, pending *PendingRegistration, kind DeliveryKind, metricID int, event string) error {
	code, err := deps.GenerateCode()
	if err != nil {
		return err
	}

	now := deps.Now()
	entry := OTPEntry{
		Identity:  identity,
		CodeHash:  deps.HashCode(code),
		IssuedAt:  now,
		ExpiresAt: now.Add(deps.Window),
		Pending:   pending,
	}
	ttl := deps.StoreTTL
	if ttl < deps.Window {
		ttl = deps.Window
	}
	if err := deps.SaveEntry(ctx, entry, ttl); err != nil {
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, event, false, "", mapped, identityMeta(identity))
		return mapped
	}

	delivery := Delivery{
		Kind:   kind,
		To:     identity,
		Code:   code,
		Window: deps.Window,
	}
	if pending != nil {
		delivery.DisplayName = pending.DisplayName
	}
	if err := deps.Deliver(ctx, delivery); err != nil {
		deps.EmitAudit(ctx, event, false, "", deps.Errors.DeliveryFailed, reasonMeta(identity, "delivery_failed"))
		return fmt.Errorf("%w: %v", deps.Errors.DeliveryFailed, err)
	}

	deps.MetricInc(metricID)
	deps.EmitAudit(ctx, event, true, "", nil, identityMeta(identity))
	return nil
}

func (deps *OTPDeps) checkIssueLimit(ctx context.Context, identity, event string) error {
	if deps.CheckIssueLimiter == nil {
		return nil
	}
	if err := deps.CheckIssueLimiter(ctx, identity, deps.ClientIPFromContext(ctx)); err != nil {
		mapped := deps.MapLimiterError(err)
		deps.reportLimit(ctx, mapped, identity, event, "otp_issue")
		return mapped
	}
	return nil
}

func (deps *OTPDeps) reportLimit(ctx context.Context, mapped error, identity, event, scope string) {
	deps.EmitAudit(ctx, event, false, "", mapped, identityMeta(identity))
	if errors.Is(mapped, deps.Errors.RateLimited) {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitRateLimit(ctx, scope, identityMeta(identity))
	}
}

func (deps *OTPDeps) refuseRegistered(ctx context.Context, identity, event string) error {
	if deps.UserExists == nil {
		return deps.Errors.EngineNotReady
	}
	exists, err := deps.UserExists(ctx, identity)
	if err != nil {
		mapped := deps.MapUserStoreError(err)
		deps.EmitAudit(ctx, event, false, "", mapped, identityMeta(identity))
		return mapped
	}
	if exists {
		deps.MetricInc(deps.Metrics.Duplicate)
		deps.EmitAudit(ctx, event, false, "", deps.Errors.AccountExists, reasonMeta(identity, "already_registered"))
		return deps.Errors.AccountExists
	}
	return nil
}

func normalizeOTPDeps(deps *OTPDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = noopRateLimit
	}
	if deps.IsEntryNotFound == nil {
		deps.IsEntryNotFound = func(error) bool { return false }
	}
	if deps.MapStoreError == nil {
		deps.MapStoreError = func(err error) error { return err }
	}
	if deps.MapUserStoreError == nil {
		deps.MapUserStoreError = func(err error) error { return err }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
}
