package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PasswordResetMetrics carries metric IDs used by the reset flows.
type PasswordResetMetrics struct {
	Request         int
	UnknownIdentity int
	Consumed        int
	Invalid         int
	RateLimited     int
	Purged          int
}

// PasswordResetEvents carries audit event names used by the reset flows.
type PasswordResetEvents struct {
	Request string
	Verify  string
	Confirm string
	Purge   string
}

// PasswordResetErrors carries host-level sentinel errors used by the reset flows.
type PasswordResetErrors struct {
	EngineNotReady        error
	InvalidIdentity       error
	UserNotFound          error
	InvalidOrExpiredToken error
	PasswordPolicy        error
	RateLimited           error
	DeliveryFailed        error
}

// PasswordResetDeps is the dependency set for the reset-token flows.
type PasswordResetDeps struct {
	TokenTTL time.Duration
	LinkBase string

	Now                 func() time.Time
	ClientIPFromContext func(context.Context) string
	NormalizeIdentity   func(string) (string, bool)

	CheckRequestLimiter func(context.Context, string, string) error
	CheckConfirmLimiter func(context.Context, string) error
	MapLimiterError     func(error) error

	FindUserByIdentity func(context.Context, string) (UserRecord, error)
	SetResetToken      func(context.Context, string, string, time.Time) error
	FindByResetToken   func(context.Context, string, time.Time) (UserRecord, error)
	ConsumeResetToken  func(context.Context, string, string, time.Time) (UserRecord, error)
	PurgeExpired       func(context.Context, time.Time) (int, error)
	IsUserNotFound     func(error) bool
	MapUserStoreError  func(error) error

	GenerateToken func() (string, string, error)
	HashToken     func(string) string
	IsToken       func(string) bool

	CheckPassword func(string) error
	HashPassword  func(string) (string, error)

	Deliver func(context.Context, Delivery) error

	MetricInc     func(int)
	MetricAdd     func(int, uint64)
	EmitAudit     func(context.Context, string, bool, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, func() map[string]string)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset issues a fresh reset token for an existing user,
// replacing any earlier one, and delivers the reset link. The token digest
// stays on the user record even when delivery fails.
func RunRequestPasswordReset(ctx context.Context, identityInput string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.NormalizeIdentity == nil || deps.FindUserByIdentity == nil || deps.SetResetToken == nil ||
		deps.GenerateToken == nil || deps.Deliver == nil {
		return deps.Errors.EngineNotReady
	}

	identity, ok := deps.NormalizeIdentity(identityInput)
	if !ok {
		deps.EmitAudit(ctx, deps.Events.Request, false, "", deps.Errors.InvalidIdentity, nil)
		return deps.Errors.InvalidIdentity
	}

	if deps.CheckRequestLimiter != nil {
		if err := deps.CheckRequestLimiter(ctx, identity, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			deps.EmitAudit(ctx, deps.Events.Request, false, "", mapped, identityMeta(identity))
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitRateLimit(ctx, "password_reset_request", identityMeta(identity))
			}
			return mapped
		}
	}

	user, err := deps.FindUserByIdentity(ctx, identity)
	if err != nil {
		if deps.IsUserNotFound(err) {
			deps.MetricInc(deps.Metrics.UnknownIdentity)
			deps.EmitAudit(ctx, deps.Events.Request, false, "", deps.Errors.UserNotFound, identityMeta(identity))
			return deps.Errors.UserNotFound
		}
		mapped := deps.MapUserStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Request, false, "", mapped, identityMeta(identity))
		return mapped
	}

	token, digest, err := deps.GenerateToken()
	if err != nil {
		return err
	}
	expiresAt := deps.Now().Add(deps.TokenTTL)
	if err := deps.SetResetToken(ctx, user.ID, digest, expiresAt); err != nil {
		mapped := deps.MapUserStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Request, false, user.ID, mapped, identityMeta(identity))
		return mapped
	}

	delivery := Delivery{
		Kind:        DeliveryPasswordReset,
		To:          user.Identity,
		DisplayName: user.DisplayName,
		Link:        strings.TrimRight(deps.LinkBase, "/") + "/" + token,
		Window:      deps.TokenTTL,
	}
	if err := deps.Deliver(ctx, delivery); err != nil {
		deps.EmitAudit(ctx, deps.Events.Request, false, user.ID, deps.Errors.DeliveryFailed, reasonMeta(identity, "delivery_failed"))
		return fmt.Errorf("%w: %v", deps.Errors.DeliveryFailed, err)
	}

	deps.MetricInc(deps.Metrics.Request)
	deps.EmitAudit(ctx, deps.Events.Request, true, user.ID, nil, identityMeta(identity))
	return nil
}

// RunVerifyResetToken reports whether token is live. It never mutates state.
// Malformed and unknown tokens are reported as invalid without error.
func RunVerifyResetToken(ctx context.Context, token string, deps PasswordResetDeps) (bool, error) {
	normalizePasswordResetDeps(&deps)
	if deps.FindByResetToken == nil || deps.HashToken == nil || deps.IsToken == nil {
		return false, deps.Errors.EngineNotReady
	}

	if !deps.IsToken(token) {
		return false, nil
	}
	user, err := deps.FindByResetToken(ctx, deps.HashToken(token), deps.Now())
	if err != nil {
		if deps.IsUserNotFound(err) {
			deps.EmitAudit(ctx, deps.Events.Verify, false, "", deps.Errors.InvalidOrExpiredToken, nil)
			return false, nil
		}
		return false, deps.MapUserStoreError(err)
	}

	deps.EmitAudit(ctx, deps.Events.Verify, true, user.ID, nil, nil)
	return true, nil
}

// RunConsumeResetToken replaces the user's credential and clears the token in
// one atomic store step. It succeeds at most once per token.
func RunConsumeResetToken(ctx context.Context, token, newPassword string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.ConsumeResetToken == nil || deps.HashToken == nil || deps.IsToken == nil ||
		deps.CheckPassword == nil || deps.HashPassword == nil {
		return deps.Errors.EngineNotReady
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckConfirmLimiter != nil {
		if err := deps.CheckConfirmLimiter(ctx, ip); err != nil {
			mapped := deps.MapLimiterError(err)
			deps.EmitAudit(ctx, deps.Events.Confirm, false, "", mapped, nil)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitRateLimit(ctx, "password_reset_confirm", nil)
			}
			return mapped
		}
	}

	if !deps.IsToken(token) {
		deps.MetricInc(deps.Metrics.Invalid)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, "", deps.Errors.InvalidOrExpiredToken, func() map[string]string {
			return map[string]string{"reason": "malformed_token"}
		})
		return deps.Errors.InvalidOrExpiredToken
	}
	if err := deps.CheckPassword(newPassword); err != nil {
		deps.EmitAudit(ctx, deps.Events.Confirm, false, "", deps.Errors.PasswordPolicy, nil)
		return fmt.Errorf("%w: %v", deps.Errors.PasswordPolicy, err)
	}
	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return err
	}

	user, err := deps.ConsumeResetToken(ctx, deps.HashToken(token), hash, deps.Now())
	if err != nil {
		if deps.IsUserNotFound(err) {
			deps.MetricInc(deps.Metrics.Invalid)
			deps.EmitAudit(ctx, deps.Events.Confirm, false, "", deps.Errors.InvalidOrExpiredToken, func() map[string]string {
				return map[string]string{"reason": "no_live_token"}
			})
			return deps.Errors.InvalidOrExpiredToken
		}
		mapped := deps.MapUserStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Confirm, false, "", mapped, nil)
		return mapped
	}

	deps.MetricInc(deps.Metrics.Consumed)
	deps.EmitAudit(ctx, deps.Events.Confirm, true, user.ID, nil, nil)
	return nil
}

// RunPurgeExpiredResetTokens clears reset fields whose expiry has passed.
func RunPurgeExpiredResetTokens(ctx context.Context, deps PasswordResetDeps) (int, error) {
	normalizePasswordResetDeps(&deps)
	if deps.PurgeExpired == nil {
		return 0, deps.Errors.EngineNotReady
	}

	n, err := deps.PurgeExpired(ctx, deps.Now())
	if err != nil {
		mapped := deps.MapUserStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Purge, false, "", mapped, nil)
		return 0, mapped
	}
	if n > 0 {
		deps.MetricAdd(deps.Metrics.Purged, uint64(n))
	}
	deps.EmitAudit(ctx, deps.Events.Purge, true, "", nil, func() map[string]string {
		return map[string]string{"purged": strconv.Itoa(n)}
	})
	return n, nil
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.MetricAdd == nil {
		deps.MetricAdd = func(int, uint64) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.EmitRateLimit == nil {
		deps.EmitRateLimit = noopRateLimit
	}
	if deps.IsUserNotFound == nil {
		deps.IsUserNotFound = func(error) bool { return false }
	}
	if deps.MapUserStoreError == nil {
		deps.MapUserStoreError = func(err error) error { return err }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
}
