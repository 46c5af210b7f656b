package authflow

import (
	"context"
	"time"

	"github.com/balancebuddy/authflow/internal"
	internalflows "github.com/balancebuddy/authflow/internal/flows"
)

// RequestPasswordReset stores a fresh reset token digest on the identity's
// user record and emails the reset link. An earlier token stops working.
// Unknown identities return [ErrUserNotFound].
func (e *Engine) RequestPasswordReset(ctx context.Context, identity string) error {
	return internalflows.RunRequestPasswordReset(ctx, identity, e.passwordResetDeps())
}

// VerifyResetToken reports whether token is live. It does not consume it.
func (e *Engine) VerifyResetToken(ctx context.Context, token string) (bool, error) {
	return internalflows.RunVerifyResetToken(ctx, token, e.passwordResetDeps())
}

// ResetPassword sets newPassword for the holder of token and invalidates the
// token. A token succeeds at most once; later attempts return
// [ErrInvalidOrExpiredToken].
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	return internalflows.RunConsumeResetToken(ctx, token, newPassword, e.passwordResetDeps())
}

// PurgeExpiredResetTokens clears reset fields whose expiry has passed and
// returns how many records were touched.
func (e *Engine) PurgeExpiredResetTokens(ctx context.Context) (int, error) {
	return internalflows.RunPurgeExpiredResetTokens(ctx, e.passwordResetDeps())
}

func (e *Engine) passwordResetDeps() internalflows.PasswordResetDeps {
	deps := internalflows.PasswordResetDeps{
		TokenTTL:            e.config.PasswordReset.TokenTTL,
		LinkBase:            e.config.PasswordReset.LinkBase,
		Now:                 e.clock,
		ClientIPFromContext: clientIPFromContext,
		NormalizeIdentity:   NormalizeIdentity,
		MapLimiterError:     mapResetLimiterError,
		IsUserNotFound:      isUserNotFound,
		MapUserStoreError:   mapUserStoreError,
		GenerateToken:       internal.NewResetToken,
		HashToken:           internal.HashResetToken,
		IsToken:             internal.IsResetToken,
		MetricInc:           e.flowMetricInc,
		MetricAdd:           e.flowMetricAdd,
		EmitAudit:           e.emitAudit,
		EmitRateLimit:       e.emitRateLimit,
		Metrics: internalflows.PasswordResetMetrics{
			Request:         int(MetricPasswordResetRequest),
			UnknownIdentity: int(MetricPasswordResetUnknownIdentity),
			Consumed:        int(MetricPasswordResetConsumed),
			Invalid:         int(MetricPasswordResetInvalid),
			RateLimited:     int(MetricPasswordResetRateLimited),
			Purged:          int(MetricResetTokensPurged),
		},
		Events: internalflows.PasswordResetEvents{
			Request: auditEventPasswordResetRequest,
			Verify:  auditEventPasswordResetVerify,
			Confirm: auditEventPasswordResetConfirm,
			Purge:   auditEventPasswordResetPurge,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:        ErrEngineNotReady,
			InvalidIdentity:       ErrInvalidIdentity,
			UserNotFound:          ErrUserNotFound,
			InvalidOrExpiredToken: ErrInvalidOrExpiredToken,
			PasswordPolicy:        ErrPasswordPolicy,
			RateLimited:           ErrPasswordResetRateLimited,
			DeliveryFailed:        ErrDeliveryFailed,
		},
	}
	if !e.ready() {
		return deps
	}

	deps.FindUserByIdentity = e.findUserRecord
	deps.SetResetToken = e.users.SetResetToken
	deps.FindByResetToken = e.findUserByResetToken
	deps.ConsumeResetToken = e.consumeResetToken
	deps.PurgeExpired = e.users.PurgeExpiredResetTokens
	deps.CheckPassword = e.checkPassword
	deps.HashPassword = e.hashPassword
	deps.Deliver = e.deliver
	if e.resetLimiter != nil {
		deps.CheckRequestLimiter = e.resetLimiter.CheckRequest
		deps.CheckConfirmLimiter = e.resetLimiter.CheckConfirm
	}
	return deps
}

func (e *Engine) findUserByResetToken(ctx context.Context, digest string, now time.Time) (internalflows.UserRecord, error) {
	user, err := e.users.FindByResetToken(ctx, digest, now)
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(user), nil
}

func (e *Engine) consumeResetToken(ctx context.Context, digest, passwordHash string, now time.Time) (internalflows.UserRecord, error) {
	user, err := e.users.ConsumeResetToken(ctx, digest, passwordHash, now)
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(user), nil
}
