package authflow

import (
	"context"

	internalflows "github.com/balancebuddy/authflow/internal/flows"
)

// RequestEmailOTP emails a standalone verification code for identity. The
// code lives in its own namespace and never touches a registration entry.
func (e *Engine) RequestEmailOTP(ctx context.Context, identity string) error {
	return internalflows.RunIssueOTP(ctx, internalflows.OTPIssueRequest{Identity: identity}, e.emailOTPDeps())
}

// VerifyEmailOTP checks code against the identity's standalone code. A valid
// code is kept; the action that required it calls [Engine.ClearEmailOTP].
func (e *Engine) VerifyEmailOTP(ctx context.Context, identity, code string) (VerifyResult, error) {
	outcome, err := internalflows.RunVerifyOTP(ctx, identity, code, e.emailOTPDeps())
	return VerifyResult(outcome), err
}

// ResendEmailOTP issues a fresh standalone code whether or not one is
// outstanding.
func (e *Engine) ResendEmailOTP(ctx context.Context, identity string) error {
	return internalflows.RunResendOTP(ctx, identity, e.emailOTPDeps())
}

// ClearEmailOTP consumes the identity's standalone code.
func (e *Engine) ClearEmailOTP(ctx context.Context, identity string) error {
	return internalflows.RunClearOTP(ctx, identity, e.emailOTPDeps())
}

func (e *Engine) emailOTPDeps() internalflows.OTPDeps {
	deps := e.otpDeps(e.emailOTPStore, e.emailOTPLimiter, e.config.EmailOTP)
	deps.IssueKind = internalflows.DeliveryEmailCode
	deps.ResendKind = internalflows.DeliveryEmailResend
	deps.Metrics = internalflows.OTPMetrics{
		Issued:      int(MetricEmailOTPIssued),
		Resent:      int(MetricEmailOTPResent),
		Valid:       int(MetricEmailOTPValid),
		Mismatch:    int(MetricEmailOTPMismatch),
		Expired:     int(MetricEmailOTPExpired),
		NotFound:    int(MetricEmailOTPNotFound),
		Cleared:     int(MetricEmailOTPCleared),
		RateLimited: int(MetricOTPRateLimited),
	}
	deps.Events = internalflows.OTPEvents{
		Issued:  auditEventEmailOTPIssued,
		Resent:  auditEventEmailOTPResent,
		Verify:  auditEventEmailOTPVerify,
		Cleared: auditEventEmailOTPCleared,
	}
	return deps
}
