package authflow

import (
	"context"

	"github.com/balancebuddy/authflow/internal"
	internalflows "github.com/balancebuddy/authflow/internal/flows"
	"github.com/balancebuddy/authflow/internal/limiters"
	"github.com/balancebuddy/authflow/internal/stores"
)

// RequestRegistrationOTP validates a registration request, snapshots it with
// a hashed credential and emails a six-digit code valid for the registration
// window. Any earlier code for the identity stops matching. Identities that
// already belong to a user are refused with [ErrAccountExists].
func (e *Engine) RequestRegistrationOTP(ctx context.Context, req RegistrationRequest) error {
	return internalflows.RunIssueOTP(ctx, internalflows.OTPIssueRequest{
		Identity:    req.Identity,
		DisplayName: req.DisplayName,
		Password:    req.Password,
	}, e.registrationOTPDeps())
}

// VerifyRegistrationOTP checks code against the identity's outstanding
// registration code. A valid code does not consume the entry; it stays until
// [Engine.CompleteRegistration] or until the store TTL lapses.
//
// The non-valid outcomes are reported through the result with a nil error;
// use [VerifyResult.Err] for a sentinel.
func (e *Engine) VerifyRegistrationOTP(ctx context.Context, identity, code string) (VerifyResult, error) {
	outcome, err := internalflows.RunVerifyOTP(ctx, identity, code, e.registrationOTPDeps())
	return VerifyResult(outcome), err
}

// ResendRegistrationOTP issues a fresh code for an in-progress registration,
// keeping the captured snapshot. Without one it returns [ErrNoPendingFlow].
func (e *Engine) ResendRegistrationOTP(ctx context.Context, identity string) error {
	return internalflows.RunResendOTP(ctx, identity, e.registrationOTPDeps())
}

// CompleteRegistration creates the user for an identity whose registration
// entry is still held, deletes the entry and returns a session. Fields set in
// payload override the snapshot taken at request time.
func (e *Engine) CompleteRegistration(ctx context.Context, identity string, payload RegistrationPayload) (SessionResult, error) {
	grant, err := internalflows.RunFinalizeRegistration(ctx, identity, internalflows.FinalizePayload{
		Identity:    payload.Identity,
		DisplayName: payload.DisplayName,
		Password:    payload.Password,
	}, e.finalizeDeps())
	if err != nil {
		return SessionResult{}, err
	}
	return e.sessionResult(ctx, grant), nil
}

func (e *Engine) registrationOTPDeps() internalflows.OTPDeps {
	deps := e.otpDeps(e.registrationStore, e.registrationLimiter, e.config.Registration)
	deps.CapturePending = true
	deps.RefuseRegistered = true
	deps.RequirePendingOnResend = true
	deps.IssueKind = internalflows.DeliveryRegistrationCode
	deps.ResendKind = internalflows.DeliveryRegistrationResend
	deps.Metrics = internalflows.OTPMetrics{
		Issued:      int(MetricRegistrationOTPIssued),
		Resent:      int(MetricRegistrationOTPResent),
		Valid:       int(MetricRegistrationOTPValid),
		Mismatch:    int(MetricRegistrationOTPMismatch),
		Expired:     int(MetricRegistrationOTPExpired),
		NotFound:    int(MetricRegistrationOTPNotFound),
		RateLimited: int(MetricOTPRateLimited),
		Duplicate:   int(MetricRegistrationDuplicate),
	}
	deps.Events = internalflows.OTPEvents{
		Issued: auditEventRegistrationOTPIssued,
		Resent: auditEventRegistrationOTPResent,
		Verify: auditEventRegistrationOTPVerify,
	}
	return deps
}

func (e *Engine) finalizeDeps() internalflows.FinalizeDeps {
	deps := internalflows.FinalizeDeps{
		Now:                 e.clock,
		NormalizeIdentity:   NormalizeIdentity,
		ValidateDisplayName: validateDisplayName,
		MapStoreError:       mapOTPStoreError,
		IsEntryNotFound:     isOTPNotFound,
		MapUserStoreError:   mapUserStoreError,
		MetricInc:           e.flowMetricInc,
		EmitAudit:           e.emitAudit,
		Metrics: internalflows.FinalizeMetrics{
			Completed:  int(MetricRegistrationCompleted),
			Duplicate:  int(MetricRegistrationDuplicate),
			Unverified: int(MetricRegistrationUnverified),
		},
		Events: internalflows.FinalizeEvents{
			Completed: auditEventRegistrationCompleted,
		},
		Errors: internalflows.FinalizeErrors{
			EngineNotReady:       ErrEngineNotReady,
			InvalidIdentity:      ErrInvalidIdentity,
			InvalidDisplayName:   ErrInvalidDisplayName,
			InvalidRequest:       ErrInvalidRequest,
			PasswordPolicy:       ErrPasswordPolicy,
			VerificationRequired: ErrVerificationRequired,
			AccountExists:        ErrAccountExists,
		},
	}
	if !e.ready() || e.registrationStore == nil {
		return deps
	}

	deps.CheckPassword = e.checkPassword
	deps.HashPassword = e.hashPassword
	deps.GetEntry = otpStoreGet(e.registrationStore)
	deps.DeleteEntry = e.registrationStore.Delete
	deps.UserExists = e.userExists
	deps.CreateUser = e.createUserRecord
	deps.IssueSession = e.issueSession
	return deps
}

// otpDeps holds the wiring shared by both OTP flow variants.
func (e *Engine) otpDeps(store stores.OTPStore, limiter *limiters.OTPLimiter, cfg OTPFlowConfig) internalflows.OTPDeps {
	deps := internalflows.OTPDeps{
		Window:              cfg.Window,
		StoreTTL:            cfg.Window + cfg.StoreGrace,
		Now:                 e.clock,
		ClientIPFromContext: clientIPFromContext,
		NormalizeIdentity:   NormalizeIdentity,
		ValidateDisplayName: validateDisplayName,
		GenerateCode:        internal.NewOTPCode,
		HashCode:            internal.HashOTPCode,
		IsCode:              internal.IsOTPCode,
		IsEntryNotFound:     isOTPNotFound,
		MapStoreError:       mapOTPStoreError,
		MapUserStoreError:   mapUserStoreError,
		MapLimiterError:     mapOTPLimiterError,
		MetricInc:           e.flowMetricInc,
		EmitAudit:           e.emitAudit,
		EmitRateLimit:       e.emitRateLimit,
		Errors: internalflows.OTPErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidIdentity:    ErrInvalidIdentity,
			InvalidCode:        ErrInvalidCode,
			InvalidDisplayName: ErrInvalidDisplayName,
			PasswordPolicy:     ErrPasswordPolicy,
			AccountExists:      ErrAccountExists,
			NoPendingFlow:      ErrNoPendingFlow,
			DeliveryFailed:     ErrDeliveryFailed,
			RateLimited:        ErrOTPRateLimited,
		},
	}
	if !e.ready() || store == nil {
		return deps
	}

	deps.CheckPassword = e.checkPassword
	deps.HashPassword = e.hashPassword
	deps.GetEntry = otpStoreGet(store)
	deps.SaveEntry = otpStoreSave(store)
	deps.DeleteEntry = store.Delete
	deps.UserExists = e.userExists
	deps.Deliver = e.deliver
	if limiter != nil {
		deps.CheckIssueLimiter = limiter.CheckIssue
		deps.CheckVerifyLimiter = limiter.CheckVerify
	}
	return deps
}
