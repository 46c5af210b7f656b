package authflow

import (
	"context"
	"fmt"

	internalflows "github.com/balancebuddy/authflow/internal/flows"
	"github.com/balancebuddy/authflow/jwt"
)

// Login authenticates identity and password and returns a session. Unknown
// identities and wrong passwords both return [ErrInvalidCredentials]. Stored
// bcrypt hashes are upgraded to argon2id after a successful login when
// Config.Password.UpgradeOnLogin is set.
func (e *Engine) Login(ctx context.Context, identity, password string) (SessionResult, error) {
	grant, err := internalflows.RunLogin(ctx, identity, password, e.loginDeps())
	if err != nil {
		return SessionResult{}, err
	}
	return e.sessionResult(ctx, grant), nil
}

// ValidateSession verifies a session credential and returns its claims. Any
// failure is reported as [ErrUnauthorized].
func (e *Engine) ValidateSession(ctx context.Context, token string) (*jwt.SessionClaims, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		e.rejectSession(ctx, "missing_token")
		return nil, ErrUnauthorized
	}

	claims, err := e.jwtManager.Parse(token)
	if err != nil {
		e.rejectSession(ctx, "invalid_token")
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	e.metricInc(MetricSessionValidated)
	return claims, nil
}

// CurrentUser resolves the user a session credential belongs to.
func (e *Engine) CurrentUser(ctx context.Context, token string) (User, error) {
	claims, err := e.ValidateSession(ctx, token)
	if err != nil {
		return User{}, err
	}
	return e.UserForClaims(ctx, claims)
}

// UserForClaims loads the user named by claims that were already accepted by
// [Engine.ValidateSession]. A user deleted since issuance is reported as
// [ErrUnauthorized].
func (e *Engine) UserForClaims(ctx context.Context, claims *jwt.SessionClaims) (User, error) {
	if !e.ready() {
		return User{}, ErrEngineNotReady
	}
	if claims == nil || claims.UID == "" {
		e.rejectSession(ctx, "missing_subject")
		return User{}, ErrUnauthorized
	}

	user, err := e.users.FindByID(ctx, claims.UID)
	if err != nil {
		if isUserNotFound(err) {
			e.rejectSession(ctx, "user_not_found")
			return User{}, ErrUnauthorized
		}
		return User{}, mapUserStoreError(err)
	}
	return user, nil
}

func (e *Engine) rejectSession(ctx context.Context, reason string) {
	e.metricInc(MetricSessionRejected)
	e.emitAudit(ctx, auditEventSessionRejected, false, "", ErrUnauthorized, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

func (e *Engine) loginDeps() internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		UpgradeOnLogin:      e.config.Password.UpgradeOnLogin,
		ClientIPFromContext: clientIPFromContext,
		NormalizeIdentity:   NormalizeIdentity,
		MapLimiterError:     mapLoginLimiterError,
		IsUserNotFound:      isUserNotFound,
		MapUserStoreError:   mapUserStoreError,
		MetricInc:           e.flowMetricInc,
		EmitAudit:           e.emitAudit,
		EmitRateLimit:       e.emitRateLimit,
		Metrics: internalflows.LoginMetrics{
			Success:     int(MetricLoginSuccess),
			Failure:     int(MetricLoginFailure),
			RateLimited: int(MetricLoginRateLimited),
			Rehash:      int(MetricPasswordRehash),
		},
		Events: internalflows.LoginEvents{
			Success:     auditEventLoginSuccess,
			Failure:     auditEventLoginFailure,
			RateLimited: auditEventLoginRateLimited,
		},
		Errors: internalflows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			RateLimited:        ErrLoginRateLimited,
		},
	}
	if !e.ready() {
		return deps
	}

	deps.FindUserByIdentity = e.findUserRecord
	deps.UpdatePasswordHash = e.users.UpdatePasswordHash
	deps.VerifyPassword = e.passwordHash.Verify
	deps.NeedsUpgrade = e.passwordHash.NeedsUpgrade
	deps.HashPassword = e.passwordHash.Hash
	deps.IssueSession = e.issueSession
	if e.loginLimiter != nil {
		deps.CheckLimiter = e.loginLimiter.CheckLogin
		deps.IncrementLimiter = e.loginLimiter.IncrementLogin
		deps.ResetLimiter = e.loginLimiter.ResetLogin
	}
	return deps
}
