package flows

import (
	"context"
	"errors"
	"time"
)

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	Success     int
	Failure     int
	RateLimited int
	Rehash      int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	Success     string
	Failure     string
	RateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	RateLimited        error
}

// LoginDeps is the dependency set for RunLogin.
type LoginDeps struct {
	UpgradeOnLogin bool

	ClientIPFromContext func(context.Context) string
	NormalizeIdentity   func(string) (string, bool)

	CheckLimiter     func(context.Context, string, string) error
	IncrementLimiter func(context.Context, string, string) error
	ResetLimiter     func(context.Context, string) error
	MapLimiterError  func(error) error

	FindUserByIdentity func(context.Context, string) (UserRecord, error)
	UpdatePasswordHash func(context.Context, string, string) error
	IsUserNotFound     func(error) bool
	MapUserStoreError  func(error) error

	VerifyPassword func(string, string) (bool, error)
	NeedsUpgrade   func(string) (bool, error)
	HashPassword   func(string) (string, error)

	IssueSession func(string, string) (string, time.Time, error)

	MetricInc     func(int)
	EmitAudit     func(context.Context, string, bool, string, error, func() map[string]string)
	EmitRateLimit func(context.Context, string, func() map[string]string)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin authenticates identity/password and mints a session. Unknown
// identities and wrong passwords are indistinguishable to the caller.
func RunLogin(ctx context.Context, identityInput, password string, deps LoginDeps) (SessionGrant, error) {
	normalizeLoginDeps(&deps)
	if deps.NormalizeIdentity == nil || deps.FindUserByIdentity == nil || deps.VerifyPassword == nil || deps.IssueSession == nil {
		return SessionGrant{}, deps.Errors.EngineNotReady
	}

	identity, ok := deps.NormalizeIdentity(identityInput)
	if !ok {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "malformed_identity"}
		})
		return SessionGrant{}, deps.Errors.InvalidCredentials
	}
	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLimiter != nil {
		if err := deps.CheckLimiter(ctx, identity, ip); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.RateLimited)
				deps.EmitAudit(ctx, deps.Events.RateLimited, false, "", mapped, identityMeta(identity))
				deps.EmitRateLimit(ctx, "login", identityMeta(identity))
			}
			return SessionGrant{}, mapped
		}
	}

	fail := func(userID, reason string) error {
		if deps.IncrementLimiter != nil {
			if err := deps.IncrementLimiter(ctx, identity, ip); err != nil {
				if mapped := deps.MapLimiterError(err); errors.Is(mapped, deps.Errors.RateLimited) {
					deps.MetricInc(deps.Metrics.RateLimited)
					deps.EmitAudit(ctx, deps.Events.RateLimited, false, userID, mapped, identityMeta(identity))
					deps.EmitRateLimit(ctx, "login", identityMeta(identity))
					return mapped
				}
			}
		}
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, userID, deps.Errors.InvalidCredentials, reasonMeta(identity, reason))
		return deps.Errors.InvalidCredentials
	}

	if password == "" {
		return SessionGrant{}, fail("", "empty_password")
	}

	user, err := deps.FindUserByIdentity(ctx, identity)
	if err != nil {
		if deps.IsUserNotFound(err) {
			return SessionGrant{}, fail("", "user_not_found")
		}
		mapped := deps.MapUserStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", mapped, identityMeta(identity))
		return SessionGrant{}, mapped
	}

	ok, err = deps.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return SessionGrant{}, fail(user.ID, "password_mismatch")
	}

	meta := identityMeta(identity)
	if deps.ResetLimiter != nil {
		if err := deps.ResetLimiter(ctx, identity); err != nil {
			// The counters lapse with their window; the login still succeeds.
			meta = reasonMeta(identity, "limiter_reset_failed")
		}
	}

	if deps.UpgradeOnLogin && deps.NeedsUpgrade != nil && deps.HashPassword != nil && deps.UpdatePasswordHash != nil {
		if needs, err := deps.NeedsUpgrade(user.PasswordHash); err == nil && needs {
			// Best effort: a failed rehash must not fail the login.
			if upgraded, err := deps.HashPassword(password); err == nil {
				if err := deps.UpdatePasswordHash(ctx, user.ID, upgraded); err == nil {
					deps.MetricInc(deps.Metrics.Rehash)
					user.PasswordHash = upgraded
				}
			}
		}
	}

	token, expiresAt, err := deps.IssueSession(user.ID, user.Identity)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, user.ID, err, reasonMeta(identity, "session_issue_failed"))
		return SessionGrant{}, err
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, user.ID, nil, meta)
	return SessionGrant{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func normalizeLoginDeps(deps *LoginDeps) {
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
