package authflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	internalaudit "github.com/balancebuddy/authflow/internal/audit"
	internalflows "github.com/balancebuddy/authflow/internal/flows"
	"github.com/balancebuddy/authflow/internal/limiters"
	"github.com/balancebuddy/authflow/internal/rate"
	"github.com/balancebuddy/authflow/internal/stores"
	"github.com/balancebuddy/authflow/jwt"
	"github.com/balancebuddy/authflow/password"
)

// Engine runs verification-gated registration, the standalone email OTP
// flow, password reset and login. An Engine is safe for concurrent use.
type Engine struct {
	config              Config
	registrationStore   stores.OTPStore
	emailOTPStore       stores.OTPStore
	registrationLimiter *limiters.OTPLimiter
	emailOTPLimiter     *limiters.OTPLimiter
	resetLimiter        *limiters.PasswordResetLimiter
	loginLimiter        *rate.Limiter
	users               UserStore
	notifier            Notifier
	passwordHash        *password.Argon2
	policy              *password.Policy
	jwtManager          *jwt.Manager
	messages            *messageRenderer
	audit               *internalaudit.Dispatcher
	metrics             *Metrics
	now                 func() time.Time
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of all counters and histograms.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// ResetSweepInterval is the configured period of the reset-token sweep.
func (e *Engine) ResetSweepInterval() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.PasswordReset.SweepInterval
}

func (e *Engine) clock() time.Time {
	if e == nil || e.now == nil {
		return time.Now()
	}
	return e.now()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n uint64) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Add(id, n)
}

/*
====================================
COLLABORATOR ADAPTERS
====================================
*/

func (e *Engine) checkPassword(pw string) error {
	return e.policy.Check(pw)
}

func (e *Engine) hashPassword(pw string) (string, error) {
	return e.passwordHash.Hash(pw)
}

func (e *Engine) issueSession(userID, identity string) (string, time.Time, error) {
	return e.jwtManager.Issue(userID, identity)
}

// deliver renders d and hands it to the notifier. Latency is recorded for
// successful and failed sends alike.
func (e *Engine) deliver(ctx context.Context, d internalflows.Delivery) error {
	msg, err := e.messages.render(d)
	if err != nil {
		e.metricInc(MetricDeliveryFailure)
		return err
	}

	start := time.Now()
	err = e.notifier.Send(ctx, msg)
	if e.metrics != nil {
		e.metrics.Observe(MetricDeliveryLatency, time.Since(start))
	}
	if err != nil {
		e.metricInc(MetricDeliveryFailure)
		return err
	}
	e.metricInc(MetricDeliverySuccess)
	return nil
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) flowMetricAdd(id int, n uint64) {
	e.metricAdd(MetricID(id), n)
}

func (e *Engine) userExists(ctx context.Context, identity string) (bool, error) {
	_, err := e.users.FindByIdentity(ctx, identity)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	return false, err
}

func (e *Engine) findUserRecord(ctx context.Context, identity string) (internalflows.UserRecord, error) {
	user, err := e.users.FindByIdentity(ctx, identity)
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(user), nil
}

func (e *Engine) createUserRecord(ctx context.Context, in internalflows.NewUserRecord) (internalflows.UserRecord, error) {
	user, err := e.users.Create(ctx, NewUser{
		Identity:     in.Identity,
		DisplayName:  in.DisplayName,
		PasswordHash: in.PasswordHash,
	})
	if err != nil {
		return internalflows.UserRecord{}, err
	}
	return toFlowUser(user), nil
}

func toFlowUser(u User) internalflows.UserRecord {
	return internalflows.UserRecord{
		ID:           u.ID,
		Identity:     u.Identity,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

// sessionResult re-reads the created or authenticated user so callers receive
// the store's full record; a failed re-read falls back to the flow view.
func (e *Engine) sessionResult(ctx context.Context, grant internalflows.SessionGrant) SessionResult {
	user := User{
		ID:           grant.User.ID,
		Identity:     grant.User.Identity,
		DisplayName:  grant.User.DisplayName,
		PasswordHash: grant.User.PasswordHash,
		CreatedAt:    grant.User.CreatedAt,
	}
	if full, err := e.users.FindByID(ctx, grant.User.ID); err == nil {
		user = full
	}
	return SessionResult{User: user, Token: grant.Token, ExpiresAt: grant.ExpiresAt}
}

func isUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func mapUserStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountExists), errors.Is(err, ErrUserNotFound):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, ErrUserStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}
}

func mapOTPStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrOTPStoreUnavailable, err)
	}
}

func isOTPNotFound(err error) bool {
	return errors.Is(err, stores.ErrOTPNotFound)
}

func mapOTPLimiterError(err error) error {
	switch {
	case errors.Is(err, limiters.ErrOTPRateLimited):
		return ErrOTPRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}
}

func mapResetLimiterError(err error) error {
	switch {
	case errors.Is(err, limiters.ErrResetRateLimited):
		return ErrPasswordResetRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}
}

func mapLoginLimiterError(err error) error {
	switch {
	case errors.Is(err, rate.ErrRateLimited):
		return ErrLoginRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
	}
}

/*
====================================
OTP STORE ADAPTERS
====================================
*/

func otpStoreGet(store stores.OTPStore) func(context.Context, string) (internalflows.OTPEntry, error) {
	return func(ctx context.Context, identity string) (internalflows.OTPEntry, error) {
		record, err := store.Get(ctx, identity)
		if err != nil {
			return internalflows.OTPEntry{}, err
		}
		entry := internalflows.OTPEntry{
			Identity:  record.Identity,
			CodeHash:  record.CodeHash,
			IssuedAt:  record.IssuedAt,
			ExpiresAt: record.ExpiresAt,
		}
		if record.Pending != nil {
			entry.Pending = &internalflows.PendingRegistration{
				DisplayName:  record.Pending.DisplayName,
				Identity:     record.Pending.Identity,
				PasswordHash: record.Pending.PasswordHash,
			}
		}
		return entry, nil
	}
}

func otpStoreSave(store stores.OTPStore) func(context.Context, internalflows.OTPEntry, time.Duration) error {
	return func(ctx context.Context, entry internalflows.OTPEntry, ttl time.Duration) error {
		record := &stores.OTPRecord{
			Identity:  entry.Identity,
			CodeHash:  entry.CodeHash,
			IssuedAt:  entry.IssuedAt,
			ExpiresAt: entry.ExpiresAt,
		}
		if entry.Pending != nil {
			record.Pending = &stores.PendingRegistration{
				DisplayName:  entry.Pending.DisplayName,
				Identity:     entry.Pending.Identity,
				PasswordHash: entry.Pending.PasswordHash,
			}
		}
		return store.Set(ctx, record, ttl)
	}
}

func (e *Engine) ready() bool {
	return e != nil && e.users != nil && e.notifier != nil && e.passwordHash != nil &&
		e.policy != nil && e.jwtManager != nil && e.messages != nil
}
