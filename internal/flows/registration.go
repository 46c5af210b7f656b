package flows

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FinalizeMetrics carries metric IDs used by registration completion.
type FinalizeMetrics struct {
	Completed  int
	Duplicate  int
	Unverified int
}

// FinalizeEvents carries audit event names used by registration completion.
type FinalizeEvents struct {
	Completed string
}

// FinalizeErrors carries host-level sentinel errors used by registration completion.
type FinalizeErrors struct {
	EngineNotReady       error
	InvalidIdentity      error
	InvalidDisplayName   error
	InvalidRequest       error
	PasswordPolicy       error
	VerificationRequired error
	AccountExists        error
}

// FinalizePayload overrides the pending snapshot field by field.
type FinalizePayload struct {
	Identity    string
	DisplayName string
	Password    string
}

// FinalizeDeps is the dependency set for registration completion.
type FinalizeDeps struct {
	Now func() time.Time

	NormalizeIdentity   func(string) (string, bool)
	ValidateDisplayName func(string) (string, bool)
	CheckPassword       func(string) error
	HashPassword        func(string) (string, error)

	GetEntry        func(context.Context, string) (OTPEntry, error)
	DeleteEntry     func(context.Context, string) error
	IsEntryNotFound func(error) bool
	MapStoreError   func(error) error

	UserExists        func(context.Context, string) (bool, error)
	CreateUser        func(context.Context, NewUserRecord) (UserRecord, error)
	MapUserStoreError func(error) error

	IssueSession func(string, string) (string, time.Time, error)

	MetricInc func(int)
	EmitAudit func(context.Context, string, bool, string, error, func() map[string]string)

	Metrics FinalizeMetrics
	Events  FinalizeEvents
	Errors  FinalizeErrors
}

// RunFinalizeRegistration creates the durable user for an identity that holds
// an OTP entry, deletes the entry and mints a session. A second call for the
// same identity finds no entry and returns Errors.VerificationRequired, as
// does a call after the code window closed.
func RunFinalizeRegistration(ctx context.Context, identityInput string, payload FinalizePayload, deps FinalizeDeps) (SessionGrant, error) {
	normalizeFinalizeDeps(&deps)
	if deps.NormalizeIdentity == nil || deps.ValidateDisplayName == nil || deps.CheckPassword == nil ||
		deps.HashPassword == nil || deps.GetEntry == nil || deps.DeleteEntry == nil ||
		deps.UserExists == nil || deps.CreateUser == nil || deps.IssueSession == nil {
		return SessionGrant{}, deps.Errors.EngineNotReady
	}

	identity, ok := deps.NormalizeIdentity(identityInput)
	if !ok {
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", deps.Errors.InvalidIdentity, nil)
		return SessionGrant{}, deps.Errors.InvalidIdentity
	}
	if payload.Identity != "" {
		payloadIdentity, ok := deps.NormalizeIdentity(payload.Identity)
		if !ok {
			return SessionGrant{}, deps.Errors.InvalidIdentity
		}
		if payloadIdentity != identity {
			deps.EmitAudit(ctx, deps.Events.Completed, false, "", deps.Errors.InvalidRequest, reasonMeta(identity, "identity_mismatch"))
			return SessionGrant{}, fmt.Errorf("%w: payload identity differs from verified identity", deps.Errors.InvalidRequest)
		}
	}

	entry, err := deps.GetEntry(ctx, identity)
	if err != nil {
		if deps.IsEntryNotFound(err) {
			deps.MetricInc(deps.Metrics.Unverified)
			deps.EmitAudit(ctx, deps.Events.Completed, false, "", deps.Errors.VerificationRequired, identityMeta(identity))
			return SessionGrant{}, deps.Errors.VerificationRequired
		}
		mapped := deps.MapStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", mapped, identityMeta(identity))
		return SessionGrant{}, mapped
	}
	if deps.Now().After(entry.ExpiresAt) {
		if err := deps.DeleteEntry(ctx, identity); err != nil && !deps.IsEntryNotFound(err) {
			mapped := deps.MapStoreError(err)
			deps.EmitAudit(ctx, deps.Events.Completed, false, "", mapped, reasonMeta(identity, "expired_purge_failed"))
			return SessionGrant{}, mapped
		}
		deps.MetricInc(deps.Metrics.Unverified)
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", deps.Errors.VerificationRequired, reasonMeta(identity, "expired"))
		return SessionGrant{}, deps.Errors.VerificationRequired
	}

	newUser, err := mergeRegistration(identity, entry.Pending, payload, &deps)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", err, reasonMeta(identity, "invalid_payload"))
		return SessionGrant{}, err
	}

	exists, err := deps.UserExists(ctx, identity)
	if err != nil {
		mapped := deps.MapUserStoreError(err)
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", mapped, identityMeta(identity))
		return SessionGrant{}, mapped
	}
	if exists {
		deps.MetricInc(deps.Metrics.Duplicate)
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", deps.Errors.AccountExists, reasonMeta(identity, "already_registered"))
		return SessionGrant{}, deps.Errors.AccountExists
	}

	user, err := deps.CreateUser(ctx, newUser)
	if err != nil {
		mapped := deps.MapUserStoreError(err)
		if errors.Is(mapped, deps.Errors.AccountExists) {
			deps.MetricInc(deps.Metrics.Duplicate)
		}
		deps.EmitAudit(ctx, deps.Events.Completed, false, "", mapped, reasonMeta(identity, "create_failed"))
		return SessionGrant{}, mapped
	}

	cleanup := "ok"
	if err := deps.DeleteEntry(ctx, identity); err != nil && !deps.IsEntryNotFound(err) {
		cleanup = "entry_delete_failed"
	}

	token, expiresAt, err := deps.IssueSession(user.ID, user.Identity)
	if err != nil {
		deps.EmitAudit(ctx, deps.Events.Completed, false, user.ID, err, reasonMeta(identity, "session_issue_failed"))
		return SessionGrant{}, fmt.Errorf("issue session: %w", err)
	}

	deps.MetricInc(deps.Metrics.Completed)
	deps.EmitAudit(ctx, deps.Events.Completed, true, user.ID, nil, func() map[string]string {
		return map[string]string{
			"identity": identity,
			"cleanup":  cleanup,
		}
	})
	return SessionGrant{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func mergeRegistration(identity string, pending *PendingRegistration, payload FinalizePayload, deps *FinalizeDeps) (NewUserRecord, error) {
	out := NewUserRecord{Identity: identity}

	rawName := payload.DisplayName
	if rawName == "" && pending != nil {
		rawName = pending.DisplayName
	}
	displayName, ok := deps.ValidateDisplayName(rawName)
	if !ok {
		return NewUserRecord{}, deps.Errors.InvalidDisplayName
	}
	out.DisplayName = displayName

	switch {
	case payload.Password != "":
		if err := deps.CheckPassword(payload.Password); err != nil {
			return NewUserRecord{}, fmt.Errorf("%w: %v", deps.Errors.PasswordPolicy, err)
		}
		hash, err := deps.HashPassword(payload.Password)
		if err != nil {
			return NewUserRecord{}, err
		}
		out.PasswordHash = hash
	case pending != nil && pending.PasswordHash != "":
		out.PasswordHash = pending.PasswordHash
	default:
		return NewUserRecord{}, fmt.Errorf("%w: password required", deps.Errors.InvalidRequest)
	}

	return out, nil
}

func normalizeFinalizeDeps(deps *FinalizeDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
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
}
