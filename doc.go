// Package authflow implements verification-gated account registration and
// credential recovery for BalanceBuddy.
//
// A registration is held as a pending snapshot beside a short-lived six-digit
// code until the owner proves control of the email address; only then is a
// durable user created and a session credential returned. Password recovery
// issues single-use reset links whose tokens are stored as digests on the
// user record. Login, session validation and a standalone email OTP flow
// round out the surface.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authflow is the public surface. It exposes [Engine], [Builder], [Config],
// the [UserStore] and [Notifier] collaborator interfaces, and sentinel errors
// classified by [KindOf]. Flow orchestration, the OTP stores, rate limiting,
// metric storage and audit dispatch live under internal/.
//
// # What this package must NOT do
//
//   - Log. Outcomes are reported through audit events and metrics.
//   - Store plaintext codes, reset tokens or credentials.
//   - Import any sub-package that re-imports authflow (no import cycles).
package authflow
