// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunIssueOTP, RunVerifyOTP, RunFinalizeRegistration,
// RunRequestPasswordReset, RunLogin, etc.) accepts a typed dependency struct
// and returns results without side-effects beyond those dependencies. Tests
// drive them with in-memory fakes and the Engine type stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the OTP store, user store, notifier,
// rate limiters, session issuer, audit dispatcher and metrics. They do NOT own
// any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authflow (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
