// Package limiters provides the fixed-window rate limiters for the OTP and
// password reset flows.
//
// [OTPLimiter] keeps an issue budget per identity and per IP plus a verify
// budget, one instance per flow variant separated by namespace.
// [PasswordResetLimiter] keeps a request budget per identity and per IP and
// a confirm budget per IP.
//
// Every limiter is nil-safe: a nil receiver, or one built without a Redis
// client, allows everything. Limiters only count; the flow functions decide
// what a refusal means.
package limiters
