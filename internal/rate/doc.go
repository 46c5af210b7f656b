// Package rate provides the Redis-backed failed-login limiter.
//
// Counters use fixed windows: INCR, with EXPIRE on the first hit. Keys are
// "al:<identity>" and, with IP throttling, "ali:<ip>". CheckLogin reads
// every applicable counter in a single MGET. A login is refused once any
// counter reaches MaxLoginAttempts; a successful login clears the identity
// counter.
//
// OTP and password-reset budgets live in internal/limiters.
package rate
