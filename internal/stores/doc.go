// Package stores provides the short-lived OTP record stores used by the
// registration and standalone email OTP flows.
//
// # Design
//
// [OTPStore] is a Get/Set/Delete contract keyed by normalized identity.
// [MemoryOTPStore] serves single-instance deployments; [RedisOTPStore]
// persists a versioned, binary-encoded record with a TTL so that every
// instance observes the same live code. At most one record exists per
// identity: Set overwrites. Codes are stored as SHA-256 digests.
//
// # Architecture boundaries
//
// This package owns persistence only. It does NOT generate codes, compare
// them, decide expiry, or enforce rate limits; those belong to the flow
// functions in internal/flows. The store TTL only bounds abandoned records.
//
// # What this package must NOT do
//
//   - Import authflow or any sibling internal package.
//   - Store or log plaintext codes or credentials.
package stores
