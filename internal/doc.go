// Package internal contains helper utilities that are intentionally private to authflow,
// chiefly secure random generation for OTP codes and reset tokens.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function flow orchestrators for every Engine operation
//   - limiters: domain-specific rate limiters (OTP issue/verify, password reset)
//   - rate: Redis-backed login attempt limiter
//   - stores: OTP entry stores (memory and Redis)
//   - userstore: Credential Store implementations (memory and Postgres)
//   - mailer: Notifier implementations (SMTP and log)
//   - httpapi, config: the server binary's transport and environment layers
//
// # What this package must NOT do
//
//   - Export types that appear in the public authflow API.
//   - Be imported by any package outside the authflow module.
package internal
