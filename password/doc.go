// Package password implements credential hashing, verification and the
// acceptance policy for new credentials.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.Verify] also accepts bcrypt hashes ($2a$, $2b$, $2y$) from the
// user table the service inherited; [Argon2.NeedsUpgrade] reports them so the
// caller can re-hash on the next successful login.
//
// # Policy
//
// [Policy] enforces minimum/maximum length and an optional entropy floor
// estimated by go-password-validator.
//
// The package never stores credentials and never logs them.
package password
