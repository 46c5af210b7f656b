package rate

import "errors"

var (
	// ErrRateLimited means the failed-login budget for an identity or IP is
	// spent until the cooldown window ends.
	ErrRateLimited = errors.New("login attempts exhausted")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("login limiter unavailable")
)
