package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

type PasswordResetConfig struct {
	EnableIPThrottle bool
	Window           time.Duration
	MaxRequests      int
	MaxConfirms      int
}

// PasswordResetLimiter bounds reset-link requests per identity and IP and
// token submissions per IP.
type PasswordResetLimiter struct {
	fixedWindow
	config PasswordResetConfig
}

func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	return &PasswordResetLimiter{
		fixedWindow: fixedWindow{
			rdb:         redisClient,
			window:      cfg.Window,
			limited:     ErrResetRateLimited,
			unavailable: ErrResetRedisUnavailable,
		},
		config: cfg,
	}
}

func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, identity, ip string) error {
	if l == nil || !l.enabled() {
		return nil
	}
	ipKey := ""
	if l.config.EnableIPThrottle && ip != "" {
		ipKey = "arrip:" + ip
	}
	return l.hitAll(ctx, "arr:"+identity, ipKey, l.config.MaxRequests)
}

// CheckConfirm throttles token submissions per IP. Tokens are unguessable,
// so this only bounds scanning traffic.
func (l *PasswordResetLimiter) CheckConfirm(ctx context.Context, ip string) error {
	if l == nil || !l.enabled() || ip == "" {
		return nil
	}
	return l.hit(ctx, "arcip:"+ip, l.config.MaxConfirms)
}
