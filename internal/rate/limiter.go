package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttling parameters.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// Limiter counts failed logins per identity and, optionally, per client IP.
// A nil client or nil *Limiter allows everything.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: redisClient, config: cfg}
}

func (l *Limiter) enabled() bool {
	return l != nil && l.redis != nil
}

// keys returns the counters that apply to an attempt: the identity's, then
// the IP's when IP throttling is on and ip is known.
func (l *Limiter) keys(identity, ip string) []string {
	keys := []string{identityKey(identity)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, ipKey(ip))
	}
	return keys
}

// CheckLogin refuses with ErrRateLimited when any applicable counter has
// reached MaxLoginAttempts. Both counters are read in one MGET.
func (l *Limiter) CheckLogin(ctx context.Context, identity, ip string) error {
	if !l.enabled() {
		return nil
	}
	values, err := l.redis.MGet(ctx, l.keys(identity, ip)...).Result()
	if err != nil {
		return unavailable(err)
	}
	for _, v := range values {
		if countOf(v) >= int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin records a failed attempt. It returns ErrRateLimited when
// this attempt pushed a counter past the budget.
func (l *Limiter) IncrementLogin(ctx context.Context, identity, ip string) error {
	if !l.enabled() {
		return nil
	}
	limited := false
	for _, key := range l.keys(identity, ip) {
		n, err := l.hit(ctx, key)
		if err != nil {
			return err
		}
		if n > int64(l.config.MaxLoginAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the identity's counter after a successful login. The IP
// counter is left to expire.
func (l *Limiter) ResetLogin(ctx context.Context, identity string) error {
	if !l.enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, identityKey(identity)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// LoginAttempts returns the identity's current failure count. A missing
// key reads as zero.
func (l *Limiter) LoginAttempts(ctx context.Context, identity string) (int, error) {
	if !l.enabled() {
		return 0, nil
	}
	n, err := l.redis.Get(ctx, identityKey(identity)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, unavailable(err)
	case n < 0:
		return 0, nil
	}
	return int(n), nil
}

// hit increments key and starts its window on the first failure.
func (l *Limiter) hit(ctx context.Context, key string) (int64, error) {
	n, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if n == 1 {
		if err := l.redis.Expire(ctx, key, l.config.LoginCooldownDuration).Err(); err != nil {
			return 0, unavailable(err)
		}
	}
	return n, nil
}

// countOf reads an MGET slot; nil and non-numeric values count as zero.
func countOf(v any) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

func identityKey(identity string) string { return "al:" + identity }

func ipKey(ip string) string { return "ali:" + ip }
