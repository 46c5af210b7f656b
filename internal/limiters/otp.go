package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPRateLimited        = errors.New("otp rate limited")
	ErrOTPLimiterUnavailable = errors.New("otp limiter unavailable")
)

type OTPConfig struct {
	// Namespace separates flow variants, e.g. "reg" and "eml".
	Namespace        string
	EnableIPThrottle bool
	Window           time.Duration
	MaxIssues        int
	MaxVerifications int
}

// OTPLimiter bounds code issuance and verification attempts for one flow
// variant. Keys look like "aoli:reg:<identity>" and "aolvip:reg:<ip>".
type OTPLimiter struct {
	fixedWindow
	config OTPConfig
}

func NewOTPLimiter(redisClient redis.UniversalClient, cfg OTPConfig) *OTPLimiter {
	if cfg.Namespace == "" {
		cfg.Namespace = "otp"
	}
	return &OTPLimiter{
		fixedWindow: fixedWindow{
			rdb:         redisClient,
			window:      cfg.Window,
			limited:     ErrOTPRateLimited,
			unavailable: ErrOTPLimiterUnavailable,
		},
		config: cfg,
	}
}

// CheckIssue counts an issue or resend request.
func (l *OTPLimiter) CheckIssue(ctx context.Context, identity, ip string) error {
	if l == nil || !l.enabled() {
		return nil
	}
	return l.hitAll(ctx, l.key("i", identity), l.ipKey("iip", ip), l.config.MaxIssues)
}

// CheckVerify counts a verification attempt, valid or not.
func (l *OTPLimiter) CheckVerify(ctx context.Context, identity, ip string) error {
	if l == nil || !l.enabled() {
		return nil
	}
	return l.hitAll(ctx, l.key("v", identity), l.ipKey("vip", ip), l.config.MaxVerifications)
}

func (l *OTPLimiter) key(kind, subject string) string {
	return "aol" + kind + ":" + l.config.Namespace + ":" + subject
}

func (l *OTPLimiter) ipKey(kind, ip string) string {
	if !l.config.EnableIPThrottle || ip == "" {
		return ""
	}
	return l.key(kind, ip)
}
