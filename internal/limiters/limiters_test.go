package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestOTPLimiterIssueWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewOTPLimiter(rdb, OTPConfig{Namespace: "reg", Window: time.Minute, MaxIssues: 2, MaxVerifications: 5})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.CheckIssue(ctx, "a@x.com", ""); err != nil {
			t.Fatalf("issue %d unexpectedly limited: %v", i, err)
		}
	}
	if err := l.CheckIssue(ctx, "a@x.com", ""); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ErrOTPRateLimited, got %v", err)
	}
	if err := l.CheckIssue(ctx, "b@x.com", ""); err != nil {
		t.Fatalf("other identity should not be limited: %v", err)
	}

	mr.FastForward(61 * time.Second)
	if err := l.CheckIssue(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestOTPLimiterNamespacesAreIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	reg := NewOTPLimiter(rdb, OTPConfig{Namespace: "reg", Window: time.Minute, MaxIssues: 1})
	eml := NewOTPLimiter(rdb, OTPConfig{Namespace: "eml", Window: time.Minute, MaxIssues: 1})
	ctx := context.Background()

	if err := reg.CheckIssue(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("reg issue failed: %v", err)
	}
	if err := eml.CheckIssue(ctx, "a@x.com", ""); err != nil {
		t.Fatalf("eml issue should use its own budget: %v", err)
	}
}

func TestOTPLimiterIPThrottle(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewOTPLimiter(rdb, OTPConfig{Namespace: "reg", EnableIPThrottle: true, Window: time.Minute, MaxIssues: 1, MaxVerifications: 1})
	ctx := context.Background()

	if err := l.CheckIssue(ctx, "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("first issue failed: %v", err)
	}
	if err := l.CheckIssue(ctx, "b@x.com", "10.0.0.1"); !errors.Is(err, ErrOTPRateLimited) {
		t.Fatalf("expected ip throttle, got %v", err)
	}
}

func TestNilLimitersAllow(t *testing.T) {
	var otp *OTPLimiter
	var reset *PasswordResetLimiter
	ctx := context.Background()

	if err := otp.CheckIssue(ctx, "a@x.com", "ip"); err != nil {
		t.Fatalf("nil otp limiter returned %v", err)
	}
	if err := otp.CheckVerify(ctx, "a@x.com", "ip"); err != nil {
		t.Fatalf("nil otp limiter returned %v", err)
	}
	if err := reset.CheckRequest(ctx, "a@x.com", "ip"); err != nil {
		t.Fatalf("nil reset limiter returned %v", err)
	}
	if err := reset.CheckConfirm(ctx, "ip"); err != nil {
		t.Fatalf("nil reset limiter returned %v", err)
	}
}

func TestPasswordResetLimiterUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewPasswordResetLimiter(rdb, PasswordResetConfig{Window: time.Minute, MaxRequests: 3})
	mr.Close()

	if err := l.CheckRequest(context.Background(), "a@x.com", ""); !errors.Is(err, ErrResetRedisUnavailable) {
		t.Fatalf("expected ErrResetRedisUnavailable, got %v", err)
	}
}
