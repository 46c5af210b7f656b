package limiters

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindow counts hits per key in windows that start on the first hit
// and end when the key expires. A nil client disables counting.
type fixedWindow struct {
	rdb         redis.UniversalClient
	window      time.Duration
	limited     error
	unavailable error
}

func (w fixedWindow) enabled() bool {
	return w.rdb != nil
}

// hit counts one hit against key and returns w.limited once more than
// maxHits have landed in the current window.
func (w fixedWindow) hit(ctx context.Context, key string, maxHits int) error {
	count, err := w.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", w.unavailable, err)
	}
	if count == 1 {
		if err := w.rdb.Expire(ctx, key, w.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", w.unavailable, err)
		}
	}
	if count > int64(maxHits) {
		return w.limited
	}
	return nil
}

// hitAll counts a hit on the subject key and, when ip is set, on the IP
// key. It stops at the first refusal.
func (w fixedWindow) hitAll(ctx context.Context, subjectKey, ipKey string, maxHits int) error {
	if err := w.hit(ctx, subjectKey, maxHits); err != nil {
		return err
	}
	if ipKey == "" {
		return nil
	}
	return w.hit(ctx, ipKey, maxHits)
}
