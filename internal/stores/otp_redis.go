package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOTPStore persists versioned binary OTP records under prefix:identity
// so every instance of the service observes the same live code.
type RedisOTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisOTPStore(redisClient redis.UniversalClient, prefix string) *RedisOTPStore {
	if prefix == "" {
		prefix = "aotp"
	}
	return &RedisOTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisOTPStore) key(identity string) string {
	return s.prefix + ":" + identity
}

func (s *RedisOTPStore) Get(ctx context.Context, identity string) (*OTPRecord, error) {
	data, err := s.redis.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	record, err := decodeOTPRecord(data)
	if err != nil {
		// Unreadable records are dropped so the identity can start over.
		_ = s.redis.Del(ctx, s.key(identity)).Err()
		return nil, ErrOTPNotFound
	}
	if record.Identity != identity {
		return nil, ErrOTPNotFound
	}

	return record, nil
}

func (s *RedisOTPStore) Set(ctx context.Context, record *OTPRecord, ttl time.Duration) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(record.Identity), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}

	return nil
}

func (s *RedisOTPStore) Delete(ctx context.Context, identity string) error {
	if err := s.redis.Del(ctx, s.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	return nil
}
