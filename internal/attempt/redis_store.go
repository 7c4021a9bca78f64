package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "login_attempts:"

// RedisStore is a Store backed by a shared Redis instance, so failure
// counts survive process restarts and are shared across replicas. Every
// call is bounded by a short timeout; callers degrade to a local store
// instead of blocking authentication when Redis is unreachable.
type RedisStore struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisStore creates a new RedisStore
func NewRedisStore(client *redis.Client, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisStore{client: client, timeout: timeout}
}

// Increment adds one failure to the key and returns the new count
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rkey := redisKeyPrefix + key
	count, err := s.client.Incr(ctx, rkey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment attempt counter: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, rkey, ttl).Err(); err != nil {
			return 0, fmt.Errorf("failed to set attempt counter TTL: %w", err)
		}
	}
	return int(count), nil
}

// Get returns the current failure count for the key
func (s *RedisStore) Get(ctx context.Context, key string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.client.Get(ctx, redisKeyPrefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read attempt counter: %w", err)
	}
	return count, nil
}

// Reset clears the key
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset attempt counter: %w", err)
	}
	return nil
}
