package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter enforces per-key request limits with a sliding window
// counter backed by a Redis sorted set.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a new rate limiter adapter.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow reports whether one more request fits inside the window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	fullKey := rateLimitKeyPrefix + key

	pipe := r.client.Pipeline()
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	// Drop entries that slid out of the window, then count what's left
	pipe.ZRemRangeByScore(ctx, fullKey, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, fullKey)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	if countCmd.Val() >= int64(limit) {
		return false, nil
	}

	pipe2 := r.client.Pipeline()
	pipe2.ZAdd(ctx, fullKey, redis.Z{
		Score:  float64(now),
		Member: fmt.Sprintf("%d", now),
	})
	pipe2.Expire(ctx, fullKey, window)
	_, err = pipe2.Exec(ctx)

	return err == nil, err
}

// Remaining returns how many requests the key has left in the window.
func (r *RateLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	fullKey := rateLimitKeyPrefix + key
	now := time.Now().UnixNano()
	windowStart := now - window.Nanoseconds()

	pipe := r.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "0", fmt.Sprintf("%d", windowStart))
	countCmd := pipe.ZCard(ctx, fullKey)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return 0, err
	}

	remaining := limit - int(countCmd.Val())
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}
