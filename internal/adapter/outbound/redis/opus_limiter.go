package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const opusUsageKeyPrefix = "opus:daily:"

// OpusLimiter tracks per-user daily Claude Opus token consumption. Counters
// live under a date-scoped key and expire at midnight UTC, so a new day
// always starts from zero without a scheduled reset job.
type OpusLimiter struct {
	client *redis.Client
}

// NewOpusLimiter creates a new daily Opus usage tracker.
func NewOpusLimiter(client *redis.Client) *OpusLimiter {
	return &OpusLimiter{client: client}
}

func (l *OpusLimiter) key(userID uuid.UUID) string {
	today := time.Now().UTC().Format("2006-01-02")
	return fmt.Sprintf("%s%s:%s", opusUsageKeyPrefix, userID.String(), today)
}

// UsedToday returns the tokens the user has consumed on Opus models today.
// A missing key means zero usage.
func (l *OpusLimiter) UsedToday(ctx context.Context, userID uuid.UUID) (int64, error) {
	val, err := l.client.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	return val, nil
}

// Record adds tokens to today's counter and returns the new total.
func (l *OpusLimiter) Record(ctx context.Context, userID uuid.UUID, tokens int64) (int64, error) {
	key := l.key(userID)

	newVal, err := l.client.IncrBy(ctx, key, tokens).Result()
	if err != nil {
		return 0, err
	}

	// Expire at midnight UTC so tomorrow starts fresh
	now := time.Now().UTC()
	endOfDay := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	ttl := time.Until(endOfDay)
	if ttl > 0 {
		l.client.Expire(ctx, key, ttl)
	}

	return newVal, nil
}

// Reset clears today's counter, used when a purchase upgrades the user's
// daily allowance.
func (l *OpusLimiter) Reset(ctx context.Context, userID uuid.UUID) error {
	return l.client.Del(ctx, l.key(userID)).Err()
}
