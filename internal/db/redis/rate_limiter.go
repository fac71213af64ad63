package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"norelock.dev/rpcsite/internal/utils"
)

const (
	// RateLimitKeyPrefix is the prefix for rate limit keys
	RateLimitKeyPrefix = "ratelimit"
)

// RateLimiter implements a sliding window rate limit shared by every
// instance pointing at the same Redis.
type RateLimiter struct {
	client *Client
	logger *utils.Logger
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter allowing limit requests per window.
func NewRateLimiter(client *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: client.Logger(),
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Check records a request for identifier and reports whether it is within
// the limit.
func (rl *RateLimiter) Check(ctx context.Context, identifier string) (*utils.LimitResult, error) {
	key := FormatKey(RateLimitKeyPrefix, identifier)

	now := rl.now()
	windowStartMs := now.Add(-rl.window).UnixMilli()

	pipe := rl.client.TxPipeline()

	// Remove tokens older than the window
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStartMs, 10))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		rl.logger.Error("Failed to execute rate limit pipeline", err, "key", key)
		return nil, err
	}

	count, err := countCmd.Result()
	if err != nil && err != redis.Nil {
		rl.logger.Error("Failed to get rate limit count", err, "key", key)
		return nil, err
	}

	result := &utils.LimitResult{Limit: rl.limit}

	if count >= int64(rl.limit) {
		result.RetryAfter = rl.window
		if oldest, err := oldestCmd.Result(); err == nil && len(oldest) > 0 {
			expiry := time.UnixMilli(int64(oldest[0].Score)).Add(rl.window)
			result.RetryAfter = expiry.Sub(now)
		}
		return result, nil
	}

	nowMs := now.UnixMilli()
	pipe = rl.client.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(nowMs),
		Member: strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString(),
	})
	// Set expiration on the key to auto-cleanup
	pipe.Expire(ctx, key, rl.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		// Still allowed since the window had room
		rl.logger.Error("Failed to record rate limit token", err, "key", key)
	}

	result.Allowed = true
	result.Remaining = rl.limit - int(count) - 1
	return result, nil
}

// Reset resets the rate limit of an identifier
func (rl *RateLimiter) Reset(ctx context.Context, identifier string) error {
	key := FormatKey(RateLimitKeyPrefix, identifier)
	if err := rl.client.Del(ctx, key); err != nil {
		rl.logger.Error("Failed to reset rate limit", err, "key", key)
		return err
	}

	rl.logger.Debug("Reset rate limit", "key", key)
	return nil
}
