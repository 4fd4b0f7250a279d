package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig defines rate limiting parameters.
type RateLimitConfig struct {
	Limit  int           // requests allowed per caller
	Window time.Duration // sliding window length
}

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter is a per-caller sliding window backed by a Redis sorted set.
// Members are request stamps scored by arrival time in nanoseconds.
type RateLimiter struct {
	client *Client
	logger *zap.Logger
	config RateLimitConfig
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(client *Client, logger *zap.Logger, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		config: config,
	}
}

// Config returns the limiter settings, used for response headers.
func (r *RateLimiter) Config() RateLimitConfig {
	return r.config
}

func callerKey(caller string) string {
	return "ratelimit:caller:" + caller
}

// Allow records one request for caller if it fits in the window.
// Rejected requests are not recorded.
func (r *RateLimiter) Allow(ctx context.Context, caller string) (*RateLimitResult, error) {
	now := time.Now()
	key := callerKey(caller)
	resetAt := now.Add(r.config.Window)
	floor := strconv.FormatInt(now.Add(-r.config.Window).UnixNano(), 10)

	var count *redis.IntCmd
	if _, err := r.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+floor)
		count = pipe.ZCard(ctx, key)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("redis window read failed: %w", err)
	}

	used := int(count.Val())
	if used >= r.config.Limit {
		r.logger.Debug("rate limit exceeded",
			zap.String("caller", caller),
			zap.Int("used", used),
			zap.Int("limit", r.config.Limit),
		)
		return &RateLimitResult{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	member := redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()}
	if _, err := r.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, member)
		pipe.PExpire(ctx, key, r.config.Window+time.Second)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("redis window write failed: %w", err)
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: r.config.Limit - used - 1,
		ResetAt:   resetAt,
	}, nil
}
