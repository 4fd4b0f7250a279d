package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRateLimiter(t *testing.T, limit int, window time.Duration) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	limiter := NewRateLimiter(&Client{rdb: rdb, logger: zap.NewNop()}, zap.NewNop(), RateLimitConfig{
		Limit:  limit,
		Window: window,
	})
	return limiter, mr
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	limiter, _ := setupTestRateLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i)
		assert.Equal(t, 4-i, result.Remaining, "request %d", i)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter, _ := setupTestRateLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestRateLimiter_CallersAreIndependent(t *testing.T) {
	limiter, _ := setupTestRateLimiter(t, 1, time.Minute)
	ctx := context.Background()

	first, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	other, err := limiter.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	again, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, again.Allowed)
}

func TestRateLimiter_RejectedRequestsAreNotCounted(t *testing.T) {
	limiter, mr := setupTestRateLimiter(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := limiter.Allow(ctx, "user-1")
		require.NoError(t, err)
	}

	members, err := mr.ZMembers(callerKey("user-1"))
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRateLimiter_KeyExpires(t *testing.T) {
	limiter, mr := setupTestRateLimiter(t, 1, time.Second)
	ctx := context.Background()

	_, err := limiter.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(callerKey("user-1")))

	mr.FastForward(3 * time.Second)
	assert.False(t, mr.Exists(callerKey("user-1")))
}
