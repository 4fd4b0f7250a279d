package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RecipientCache stores resolved recipient id sets as JSON arrays.
type RecipientCache struct {
	client *Client
	logger *zap.Logger
}

// NewRecipientCache creates a cache backed by client.
func NewRecipientCache(client *Client, logger *zap.Logger) *RecipientCache {
	return &RecipientCache{
		client: client,
		logger: logger,
	}
}

// Get returns the cached ids for key. The bool is false on a miss.
func (c *RecipientCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(val, &ids); err != nil {
		return nil, false, fmt.Errorf("invalid cached recipients: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}

	return ids, true, nil
}

// Set caches ids under key for ttl.
func (c *RecipientCache) Set(ctx context.Context, key string, ids []string, ttl time.Duration) error {
	if ids == nil {
		ids = []string{}
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	if err := c.client.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

// Invalidate drops key, e.g. after a role change.
func (c *RecipientCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
