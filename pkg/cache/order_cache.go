package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tradeflow/tradeflow-engine/pkg/views"
	"go.uber.org/zap"
)

// OrderCache is the cache-aside layer over per-user open-order snapshots.
// It is never authoritative: entries may be stale or absent at any time, and
// correctness falls back to TTL expiry when invalidation fails.
type OrderCache interface {
	// GetUserOrders returns the cached snapshot for a user and whether the
	// lookup was a hit.
	GetUserOrders(ctx context.Context, userID int64) ([]views.OrderView, bool, error)
	// SetUserOrders stores a snapshot with the configured TTL.
	SetUserOrders(ctx context.Context, userID int64, orders []views.OrderView) error
	// Invalidate deletes a user's entry. Deleting an absent key is a no-op,
	// which keeps concurrent invalidations idempotent.
	Invalidate(ctx context.Context, userID int64) error
}

type RedisOrderCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewOrderCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) OrderCache {
	return &RedisOrderCache{client: client, ttl: ttl, logger: logger}
}

// userOrdersKey matches the original key layout: user:<id>:orders.
func userOrdersKey(userID int64) string {
	return fmt.Sprintf("user:%d:orders", userID)
}

func (c *RedisOrderCache) GetUserOrders(ctx context.Context, userID int64) ([]views.OrderView, bool, error) {
	raw, err := c.client.Get(ctx, userOrdersKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var snapshot []views.OrderView
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		// A corrupt entry is unreadable forever; drop it and treat as a miss.
		c.logger.Warn("dropping corrupt order cache entry",
			zap.Int64("user_id", userID), zap.Error(err))
		_ = c.client.Del(ctx, userOrdersKey(userID)).Err()
		return nil, false, nil
	}
	return snapshot, true, nil
}

func (c *RedisOrderCache) SetUserOrders(ctx context.Context, userID int64, orders []views.OrderView) error {
	raw, err := json.Marshal(orders)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, userOrdersKey(userID), raw, c.ttl).Err()
}

func (c *RedisOrderCache) Invalidate(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, userOrdersKey(userID)).Err()
}
