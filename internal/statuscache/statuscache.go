package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/enobongmedem-code/darnumber-sub000/internal/observability"
)

const keyPrefix = "order-status:"

// Entry is the cached read-model for an order status poll. It snapshots the
// whole order document so a cache hit returns the same payload shape as a
// database read.
type Entry struct {
	Order models.Order `json:"order"`
}

// Cache fronts order status reads with redis. A nil redis client degrades to
// a permanent miss so the API keeps working when redis is down.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// Get returns the cached entry or nil on a miss. Redis errors are logged and
// reported as misses rather than failing the read path.
func (c *Cache) Get(ctx context.Context, orderID uuid.UUID) *Entry {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, keyPrefix+orderID.String()).Bytes()
	if err != nil {
		if err != redis.Nil {
			zap.L().Warn("status cache read failed", zap.Error(err))
		}
		observability.IncrementStatusCacheEvent("miss")
		return nil
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		zap.L().Warn("status cache entry corrupt, dropping", zap.String("order_id", orderID.String()))
		c.Invalidate(ctx, orderID)
		observability.IncrementStatusCacheEvent("miss")
		return nil
	}
	observability.IncrementStatusCacheEvent("hit")
	return &e
}

// Set stores the entry for the configured TTL. Best effort.
func (c *Cache) Set(ctx context.Context, e Entry) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+e.Order.ID.String(), raw, c.ttl).Err(); err != nil {
		zap.L().Warn("status cache write failed", zap.Error(err))
		return
	}
	observability.IncrementStatusCacheEvent("set")
}

// Invalidate drops the entry after any write to the order so the next poll
// sees the new state immediately instead of a stale cached status.
func (c *Cache) Invalidate(ctx context.Context, orderID uuid.UUID) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, keyPrefix+orderID.String()).Err(); err != nil {
		zap.L().Warn("status cache invalidate failed", zap.Error(err))
		return
	}
	observability.IncrementStatusCacheEvent("invalidate")
}

// Ping reports redis reachability for the health endpoint.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("redis not configured")
	}
	return c.rdb.Ping(ctx).Err()
}
