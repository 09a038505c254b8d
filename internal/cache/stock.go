package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// StockCache holds advisory stock levels for storefront reads. It is never consulted when reserving.
type StockCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStockCache(rdb *redis.Client, ttl time.Duration) *StockCache {
	return &StockCache{rdb: rdb, ttl: ttl}
}

func stockKey(productID string) string {
	return fmt.Sprintf("stock:%s", productID)
}

// Get returns ok=false on a cache miss.
func (c *StockCache) Get(ctx context.Context, productID string) (int, bool, error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	qty, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return qty, true, nil
}

func (c *StockCache) Set(ctx context.Context, productID string, qty int) error {
	return c.rdb.Set(ctx, stockKey(productID), qty, c.ttl).Err()
}

// Invalidate drops cached levels after a reservation or release changed them.
func (c *StockCache) Invalidate(ctx context.Context, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = stockKey(id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}
