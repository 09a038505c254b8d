package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// pending marks a key whose order is still being created.
const pending = "pending"

// RedisIdempotency remembers which order an Idempotent-Key produced, for ttl.
type RedisIdempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIdempotency(rdb *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{rdb: rdb, ttl: ttl}
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotent-key:%s", key)
}

// Begin claims key. When the key was already used it returns the order id stored for it
// (empty while the first request is still running) and fresh=false.
func (g *RedisIdempotency) Begin(ctx context.Context, key string) (string, bool, error) {
	ok, err := g.rdb.SetNX(ctx, idempotencyKey(key), pending, g.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return "", true, nil
	}
	val, err := g.rdb.Get(ctx, idempotencyKey(key)).Result()
	if err != nil {
		return "", false, err
	}
	if val == pending {
		return "", false, nil
	}
	return val, false, nil
}

func (g *RedisIdempotency) Complete(ctx context.Context, key, orderID string) error {
	return g.rdb.Set(ctx, idempotencyKey(key), orderID, g.ttl).Err()
}

// Abort releases a claimed key so the client can retry after a failure.
func (g *RedisIdempotency) Abort(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, idempotencyKey(key)).Err()
}

// MemoryIdempotency is the single-process fallback used when redis is not configured.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: map[string]string{}}
}

func (g *MemoryIdempotency) Begin(_ context.Context, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	val, used := g.keys[key]
	if !used {
		g.keys[key] = pending
		return "", true, nil
	}
	if val == pending {
		return "", false, nil
	}
	return val, false, nil
}

func (g *MemoryIdempotency) Complete(_ context.Context, key, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = orderID
	return nil
}

func (g *MemoryIdempotency) Abort(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}
