// Package idgen allocates the human-readable display ids printed on receipts.
package idgen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Allocator hands out display ids. Implementations must be safe for concurrent use.
type Allocator interface {
	Next(ctx context.Context) (string, error)
}

// alphabet leaves out 0/O and 1/I so ids survive being read over the phone.
const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomAllocator produces XXXX-###### ids: four random characters and six digits taken from the clock.
type RandomAllocator struct {
	now func() time.Time
}

func NewRandomAllocator() *RandomAllocator {
	return &RandomAllocator{now: time.Now}
}

func (a *RandomAllocator) Next(_ context.Context) (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < 4; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	millis := a.now().UnixMilli() % 1_000_000
	return fmt.Sprintf("%s-%06d", sb.String(), millis), nil
}

// Counter is an atomic, monotonically increasing sequence.
type Counter interface {
	Incr(ctx context.Context) (int64, error)
}

// SequenceAllocator produces PREFIX-00001 style ids from a Counter.
type SequenceAllocator struct {
	prefix  string
	counter Counter
}

func NewSequenceAllocator(prefix string, counter Counter) *SequenceAllocator {
	return &SequenceAllocator{prefix: prefix, counter: counter}
}

func (a *SequenceAllocator) Next(ctx context.Context) (string, error) {
	n, err := a.counter.Incr(ctx)
	if err != nil {
		return "", fmt.Errorf("next order sequence: %w", err)
	}
	return FormatSequence(a.prefix, n), nil
}

func FormatSequence(prefix string, n int64) string {
	return fmt.Sprintf("%s-%05d", prefix, n)
}

// ParseSequence extracts the number from a PREFIX-00001 id. ok is false for ids of another scheme or prefix.
func ParseSequence(prefix, id string) (int64, bool) {
	rest, found := strings.CutPrefix(id, prefix+"-")
	if !found {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// MemoryCounter is a mutex-guarded counter for single-instance deployments.
type MemoryCounter struct {
	mu   sync.Mutex
	last int64
}

// NewMemoryCounter starts counting after last, normally the highest sequence already persisted.
func NewMemoryCounter(last int64) *MemoryCounter {
	return &MemoryCounter{last: last}
}

func (c *MemoryCounter) Incr(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last++
	return c.last, nil
}

// RedisCounter shares one sequence across every instance through INCR.
type RedisCounter struct {
	rdb *redis.Client
	key string
}

func NewRedisCounter(rdb *redis.Client, key string) *RedisCounter {
	return &RedisCounter{rdb: rdb, key: key}
}

// Seed raises the counter to at least last, so a fresh redis never reissues persisted ids.
func (c *RedisCounter) Seed(ctx context.Context, last int64) error {
	cur, err := c.rdb.Get(ctx, c.key).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	if cur >= last {
		return nil
	}
	return c.rdb.Set(ctx, c.key, last, 0).Err()
}

func (c *RedisCounter) Incr(ctx context.Context) (int64, error) {
	return c.rdb.Incr(ctx, c.key).Result()
}
