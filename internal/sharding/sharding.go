package sharding

import (
	"hash/fnv"
	"sync"
)

type ShardRouter struct {
	ShardCount int // Number of shards
}

func NewShardRouter(shardCount int) *ShardRouter {
	if shardCount < 1 {
		shardCount = 1
	}
	return &ShardRouter{ShardCount: shardCount}
}

// GetShard hashes the key and returns its shard index.
func (r *ShardRouter) GetShard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(r.ShardCount))
}

// KeyedLocker serialises work per key using a fixed set of mutexes picked by the router.
// Two keys may share a stripe; one key never maps to two.
type KeyedLocker struct {
	router *ShardRouter
	locks  []sync.Mutex
}

func NewKeyedLocker(stripes int) *KeyedLocker {
	router := NewShardRouter(stripes)
	return &KeyedLocker{router: router, locks: make([]sync.Mutex, router.ShardCount)}
}

// Lock acquires the stripe for key and returns the matching unlock func.
func (l *KeyedLocker) Lock(key string) func() {
	m := &l.locks[l.router.GetShard(key)]
	m.Lock()
	return m.Unlock
}
