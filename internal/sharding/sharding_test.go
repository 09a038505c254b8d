package sharding_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"retail-order-service/internal/sharding"
)

func TestShardRouter(t *testing.T) {
	t.Parallel()

	r := sharding.NewShardRouter(8)
	for _, key := range []string{"a", "order-1", "9f4c1c8e-0000-4000-8000-000000000000"} {
		shard := r.GetShard(key)
		assert.GreaterOrEqual(t, shard, 0)
		assert.Less(t, shard, 8)
		assert.Equal(t, shard, r.GetShard(key), "same key must route to the same shard")
	}

	assert.Equal(t, 0, sharding.NewShardRouter(0).GetShard("anything"))
}

func TestKeyedLockerSerialisesSameKey(t *testing.T) {
	t.Parallel()

	locker := sharding.NewKeyedLocker(4)
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock("order-42")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
