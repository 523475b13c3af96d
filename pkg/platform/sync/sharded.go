// Package sync provides per-key exclusion for the in-memory stores.
package sync

import (
	"hash/maphash"
	"sync"
)

const defaultShards = 32

// ShardedMutex serializes work per key without a single global lock. Keys
// that hash to the same shard share a mutex, so holders must never lock a
// second key while holding one.
type ShardedMutex struct {
	seed   maphash.Seed
	shards []sync.Mutex
}

// NewShardedMutex creates a ShardedMutex with 32 shards.
func NewShardedMutex() *ShardedMutex {
	return NewShardedMutexN(defaultShards)
}

// NewShardedMutexN creates a ShardedMutex with n shards; n < 1 means 1.
func NewShardedMutexN(n int) *ShardedMutex {
	if n < 1 {
		n = 1
	}
	return &ShardedMutex{seed: maphash.MakeSeed(), shards: make([]sync.Mutex, n)}
}

func (m *ShardedMutex) Lock(key string) {
	m.shardFor(key).Lock()
}

func (m *ShardedMutex) Unlock(key string) {
	m.shardFor(key).Unlock()
}

// WithLock runs fn while holding key's shard.
func (m *ShardedMutex) WithLock(key string, fn func() error) error {
	mu := m.shardFor(key)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

func (m *ShardedMutex) shardFor(key string) *sync.Mutex {
	if len(m.shards) == 1 {
		return &m.shards[0]
	}
	return &m.shards[maphash.String(m.seed, key)%uint64(len(m.shards))]
}
