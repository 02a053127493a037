package magiclink

import (
	"github.com/MrEthical07/magiclink/internal/stores"
	"github.com/redis/go-redis/v9"
)

// RedisUsedTokenStore marks tokens consumed with a single Redis SET NX.
type RedisUsedTokenStore = stores.RedisUsedTokenStore

// MemoryUsedTokenStore is a process-local marker store for single-replica
// deployments and tests.
type MemoryUsedTokenStore = stores.MemoryUsedTokenStore

// NewRedisUsedTokenStore returns a Redis marker store. Keys are
// "<prefix>:<token id>"; an empty prefix defaults to "mlu".
func NewRedisUsedTokenStore(client redis.UniversalClient, prefix string) *RedisUsedTokenStore {
	return stores.NewRedisUsedTokenStore(client, prefix)
}

// NewMemoryUsedTokenStore returns an empty process-local marker store.
func NewMemoryUsedTokenStore() *MemoryUsedTokenStore {
	return stores.NewMemoryUsedTokenStore()
}
