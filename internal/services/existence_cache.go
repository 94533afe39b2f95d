package services

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// ExistenceCache records short-TTL "this pseudonym has a user row" markers so
// repeated identity checks skip the database. Losing a marker is harmless: the
// next resolve falls through to an idempotent find-or-create.
type ExistenceCache interface {
	Exists(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string, ttl time.Duration) error
}

// RedisExistenceCache backs markers with Redis (EXISTS / SET EX), shared
// across processes.
type RedisExistenceCache struct {
	redis  *RedisService
	prefix string
}

// NewRedisExistenceCache creates a Redis-backed existence cache.
func NewRedisExistenceCache(redis *RedisService) *RedisExistenceCache {
	return &RedisExistenceCache{redis: redis, prefix: "user:"}
}

func (c *RedisExistenceCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.redis.Exists(ctx, c.prefix+key)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisExistenceCache) Mark(ctx context.Context, key string, ttl time.Duration) error {
	return c.redis.Set(ctx, c.prefix+key, "1", ttl)
}

// MemoryExistenceCache keeps markers in-process. Used in tests and in
// single-instance deployments running without Redis.
type MemoryExistenceCache struct {
	cache *gocache.Cache
}

// NewMemoryExistenceCache creates an in-process existence cache.
func NewMemoryExistenceCache(defaultTTL time.Duration) *MemoryExistenceCache {
	return &MemoryExistenceCache{
		cache: gocache.New(defaultTTL, 10*time.Minute),
	}
}

func (c *MemoryExistenceCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.cache.Get(key)
	return ok, nil
}

func (c *MemoryExistenceCache) Mark(_ context.Context, key string, ttl time.Duration) error {
	c.cache.Set(key, struct{}{}, ttl)
	return nil
}
