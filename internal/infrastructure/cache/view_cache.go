package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"routeledger/internal/domain/payment"
)

// ViewKey is the Redis key of the cached collection view.
const ViewKey = "routeledger:collection_view"

var (
	_ payment.ViewCache = (*RedisViewCache)(nil)
	_ payment.ViewCache = (*MemoryViewCache)(nil)
)

// RedisViewCache shares the collection view between server replicas.
type RedisViewCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisViewCache creates a cache whose entries expire after ttl.
func NewRedisViewCache(rdb *redis.Client, ttl time.Duration) *RedisViewCache {
	return &RedisViewCache{rdb: rdb, ttl: ttl}
}

func (c *RedisViewCache) Get(ctx context.Context) (*payment.CollectionView, bool, error) {
	raw, err := c.rdb.Get(ctx, ViewKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get collection view: %w", err)
	}
	v := &payment.CollectionView{}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, false, fmt.Errorf("decode collection view: %w", err)
	}
	return v, true, nil
}

func (c *RedisViewCache) Set(ctx context.Context, v *payment.CollectionView) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode collection view: %w", err)
	}
	return c.rdb.Set(ctx, ViewKey, raw, c.ttl).Err()
}

func (c *RedisViewCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, ViewKey).Err()
}

// MemoryViewCache keeps the view in process; used when Redis is disabled.
type MemoryViewCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	view    *payment.CollectionView
	expires time.Time
}

// NewMemoryViewCache creates an in-process cache. A zero ttl never expires.
func NewMemoryViewCache(ttl time.Duration) *MemoryViewCache {
	return &MemoryViewCache{ttl: ttl, now: time.Now}
}

func (c *MemoryViewCache) Get(context.Context) (*payment.CollectionView, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.view == nil || (c.ttl > 0 && !c.now().Before(c.expires)) {
		return nil, false, nil
	}
	return c.view, true, nil
}

func (c *MemoryViewCache) Set(_ context.Context, v *payment.CollectionView) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = v
	c.expires = c.now().Add(c.ttl)
	return nil
}

func (c *MemoryViewCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view = nil
	return nil
}
