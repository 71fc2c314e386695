package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"routeledger/internal/domain/settlement"
	"routeledger/pkg/logger"
)

var _ settlement.Locker = (*RedisLocker)(nil)

// RedisLocker excludes concurrent settlements across server and worker processes.
// The lock is refreshed while held, so a settlement longer than ttl keeps it.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker whose locks expire after ttl unless refreshed.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

func (l *RedisLocker) Obtain(ctx context.Context, key string) (func(ctx context.Context) error, error) {
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, settlement.ErrLockHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	done := make(chan struct{})
	go l.keepAlive(ctx, lock, done)

	return func(ctx context.Context) error {
		close(done)
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}

func (l *RedisLocker) keepAlive(ctx context.Context, lock *redislock.Lock, done <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := lock.Refresh(context.WithoutCancel(ctx), l.ttl, nil); err != nil {
				logger.Warn(ctx, "settlement lock refresh failed", "key", lock.Key(), "error", err)
				return
			}
		}
	}
}
