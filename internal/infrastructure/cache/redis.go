// Package cache holds the collection view caches and the cross-process settlement lock.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"routeledger/internal/config"
	"routeledger/pkg/logger"
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	logger.Info(ctx, "connected to redis", "addr", cfg.Addr, "db", cfg.DB)
	return rdb, nil
}
