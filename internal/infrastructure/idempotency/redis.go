package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "routeledger:idempotency:"

// RedisStore shares keys between server replicas.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore creates a store whose keys expire after ttl.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Acquire(ctx context.Context, key, fingerprint string) (*Replay, error) {
	pending, err := json.Marshal(Record{Status: StatusPending, Fingerprint: fingerprint})
	if err != nil {
		return nil, err
	}
	ok, err := s.rdb.SetNX(ctx, keyPrefix+key, pending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Acquire(ctx, key, fingerprint)
	}
	if err != nil {
		return nil, fmt.Errorf("read idempotency key: %w", err)
	}
	rec := &Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("decode idempotency key: %w", err)
	}
	return resolve(rec, key, fingerprint)
}

func (s *RedisStore) Complete(ctx context.Context, key string, r Replay) error {
	raw, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		return fmt.Errorf("read idempotency key: %w", err)
	}
	rec := &Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return fmt.Errorf("decode idempotency key: %w", err)
	}
	rec.Status = StatusCompleted
	rec.Replay = &r
	done, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, keyPrefix+key, done, redis.KeepTTL).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, keyPrefix+key).Err()
}
