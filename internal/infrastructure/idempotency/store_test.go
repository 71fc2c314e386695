package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeledger/internal/core/apperror"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	replay, err := s.Acquire(ctx, "k1", "fp")
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = s.Acquire(ctx, "k1", "fp")
	assert.True(t, apperror.Is(err, apperror.CodeDuplicate), "in-flight key must be rejected")

	_, err = s.Acquire(ctx, "k1", "other")
	assert.True(t, apperror.Is(err, apperror.CodeValidation), "key reuse with a different body must be rejected")

	require.NoError(t, s.Complete(ctx, "k1", Replay{StatusCode: 201, ContentType: "application/json", Body: []byte(`{"id":"x"}`)}))
	replay, err = s.Acquire(ctx, "k1", "fp")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"id":"x"}`, string(replay.Body))
}

func TestMemoryStore_ReleaseAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	_, err := s.Acquire(ctx, "k1", "fp")
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "k1"))

	replay, err := s.Acquire(ctx, "k1", "fp")
	require.NoError(t, err)
	assert.Nil(t, replay)

	now = now.Add(time.Minute)
	replay, err = s.Acquire(ctx, "k1", "different body after expiry")
	require.NoError(t, err)
	assert.Nil(t, replay)
}
