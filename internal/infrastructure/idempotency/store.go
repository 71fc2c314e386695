// Package idempotency remembers responses to keyed requests so a retried
// payment or delivery is answered from the first attempt instead of being recorded twice.
package idempotency

import (
	"context"
	"net/http"
	"sync"
	"time"

	"routeledger/internal/core/apperror"
)

// Status of a key.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Replay is the stored response of a completed request.
type Replay struct {
	StatusCode  int    `json:"statusCode"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Record is the state of one key.
type Record struct {
	Status      Status  `json:"status"`
	Fingerprint string  `json:"fingerprint"`
	Replay      *Replay `json:"replay,omitempty"`
}

// Store tracks idempotency keys.
type Store interface {
	// Acquire claims key for a request with the given fingerprint.
	// It returns (nil, nil) when the caller owns the key, the stored replay
	// when the request already completed, or an error when the key is in
	// flight or was used for a different request.
	Acquire(ctx context.Context, key, fingerprint string) (*Replay, error)

	// Complete stores the response of an owned key.
	Complete(ctx context.Context, key string, r Replay) error

	// Release forgets an owned key so the client may retry with it.
	Release(ctx context.Context, key string) error
}

// resolve maps an existing record to the Acquire outcome.
func resolve(rec *Record, key, fingerprint string) (*Replay, error) {
	if rec.Fingerprint != fingerprint {
		return nil, apperror.NewValidation("idempotency key was used for a different request").
			WithDetail("key", key)
	}
	if rec.Status == StatusPending {
		e := apperror.NewBusinessRule(apperror.CodeDuplicate, "request with this idempotency key is in progress").
			WithDetail("key", key)
		e.HTTPStatus = http.StatusConflict
		return nil, e
	}
	return rec.Replay, nil
}

type memoryEntry struct {
	rec     Record
	expires time.Time
}

// MemoryStore keeps keys in process.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	keys map[string]*memoryEntry
}

// NewMemoryStore creates a store whose keys expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, keys: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Acquire(_ context.Context, key, fingerprint string) (*Replay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.keys[key]; ok && now.Before(e.expires) {
		return resolve(&e.rec, key, fingerprint)
	}
	s.sweep(now)
	s.keys[key] = &memoryEntry{
		rec:     Record{Status: StatusPending, Fingerprint: fingerprint},
		expires: now.Add(s.ttl),
	}
	return nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, r Replay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.keys[key]; ok {
		e.rec.Status = StatusCompleted
		e.rec.Replay = &r
	}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.keys {
		if !now.Before(e.expires) {
			delete(s.keys, k)
		}
	}
}
