// Package keylock provides per-key mutual exclusion.
package keylock

import (
	"bytes"
	"slices"
	"sync"

	"routeledger/internal/core/id"
)

// Set holds one mutex per key. Callers lock a set of keys at once and always
// in id order, so two callers sharing keys cannot deadlock.
type Set struct {
	mu    sync.Mutex
	locks map[id.ID]*sync.Mutex
}

// New creates an empty Set.
func New() *Set {
	return &Set{locks: make(map[id.ID]*sync.Mutex)}
}

func (s *Set) get(key id.ID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

// Lock acquires the mutexes of keys and returns the sorted distinct keys held.
func (s *Set) Lock(keys ...id.ID) (held []id.ID, unlock func()) {
	held = slices.Clone(keys)
	slices.SortFunc(held, func(a, b id.ID) int { return bytes.Compare(a[:], b[:]) })
	held = slices.Compact(held)

	mutexes := make([]*sync.Mutex, len(held))
	for i, key := range held {
		mutexes[i] = s.get(key)
		mutexes[i].Lock()
	}
	return held, func() {
		for i := len(mutexes) - 1; i >= 0; i-- {
			mutexes[i].Unlock()
		}
	}
}
