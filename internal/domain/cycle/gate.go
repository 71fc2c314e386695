// Package cycle guards the accounting cycle against commands racing the daily settlement.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
)

// ErrFenceRaised is returned by a Fence while a settlement holds it.
var ErrFenceRaised = errors.New("settlement fence is raised")

// Fence is the settlement flag kept in the shared store, so processes that
// serve commands see a settlement run by another process.
type Fence interface {
	// Raise sets the flag for holder in its own committed transaction. The flag
	// lapses after ttl unless lowered first. It returns ErrFenceRaised while
	// another holder's flag is live.
	Raise(ctx context.Context, holder string, ttl time.Duration) error

	// Lower clears the flag if holder still owns it.
	Lower(ctx context.Context, holder string) error

	// Check runs inside a command transaction and returns ErrFenceRaised while
	// the flag is live. It must serialize with Raise: a command that passed
	// Check commits before a concurrent Raise does.
	Check(ctx context.Context) error
}

// Gate admits ledger commands concurrently and gives the settlement exclusive access.
// A command arriving while the settlement holds the gate is rejected with
// SETTLEMENT_IN_PROGRESS instead of waiting; the caller retries once it finishes.
//
// The mutex covers this process. A gate built with NewSharedGate also
// consults a Fence, which covers every process sharing the store.
type Gate struct {
	mu sync.RWMutex

	fence Fence
	ttl   time.Duration
}

// NewGate creates an open gate for a single process.
func NewGate() *Gate {
	return &Gate{}
}

// NewSharedGate creates a gate whose settlements are announced through fence.
// ttl bounds how long a crashed settlement can keep other processes out.
func NewSharedGate(fence Fence, ttl time.Duration) *Gate {
	return &Gate{fence: fence, ttl: ttl}
}

// Enter admits one command. The returned func must be called when the command finishes.
func (g *Gate) Enter() (func(), error) {
	if !g.mu.TryRLock() {
		return nil, apperror.NewSettlementInProgress()
	}
	return g.mu.RUnlock, nil
}

// Admit must be called by an entered command inside its transaction, before
// it writes. It rejects the command while a settlement in any process holds the fence.
func (g *Gate) Admit(ctx context.Context) error {
	if g.fence == nil {
		return nil
	}
	if err := g.fence.Check(ctx); err != nil {
		if errors.Is(err, ErrFenceRaised) {
			return apperror.NewSettlementInProgress()
		}
		return fmt.Errorf("check settlement fence: %w", err)
	}
	return nil
}

// Exclusive waits for in-flight commands to drain and closes the gate until release is called.
func (g *Gate) Exclusive() (release func()) {
	g.mu.Lock()
	return g.mu.Unlock
}

// Raise announces a settlement to other processes. Commands they admit after
// Raise returns are rejected until lower is called. Without a fence it does nothing.
func (g *Gate) Raise(ctx context.Context) (lower func(ctx context.Context) error, err error) {
	if g.fence == nil {
		return func(context.Context) error { return nil }, nil
	}
	holder := id.New().String()
	if err := g.fence.Raise(ctx, holder, g.ttl); err != nil {
		if errors.Is(err, ErrFenceRaised) {
			return nil, apperror.NewSettlementInProgress()
		}
		return nil, fmt.Errorf("raise settlement fence: %w", err)
	}
	return func(ctx context.Context) error {
		return g.fence.Lower(ctx, holder)
	}, nil
}
