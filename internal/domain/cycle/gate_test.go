package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeledger/internal/core/apperror"
)

func TestGate_CommandsRunConcurrently(t *testing.T) {
	g := NewGate()

	leave1, err := g.Enter()
	require.NoError(t, err)
	leave2, err := g.Enter()
	require.NoError(t, err)

	leave1()
	leave2()
}

func TestGate_RejectsCommandsWhileExclusive(t *testing.T) {
	g := NewGate()
	release := g.Exclusive()

	_, err := g.Enter()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeSettlementInProgress))

	release()

	leave, err := g.Enter()
	require.NoError(t, err)
	leave()
}

func TestGate_ExclusiveWaitsForInFlightCommands(t *testing.T) {
	g := NewGate()
	leave, err := g.Enter()
	require.NoError(t, err)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		release := g.Exclusive()
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("exclusive acquired while a command was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	leave()
	wg.Wait()
}

// flagFence keeps the fence in memory, standing in for a shared store.
type flagFence struct {
	mu     sync.Mutex
	holder string
	err    error
}

func (f *flagFence) Raise(_ context.Context, holder string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.holder != "" {
		return ErrFenceRaised
	}
	f.holder = holder
	return nil
}

func (f *flagFence) Lower(_ context.Context, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holder == holder {
		f.holder = ""
	}
	return nil
}

func (f *flagFence) Check(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.holder != "" {
		return ErrFenceRaised
	}
	return f.err
}

func TestGate_FenceRejectsCommandsOfOtherProcesses(t *testing.T) {
	ctx := context.Background()
	fence := &flagFence{}
	server := NewSharedGate(fence, time.Minute)
	worker := NewSharedGate(fence, time.Minute)

	require.NoError(t, server.Admit(ctx))

	lower, err := worker.Raise(ctx)
	require.NoError(t, err)

	// the server's own mutex is open, the fence is not
	leave, err := server.Enter()
	require.NoError(t, err)
	err = server.Admit(ctx)
	assert.True(t, apperror.Is(err, apperror.CodeSettlementInProgress), "got %v", err)
	leave()

	_, err = server.Raise(ctx)
	assert.True(t, apperror.Is(err, apperror.CodeSettlementInProgress), "second settlement while fenced")

	require.NoError(t, lower(ctx))
	assert.NoError(t, server.Admit(ctx))
}

func TestGate_FenceFailureIsNotReportedAsSettlement(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")
	g := NewSharedGate(&flagFence{err: down}, time.Minute)

	err := g.Admit(ctx)
	assert.ErrorIs(t, err, down)
	assert.False(t, apperror.Is(err, apperror.CodeSettlementInProgress))

	_, err = g.Raise(ctx)
	assert.ErrorIs(t, err, down)
}

func TestGate_WithoutFenceAdmitsEverything(t *testing.T) {
	ctx := context.Background()
	g := NewGate()
	lower, err := g.Raise(ctx)
	require.NoError(t, err)
	assert.NoError(t, g.Admit(ctx))
	assert.NoError(t, lower(ctx))
}
