package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHookRegistry_RunsAllHooksInOrder(t *testing.T) {
	r := NewHookRegistry[string]()
	var calls []string

	r.On(AfterCreate, func(_ context.Context, s string) error {
		calls = append(calls, "first:"+s)
		return errors.New("cache down")
	})
	r.On(AfterCreate, func(_ context.Context, s string) error {
		calls = append(calls, "second:"+s)
		return nil
	})
	r.OnAny(func(_ context.Context, s string) error {
		calls = append(calls, "any:"+s)
		return nil
	}, AfterDelete, AfterRestore)

	r.Run(context.Background(), AfterCreate, "d1")
	r.Run(context.Background(), AfterRestore, "d2")
	r.Run(context.Background(), AfterSettle, "d3")

	assert.Equal(t, []string{"first:d1", "second:d1", "any:d2"}, calls)
}
