// Package domain holds building blocks shared by the ledger services.
package domain

import (
	"context"

	"routeledger/pkg/logger"
)

// HookEvent represents a committed ledger change.
type HookEvent string

const (
	AfterCreate  HookEvent = "after_create"
	AfterUpdate  HookEvent = "after_update"
	AfterDelete  HookEvent = "after_delete"
	AfterRestore HookEvent = "after_restore"
	AfterSettle  HookEvent = "after_settle"
)

// Hook is a function that runs after a change has been committed.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry stores after-commit hooks for an entity type.
// Hooks are registered during wiring, before the registry is shared.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{
		hooks: make(map[HookEvent][]Hook[T]),
	}
}

// On registers a hook for the specified event.
func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// OnAny registers one hook for several events.
func (r *HookRegistry[T]) OnAny(hook Hook[T], events ...HookEvent) {
	for _, e := range events {
		r.On(e, hook)
	}
}

// Run executes all hooks for the event. The change is already committed,
// so a failing hook is logged and the remaining hooks still run.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) {
	for _, hook := range r.hooks[event] {
		if err := hook(ctx, entity); err != nil {
			logger.Warn(ctx, "after-commit hook failed", "event", string(event), "error", err)
		}
	}
}
