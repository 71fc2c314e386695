package settlement

import (
	"context"
	"errors"

	appctx "routeledger/internal/core/context"
)

// Authorizer is the boolean gate of the access-control collaborator.
type Authorizer interface {
	SettlementAuthorized(ctx context.Context) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context) bool

func (f AuthorizerFunc) SettlementAuthorized(ctx context.Context) bool { return f(ctx) }

// AllowAll authorizes every caller. Used for local single-operator setups and the scheduler.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context) bool { return true })

// ScopeAuthorizer authorizes operators carrying the settlement scope.
var ScopeAuthorizer Authorizer = AuthorizerFunc(func(ctx context.Context) bool {
	return appctx.HasScope(ctx, appctx.ScopeSettlement)
})

// ErrLockHeld is returned by a Locker when another process is settling.
var ErrLockHeld = errors.New("settlement lock is held by another process")

// Locker excludes concurrent settlements across processes.
type Locker interface {
	Obtain(ctx context.Context, key string) (release func(ctx context.Context) error, err error)
}

// NoopLocker is for single-process deployments, where the engine state already excludes.
type NoopLocker struct{}

func (NoopLocker) Obtain(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}
