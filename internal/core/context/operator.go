// Package context provides request-scoped values extraction.
package context

import (
	"context"
	"slices"
)

// ScopeSettlement grants the right to run the daily settlement.
const ScopeSettlement = "settlement"

// Operator is the authenticated caller of a command.
// The access-control collaborator issues it; the ledger only reads it.
type Operator struct {
	Subject string
	Scopes  []string
}

type operatorKey struct{}

// WithOperator adds Operator to context.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

// GetOperator returns Operator from context.
func GetOperator(ctx context.Context) *Operator {
	if v, ok := ctx.Value(operatorKey{}).(*Operator); ok {
		return v
	}
	return nil
}

// GetSubject returns the operator subject or empty string.
func GetSubject(ctx context.Context) string {
	if op := GetOperator(ctx); op != nil {
		return op.Subject
	}
	return ""
}

// HasScope checks if the operator was granted scope.
func HasScope(ctx context.Context, scope string) bool {
	op := GetOperator(ctx)
	if op == nil {
		return false
	}
	return slices.Contains(op.Scopes, scope)
}
