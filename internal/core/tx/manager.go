// Package tx defines the transaction boundary the ledger services run in.
// Implementations live in infrastructure/storage (memory and postgres).
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, every write made through ctx is discarded.
	// If fn succeeds, all writes become visible together.
	//
	// Nested calls reuse the existing transaction from context.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
