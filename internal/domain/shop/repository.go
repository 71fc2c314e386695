package shop

import (
	"context"

	"routeledger/internal/core/id"
)

// Repository persists shops.
// Get returns NOT_FOUND for unknown ids; Create maps a clash on the active-name
// uniqueness to DUPLICATE_ENTRY.
type Repository interface {
	Create(ctx context.Context, s *Shop) error
	Get(ctx context.Context, shopID id.ID) (*Shop, error)

	// Update persists every field except Delivered, which only SetDelivered changes,
	// so a stale read cannot undo a concurrent delivery.
	Update(ctx context.Context, s *Shop) error

	FindActiveByName(ctx context.Context, name string) (*Shop, error)

	// ListPage returns up to limit shops with Seq > afterSeq, ordered by Seq.
	ListPage(ctx context.Context, afterSeq int64, limit int) ([]*Shop, error)

	// SetDelivered sets the per-day delivered flag without touching other fields.
	SetDelivered(ctx context.Context, shopID id.ID, delivered bool) error
}
