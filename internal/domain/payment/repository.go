package payment

import (
	"context"

	"routeledger/internal/core/id"
)

// Filter selects payments or pending entries.
type Filter struct {
	ShopID    *id.ID
	OpenOnly  bool
	ArchiveID *id.ID
}

// Repository persists payments and manual pending entries.
type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	CreatePending(ctx context.Context, e *PendingEntry) error

	// ListPayments and ListPending return rows ordered by creation time.
	ListPayments(ctx context.Context, f Filter) ([]*Payment, error)
	ListPending(ctx context.Context, f Filter) ([]*PendingEntry, error)

	// ClosePayments and ClosePending stamp open rows with the archive that closed them.
	ClosePayments(ctx context.Context, ids []id.ID, archiveID id.ID) error
	ClosePending(ctx context.Context, ids []id.ID, archiveID id.ID) error
}
