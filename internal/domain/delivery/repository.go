package delivery

import (
	"context"
	"time"

	"routeledger/internal/core/id"
)

// Filter selects deliveries.
type Filter struct {
	ShopID *id.ID
	From   time.Time // inclusive business date, zero = open
	To     time.Time // inclusive business date, zero = open
	States []State   // empty = every state
	Limit  int
	Offset int
}

// Repository persists deliveries. Lines are written once, on Create.
type Repository interface {
	Create(ctx context.Context, d *Delivery) error
	Get(ctx context.Context, deliveryID id.ID) (*Delivery, error)

	// GetForUpdate reads the delivery and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, deliveryID id.ID) (*Delivery, error)

	// Update persists the lifecycle fields (state, timestamps, archive id, version).
	Update(ctx context.Context, d *Delivery) error

	// List returns matches ordered by business date, then creation time.
	List(ctx context.Context, f Filter) ([]*Delivery, error)
}
