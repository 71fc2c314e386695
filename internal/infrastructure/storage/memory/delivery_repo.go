package memory

import (
	"cmp"
	"context"
	"slices"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/delivery"
)

var _ delivery.Repository = (*DeliveryRepo)(nil)

// DeliveryRepo implements delivery.Repository.
type DeliveryRepo struct {
	s *Store
}

func (r *DeliveryRepo) Create(ctx context.Context, d *delivery.Delivery) error {
	return r.s.write(ctx, "delivery.create", func(data *dataset) error {
		if _, exists := data.Deliveries[d.ID]; exists {
			return apperror.NewDuplicate("delivery", "id", d.ID.String())
		}
		data.Deliveries[d.ID] = d.Clone()
		return nil
	})
}

func (r *DeliveryRepo) Get(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	d, ok := r.s.read(ctx).Deliveries[deliveryID]
	if !ok {
		return nil, apperror.NewNotFound("delivery", deliveryID.String())
	}
	return d.Clone(), nil
}

// GetForUpdate needs no row lock: write transactions are serialized.
func (r *DeliveryRepo) GetForUpdate(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	return r.Get(ctx, deliveryID)
}

func (r *DeliveryRepo) Update(ctx context.Context, d *delivery.Delivery) error {
	return r.s.write(ctx, "delivery.update", func(data *dataset) error {
		stored, ok := data.Deliveries[d.ID]
		if !ok {
			return apperror.NewNotFound("delivery", d.ID.String())
		}
		if stored.Version != d.Version-1 {
			return apperror.NewConcurrentModification("delivery", d.ID.String())
		}
		changed := d.Clone()
		next := stored.Clone()
		next.State = changed.State
		next.DeletedAt = changed.DeletedAt
		next.RestoredAt = changed.RestoredAt
		next.ArchivedAt = changed.ArchivedAt
		next.ArchiveID = changed.ArchiveID
		next.Version = changed.Version
		data.Deliveries[d.ID] = next
		return nil
	})
}

func (r *DeliveryRepo) List(ctx context.Context, f delivery.Filter) ([]*delivery.Delivery, error) {
	var out []*delivery.Delivery
	for _, d := range r.s.read(ctx).Deliveries {
		if f.ShopID != nil && d.ShopID != *f.ShopID {
			continue
		}
		if len(f.States) > 0 && !slices.Contains(f.States, d.State) {
			continue
		}
		if !types.InRange(d.Date, f.From, f.To) {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *delivery.Delivery) int {
		return cmp.Or(
			a.Date.Compare(b.Date),
			a.CreatedAt.Compare(b.CreatedAt),
			slices.Compare(a.ID[:], b.ID[:]),
		)
	})
	out = page(out, f.Offset, f.Limit)
	for i, d := range out {
		out[i] = d.Clone()
	}
	return out, nil
}
