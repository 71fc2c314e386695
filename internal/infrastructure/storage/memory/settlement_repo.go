package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/settlement"
)

var _ settlement.Repository = (*SettlementRepo)(nil)

// SettlementRepo implements settlement.Repository.
type SettlementRepo struct {
	s *Store
}

func (r *SettlementRepo) CreateArchive(ctx context.Context, a *settlement.Archive) error {
	return r.s.write(ctx, "archive.create", func(d *dataset) error {
		for _, existing := range d.Archives {
			if existing.Date.Equal(a.Date) && existing.Sequence == a.Sequence {
				return apperror.NewDuplicate("archive", "sequence", types.FormatDay(a.Date))
			}
		}
		d.Archives[a.ID] = cloneArchive(a)
		return nil
	})
}

func (r *SettlementRepo) GetArchive(ctx context.Context, archiveID id.ID) (*settlement.Archive, error) {
	a, ok := r.s.read(ctx).Archives[archiveID]
	if !ok {
		return nil, apperror.NewNotFound("archive", archiveID.String())
	}
	return cloneArchive(a), nil
}

func (r *SettlementRepo) ListArchives(ctx context.Context, from, to time.Time) ([]*settlement.Archive, error) {
	var out []*settlement.Archive
	for _, a := range r.s.read(ctx).Archives {
		if types.InRange(a.Date, from, to) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b *settlement.Archive) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.Sequence, b.Sequence))
	})
	for i, a := range out {
		out[i] = cloneArchive(a)
	}
	return out, nil
}

func (r *SettlementRepo) CreateIntent(ctx context.Context, i *settlement.Intent) error {
	return r.s.write(ctx, "intent.create", func(d *dataset) error {
		d.Intents[i.ID] = i.Clone()
		return nil
	})
}

func (r *SettlementRepo) UpdateIntent(ctx context.Context, i *settlement.Intent) error {
	return r.s.write(ctx, "intent.update", func(d *dataset) error {
		if _, ok := d.Intents[i.ID]; !ok {
			return apperror.NewNotFound("settlement intent", i.ID.String())
		}
		d.Intents[i.ID] = i.Clone()
		return nil
	})
}

func (r *SettlementRepo) ListIntents(ctx context.Context, status settlement.IntentStatus) ([]*settlement.Intent, error) {
	var out []*settlement.Intent
	for _, i := range r.s.read(ctx).Intents {
		if i.Status == status {
			out = append(out, i.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *settlement.Intent) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func cloneArchive(a *settlement.Archive) *settlement.Archive {
	c := *a
	c.Deliveries = make([]*delivery.Delivery, len(a.Deliveries))
	for i, d := range a.Deliveries {
		c.Deliveries[i] = d.Clone()
	}
	c.Payments = make([]*payment.Payment, len(a.Payments))
	for i, p := range a.Payments {
		c.Payments[i] = p.Clone()
	}
	c.Pending = make([]*payment.PendingEntry, len(a.Pending))
	for i, e := range a.Pending {
		c.Pending[i] = e.Clone()
	}
	c.Closings = slices.Clone(a.Closings)
	return &c
}
