package memory

import (
	"cmp"
	"context"
	"slices"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/domain/payment"
)

var _ payment.Repository = (*PaymentRepo)(nil)

// PaymentRepo implements payment.Repository.
type PaymentRepo struct {
	s *Store
}

func (r *PaymentRepo) CreatePayment(ctx context.Context, p *payment.Payment) error {
	return r.s.write(ctx, "payment.create", func(d *dataset) error {
		d.Payments[p.ID] = p.Clone()
		return nil
	})
}

func (r *PaymentRepo) CreatePending(ctx context.Context, e *payment.PendingEntry) error {
	return r.s.write(ctx, "pending.create", func(d *dataset) error {
		d.Pending[e.ID] = e.Clone()
		return nil
	})
}

func (r *PaymentRepo) ListPayments(ctx context.Context, f payment.Filter) ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range r.s.read(ctx).Payments {
		if matches(f, p.ShopID, p.ArchiveID) {
			out = append(out, p.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *payment.Payment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), slices.Compare(a.ID[:], b.ID[:]))
	})
	return out, nil
}

func (r *PaymentRepo) ListPending(ctx context.Context, f payment.Filter) ([]*payment.PendingEntry, error) {
	var out []*payment.PendingEntry
	for _, e := range r.s.read(ctx).Pending {
		if matches(f, e.ShopID, e.ArchiveID) {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *payment.PendingEntry) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), slices.Compare(a.ID[:], b.ID[:]))
	})
	return out, nil
}

func (r *PaymentRepo) ClosePayments(ctx context.Context, ids []id.ID, archiveID id.ID) error {
	return r.s.write(ctx, "payment.close", func(d *dataset) error {
		for _, pid := range ids {
			p, ok := d.Payments[pid]
			if !ok {
				return apperror.NewNotFound("payment", pid.String())
			}
			if !p.Open() {
				return apperror.NewConcurrentModification("payment", pid.String())
			}
			next := p.Clone()
			next.ArchiveID = &archiveID
			d.Payments[pid] = next
		}
		return nil
	})
}

func (r *PaymentRepo) ClosePending(ctx context.Context, ids []id.ID, archiveID id.ID) error {
	return r.s.write(ctx, "pending.close", func(d *dataset) error {
		for _, eid := range ids {
			e, ok := d.Pending[eid]
			if !ok {
				return apperror.NewNotFound("pending entry", eid.String())
			}
			if !e.Open() {
				return apperror.NewConcurrentModification("pending entry", eid.String())
			}
			next := e.Clone()
			next.ArchiveID = &archiveID
			d.Pending[eid] = next
		}
		return nil
	})
}

func matches(f payment.Filter, shopID id.ID, archiveID *id.ID) bool {
	if f.ShopID != nil && shopID != *f.ShopID {
		return false
	}
	if f.OpenOnly && archiveID != nil {
		return false
	}
	if f.ArchiveID != nil && (archiveID == nil || *archiveID != *f.ArchiveID) {
		return false
	}
	return true
}
