package payment

import (
	"context"
	"fmt"
	"time"

	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/shop"
)

// CollectionStatus is the collection state of a shop in the open cycle.
type CollectionStatus string

const (
	StatusNone        CollectionStatus = "none"
	StatusPending     CollectionStatus = "pending"
	StatusPartial     CollectionStatus = "partial"
	StatusPaid        CollectionStatus = "paid"
	StatusPayTomorrow CollectionStatus = "pay_tomorrow"
)

// CollectionRow is one shop on the collection screen.
type CollectionRow struct {
	ShopID   id.ID  `json:"shopId"`
	ShopName string `json:"shopName"`
	Route    string `json:"route"`

	// TodayPending is the total of active deliveries of the cycle.
	TodayPending types.Money `json:"todayPending"`
	// OldPending is the carried balance plus manual pending entries.
	OldPending   types.Money      `json:"oldPending"`
	Paid         types.Money      `json:"paid"`
	TotalPending types.Money      `json:"totalPending"`
	Status       CollectionStatus `json:"status"`
	Note         string           `json:"note,omitempty"`
}

// CollectionTotals sums the rows.
type CollectionTotals struct {
	TodayPending types.Money `json:"todayPending"`
	OldPending   types.Money `json:"oldPending"`
	Paid         types.Money `json:"paid"`
	TotalPending types.Money `json:"totalPending"`
}

// CollectionView lists every active shop, plus removed shops that still owe money.
type CollectionView struct {
	GeneratedAt time.Time                `json:"generatedAt"`
	Rows        []CollectionRow          `json:"rows"`
	Totals      CollectionTotals         `json:"totals"`
	Counts      map[CollectionStatus]int `json:"counts"`
}

// ViewCache stores the last computed collection view.
type ViewCache interface {
	Get(ctx context.Context) (*CollectionView, bool, error)
	Set(ctx context.Context, v *CollectionView) error
	Invalidate(ctx context.Context) error
}

// NoopViewCache never caches.
type NoopViewCache struct{}

func (NoopViewCache) Get(context.Context) (*CollectionView, bool, error) { return nil, false, nil }
func (NoopViewCache) Set(context.Context, *CollectionView) error         { return nil }
func (NoopViewCache) Invalidate(context.Context) error                   { return nil }

// CollectionView builds the per-shop collection summary of the open cycle.
func (r *Reconciler) CollectionView(ctx context.Context) (*CollectionView, error) {
	if v, ok, err := r.cache.Get(ctx); err == nil && ok {
		return v, nil
	}

	shops, err := shop.Collect(ctx, r.shops)
	if err != nil {
		return nil, err
	}
	deliveries, err := r.deliveries.List(ctx, delivery.Filter{States: []delivery.State{delivery.StateActive}})
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	pending, err := r.repo.ListPending(ctx, Filter{OpenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list pending entries: %w", err)
	}
	payments, err := r.repo.ListPayments(ctx, Filter{OpenOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	v := BuildCollectionView(shops, deliveries, pending, payments, r.now())
	_ = r.cache.Set(ctx, v)
	return v, nil
}

// BuildCollectionView is the pure computation behind CollectionView.
func BuildCollectionView(shops []*shop.Shop, deliveries []*delivery.Delivery, pending []*PendingEntry, payments []*Payment, now time.Time) *CollectionView {
	v := &CollectionView{
		GeneratedAt: now,
		Rows:        make([]CollectionRow, 0, len(shops)),
		Totals: CollectionTotals{
			TodayPending: types.Zero(),
			OldPending:   types.Zero(),
			Paid:         types.Zero(),
			TotalPending: types.Zero(),
		},
		Counts: make(map[CollectionStatus]int),
	}

	for _, s := range shops {
		b := Compute(s.ID, s.OpeningBalance, deliveries, pending, payments)
		if !s.Active && b.Outstanding.IsZero() {
			continue
		}
		row := CollectionRow{
			ShopID:       s.ID,
			ShopName:     s.Name,
			Route:        s.Route,
			TodayPending: b.Deliveries,
			OldPending:   b.Opening.Add(b.Pending),
			Paid:         b.Payments,
			TotalPending: b.Outstanding,
			Status:       statusOf(s, b),
			Note:         s.PayTomorrowNote,
		}
		v.Rows = append(v.Rows, row)
		v.Counts[row.Status]++
		v.Totals.TodayPending = v.Totals.TodayPending.Add(row.TodayPending)
		v.Totals.OldPending = v.Totals.OldPending.Add(row.OldPending)
		v.Totals.Paid = v.Totals.Paid.Add(row.Paid)
		v.Totals.TotalPending = v.Totals.TotalPending.Add(row.TotalPending)
	}
	return v
}

func statusOf(s *shop.Shop, b Balance) CollectionStatus {
	due := b.Opening.Add(b.Deliveries).Add(b.Pending)
	switch {
	case due.IsZero() && b.Payments.IsZero():
		return StatusNone
	case !b.Outstanding.IsPositive():
		return StatusPaid
	case s.PayTomorrow:
		return StatusPayTomorrow
	case b.Payments.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}
