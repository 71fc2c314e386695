// Package payment reconciles shop balances from deliveries, manual pending
// entries and payments received.
package payment

import (
	"time"

	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/delivery"
)

// Source tells what a payment was collected against.
type Source string

const (
	// SourceDelivery is a collection against deliveries of the cycle.
	SourceDelivery Source = "delivery"
	// SourceManual is a collection against a manual (legacy) pending amount.
	SourceManual Source = "manual"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceDelivery || s == SourceManual
}

// Payment is money received from a shop. Payments are immutable; settlement
// only stamps ArchiveID when it closes the cycle they belong to.
type Payment struct {
	ID        id.ID       `db:"id" json:"id"`
	ShopID    id.ID       `db:"shop_id" json:"shopId"`
	Amount    types.Money `db:"amount" json:"amount"`
	Source    Source      `db:"source" json:"source"`
	Date      time.Time   `db:"business_date" json:"date"`
	Note      string      `db:"note" json:"note,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	ArchiveID *id.ID      `db:"archive_id" json:"archiveId,omitempty"`
}

// PendingEntry is a manual pending amount: a balance owed that no delivery in
// the ledger accounts for.
type PendingEntry struct {
	ID        id.ID       `db:"id" json:"id"`
	ShopID    id.ID       `db:"shop_id" json:"shopId"`
	Amount    types.Money `db:"amount" json:"amount"`
	Date      time.Time   `db:"business_date" json:"date"`
	Note      string      `db:"note" json:"note,omitempty"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	ArchiveID *id.ID      `db:"archive_id" json:"archiveId,omitempty"`
}

// Open reports whether the payment belongs to the current cycle.
func (p *Payment) Open() bool { return p.ArchiveID == nil }

// Open reports whether the entry belongs to the current cycle.
func (e *PendingEntry) Open() bool { return e.ArchiveID == nil }

// Clone returns a copy.
func (p *Payment) Clone() *Payment {
	c := *p
	if p.ArchiveID != nil {
		a := *p.ArchiveID
		c.ArchiveID = &a
	}
	return &c
}

// Clone returns a copy.
func (e *PendingEntry) Clone() *PendingEntry {
	c := *e
	if e.ArchiveID != nil {
		a := *e.ArchiveID
		c.ArchiveID = &a
	}
	return &c
}

// Balance is the derived position of a shop in the open cycle:
// Outstanding = Opening + Deliveries + Pending − Payments.
type Balance struct {
	ShopID      id.ID       `json:"shopId"`
	Opening     types.Money `json:"opening"`
	Deliveries  types.Money `json:"deliveries"`
	Pending     types.Money `json:"pending"`
	Payments    types.Money `json:"payments"`
	Outstanding types.Money `json:"outstanding"`
}

// Compute derives the balance of shopID from raw ledger rows. Rows of other
// shops, deliveries that are not active, and closed payments or entries are ignored.
func Compute(shopID id.ID, opening types.Money, deliveries []*delivery.Delivery, pending []*PendingEntry, payments []*Payment) Balance {
	b := Balance{
		ShopID:     shopID,
		Opening:    opening,
		Deliveries: types.Zero(),
		Pending:    types.Zero(),
		Payments:   types.Zero(),
	}
	for _, d := range deliveries {
		if d.ShopID == shopID && d.State == delivery.StateActive {
			b.Deliveries = b.Deliveries.Add(d.Total)
		}
	}
	for _, e := range pending {
		if e.ShopID == shopID && e.Open() {
			b.Pending = b.Pending.Add(e.Amount)
		}
	}
	for _, p := range payments {
		if p.ShopID == shopID && p.Open() {
			b.Payments = b.Payments.Add(p.Amount)
		}
	}
	b.Outstanding = b.Opening.Add(b.Deliveries).Add(b.Pending).Sub(b.Payments)
	return b
}
