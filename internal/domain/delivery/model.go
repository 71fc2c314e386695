// Package delivery is the delivery ledger: line-itemed deliveries per shop and day,
// each tied to the stock it reserved, with reversible soft deletion.
package delivery

import (
	"fmt"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/stock"
)

// State is the lifecycle state of a delivery.
type State string

const (
	StateActive   State = "active"
	StateDeleted  State = "deleted"
	StateArchived State = "archived"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateActive, StateDeleted, StateArchived:
		return true
	}
	return false
}

// Line is one product of a delivery with the price captured when it was created.
type Line struct {
	LineNo      int            `db:"line_no" json:"lineNo"`
	ProductID   id.ID          `db:"product_id" json:"productId"`
	ProductName string         `db:"product_name" json:"productName"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitPrice   types.Money    `db:"unit_price" json:"unitPrice"`
	Amount      types.Money    `db:"amount" json:"amount"`
}

// Delivery is never physically removed; deletion and archiving are state changes.
type Delivery struct {
	ID     id.ID     `db:"id" json:"id"`
	ShopID id.ID     `db:"shop_id" json:"shopId"`
	Date   time.Time `db:"business_date" json:"date"`
	Notes  string    `db:"notes" json:"notes,omitempty"`

	Lines []Line      `db:"-" json:"lines"`
	Total types.Money `db:"total" json:"total"`

	State State `db:"state" json:"state"`

	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	DeletedAt  *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	RestoredAt *time.Time `db:"restored_at" json:"restoredAt,omitempty"`
	ArchivedAt *time.Time `db:"archived_at" json:"archivedAt,omitempty"`
	ArchiveID  *id.ID     `db:"archive_id" json:"archiveId,omitempty"`

	Version int `db:"version" json:"version"`
}

// AddLine appends a line priced at unitPrice and updates the total.
func (d *Delivery) AddLine(productID id.ID, productName string, qty types.Quantity, unitPrice types.Money) {
	d.Lines = append(d.Lines, Line{
		LineNo:      len(d.Lines) + 1,
		ProductID:   productID,
		ProductName: productName,
		Quantity:    qty,
		UnitPrice:   unitPrice,
		Amount:      qty.Times(unitPrice),
	})
	d.recalculate()
}

func (d *Delivery) recalculate() {
	total := types.Zero()
	for _, l := range d.Lines {
		total = total.Add(l.Amount)
	}
	d.Total = total
}

// Validate checks the stored invariants of a delivery.
func (d *Delivery) Validate() error {
	if len(d.Lines) == 0 {
		return apperror.NewValidation("delivery must have at least one line").WithDetail("field", "lines")
	}
	total := types.Zero()
	for i, l := range d.Lines {
		if !l.Quantity.IsPositive() {
			return apperror.NewInvalidQuantity(l.ProductID.String(), l.Quantity.String()).
				WithDetail("line", i+1)
		}
		if !l.Amount.Equal(l.Quantity.Times(l.UnitPrice)) {
			return apperror.NewValidation(fmt.Sprintf("line %d: amount does not match quantity × price", i+1))
		}
		total = total.Add(l.Amount)
	}
	if !total.Equal(d.Total) {
		return apperror.NewValidation("delivery total does not match its lines")
	}
	if !d.State.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown delivery state %q", d.State))
	}
	return nil
}

// Requests returns the stock held by the delivery, one request per line.
func (d *Delivery) Requests() []stock.Request {
	reqs := make([]stock.Request, len(d.Lines))
	for i, l := range d.Lines {
		reqs[i] = stock.Request{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return reqs
}

// ProductIDs lists the distinct products of the delivery.
func (d *Delivery) ProductIDs() []id.ID {
	return stock.ProductIDs(d.Requests())
}

// --- state transitions ---

// MarkDeleted moves an active delivery to Deleted.
func (d *Delivery) MarkDeleted(now time.Time) error {
	if d.State != StateActive {
		return apperror.NewAlreadyDeleted("delivery", d.ID, string(d.State))
	}
	d.State = StateDeleted
	d.DeletedAt = &now
	d.Version++
	return nil
}

// Restore moves a deleted delivery back to Active.
func (d *Delivery) Restore(now time.Time) error {
	if d.State != StateDeleted {
		return apperror.NewInvalidState("delivery", d.ID, string(d.State), string(StateActive))
	}
	d.State = StateActive
	d.RestoredAt = &now
	d.DeletedAt = nil
	d.Version++
	return nil
}

// Archive seals an active delivery into a daily archive.
func (d *Delivery) Archive(archiveID id.ID, now time.Time) error {
	if d.State != StateActive {
		return apperror.NewInvalidState("delivery", d.ID, string(d.State), string(StateArchived))
	}
	d.State = StateArchived
	d.ArchiveID = &archiveID
	d.ArchivedAt = &now
	d.Version++
	return nil
}

// Clone returns a deep copy.
func (d *Delivery) Clone() *Delivery {
	c := *d
	c.Lines = append([]Line(nil), d.Lines...)
	c.DeletedAt = clonePtr(d.DeletedAt)
	c.RestoredAt = clonePtr(d.RestoredAt)
	c.ArchivedAt = clonePtr(d.ArchivedAt)
	c.ArchiveID = clonePtr(d.ArchiveID)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
