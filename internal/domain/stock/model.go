// Package stock is the stock registry: authoritative quantity-on-hand per product
// and the movement journal behind it.
package stock

import (
	"strings"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
)

// Product is a stocked item with its current selling price.
type Product struct {
	ID        id.ID          `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	UnitPrice types.Money    `db:"unit_price" json:"unitPrice"`
	OnHand    types.Quantity `db:"on_hand" json:"onHand"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time      `db:"updated_at" json:"updatedAt"`
	Version   int            `db:"version" json:"version"`
}

// NewProduct validates and creates a product with zero stock.
func NewProduct(name string, price types.Money, now time.Time) (*Product, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperror.NewValidation("product name is required").WithDetail("field", "name")
	}
	if price.IsNegative() {
		return nil, apperror.NewInvalidAmount("unit price cannot be negative", price.String())
	}
	return &Product{
		ID:        id.New(),
		Name:      name,
		UnitPrice: price,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}, nil
}

// Clone returns a copy.
func (p *Product) Clone() *Product {
	c := *p
	return &c
}

func (p *Product) apply(delta types.Quantity, now time.Time) error {
	level, err := p.OnHand.Add(delta)
	if err != nil {
		return outOfRange(p.ID, delta)
	}
	p.OnHand = level
	p.UpdatedAt = now
	p.Version++
	return nil
}

func outOfRange(productID id.ID, qty types.Quantity) *apperror.AppError {
	return apperror.NewQuantityOutOfRange(productID.String(), qty.String(), types.MaxQuantity.String())
}

// MovementKind classifies a stock movement.
type MovementKind string

const (
	MovementReserve MovementKind = "reserve"
	MovementRelease MovementKind = "release"
	MovementRestock MovementKind = "restock"
)

// Movement is one append-only entry of the stock journal.
type Movement struct {
	ID        id.ID `db:"id" json:"id"`
	ProductID id.ID `db:"product_id" json:"productId"`

	// RecorderID is the delivery that caused the movement; nil for restocks.
	RecorderID *id.ID `db:"recorder_id" json:"recorderId,omitempty"`

	Kind     MovementKind   `db:"kind" json:"kind"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// Balance is the on-hand level right after the movement.
	Balance    types.Quantity `db:"balance" json:"balance"`
	RecordedAt time.Time      `db:"recorded_at" json:"recordedAt"`
}

// Request asks for qty of a product.
type Request struct {
	ProductID id.ID
	Quantity  types.Quantity
}

// aggregate validates requests and sums repeated products, keeping first-seen order.
// A sum beyond types.MaxQuantity is rejected.
func aggregate(reqs []Request) ([]Request, error) {
	out := make([]Request, 0, len(reqs))
	index := make(map[id.ID]int, len(reqs))
	for _, r := range reqs {
		if !r.Quantity.IsPositive() {
			return nil, apperror.NewInvalidQuantity(r.ProductID.String(), r.Quantity.String())
		}
		if !r.Quantity.InRange() {
			return nil, outOfRange(r.ProductID, r.Quantity)
		}
		if i, ok := index[r.ProductID]; ok {
			sum, err := out[i].Quantity.Add(r.Quantity)
			if err != nil {
				return nil, outOfRange(r.ProductID, out[i].Quantity)
			}
			out[i].Quantity = sum
			continue
		}
		index[r.ProductID] = len(out)
		out = append(out, r)
	}
	return out, nil
}

// ProductIDs lists the distinct products of reqs.
func ProductIDs(reqs []Request) []id.ID {
	seen := make(map[id.ID]struct{}, len(reqs))
	out := make([]id.ID, 0, len(reqs))
	for _, r := range reqs {
		if _, ok := seen[r.ProductID]; ok {
			continue
		}
		seen[r.ProductID] = struct{}{}
		out = append(out, r.ProductID)
	}
	return out
}
