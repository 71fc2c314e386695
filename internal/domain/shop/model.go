// Package shop is the shop directory: identity, uniqueness and per-day flags of route shops.
package shop

import (
	"strings"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
)

// DefaultRoute is assigned to shops registered without a route.
const DefaultRoute = "default"

// Shop is a customer on a delivery route.
type Shop struct {
	ID    id.ID  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Route string `db:"route" json:"route"`

	// Seq is the registration order; listing is stable by Seq.
	Seq int64 `db:"seq" json:"seq"`

	Active bool `db:"active" json:"active"`

	// Delivered is set by the first delivery of the cycle and cleared by settlement.
	Delivered bool `db:"delivered" json:"delivered"`

	// PayTomorrow marks a collection deferred to the next day.
	PayTomorrow     bool   `db:"pay_tomorrow" json:"payTomorrow"`
	PayTomorrowNote string `db:"pay_tomorrow_note" json:"payTomorrowNote,omitempty"`

	// OpeningBalance is the unpaid residue carried over by the last settlement.
	OpeningBalance types.Money `db:"opening_balance" json:"openingBalance"`

	RegisteredAt time.Time  `db:"registered_at" json:"registeredAt"`
	RemovedAt    *time.Time `db:"removed_at" json:"removedAt,omitempty"`
	Version      int        `db:"version" json:"version"`
}

// New creates an active shop with zero balance.
func New(name, route string, now time.Time) (*Shop, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperror.NewValidation("shop name is required").WithDetail("field", "name")
	}
	if route == "" {
		route = DefaultRoute
	}
	return &Shop{
		ID:             id.New(),
		Name:           name,
		Route:          route,
		Active:         true,
		OpeningBalance: types.Zero(),
		RegisteredAt:   now,
		Version:        1,
	}, nil
}

// Deactivate removes the shop from the directory while keeping its history.
func (s *Shop) Deactivate(now time.Time) error {
	if !s.Active {
		return apperror.NewInvalidState("shop", s.ID, "removed", "removed")
	}
	s.Active = false
	s.RemovedAt = &now
	s.touch()
	return nil
}

// DeferPayment flags the shop to pay on the next day.
func (s *Shop) DeferPayment(note string) {
	s.PayTomorrow = true
	s.PayTomorrowNote = note
	s.touch()
}

// ClearDeferral drops the pay-tomorrow flag once the shop pays.
func (s *Shop) ClearDeferral() {
	s.PayTomorrow = false
	s.PayTomorrowNote = ""
	s.touch()
}

// OpenCycle starts a new accounting cycle with the given carried balance.
func (s *Shop) OpenCycle(opening types.Money) {
	s.OpeningBalance = opening
	s.Delivered = false
	s.PayTomorrow = false
	s.PayTomorrowNote = ""
	s.touch()
}

func (s *Shop) touch() {
	s.Version++
}

// Clone returns a deep copy.
func (s *Shop) Clone() *Shop {
	c := *s
	if s.RemovedAt != nil {
		t := *s.RemovedAt
		c.RemovedAt = &t
	}
	return &c
}
