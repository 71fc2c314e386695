// Package dto holds the request and response shapes of the HTTP API.
// Amounts and quantities travel as decimal strings and are parsed here.
package dto

import (
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
)

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewList wraps items; a nil slice renders as [].
func NewList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

// PageQuery is the common paging input.
type PageQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// RangeQuery bounds a listing by business date; empty bounds are open.
type RangeQuery struct {
	From string `form:"from" binding:"omitempty,bizdate"`
	To   string `form:"to" binding:"omitempty,bizdate"`
}

// Bounds parses the range.
func (q RangeQuery) Bounds() (from, to time.Time, err error) {
	if from, err = ParseDate("from", q.From); err != nil {
		return
	}
	to, err = ParseDate("to", q.To)
	return
}

// ParseDate parses an optional business date. Empty yields the zero time.
func ParseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := types.ParseDay(s)
	if err != nil {
		return time.Time{}, apperror.NewValidation("invalid date, expected YYYY-MM-DD").
			WithDetail("field", field).WithDetail("value", s)
	}
	return d, nil
}

// ParseID parses a uuid field.
func ParseID(field, s string) (id.ID, error) {
	v, err := id.Parse(s)
	if err != nil {
		return id.ID{}, apperror.NewValidation("invalid id").
			WithDetail("field", field).WithDetail("value", s)
	}
	return v, nil
}

// ParseOptionalID parses a uuid field that may be empty.
func ParseOptionalID(field, s string) (*id.ID, error) {
	if s == "" {
		return nil, nil
	}
	v, err := ParseID(field, s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseMoney(field, s string) (types.Money, error) {
	if s == "" {
		return types.Zero(), nil
	}
	m, err := types.NewMoneyFromString(s)
	if err != nil {
		return types.Money{}, apperror.NewValidation("invalid decimal").
			WithDetail("field", field).WithDetail("value", s)
	}
	return m, nil
}

func parseQuantity(field, s string) (types.Quantity, error) {
	if s == "" {
		return 0, nil
	}
	q, err := types.ParseQuantity(s)
	if err != nil {
		return 0, apperror.NewValidation("invalid decimal").
			WithDetail("field", field).WithDetail("value", s)
	}
	return q, nil
}
