package dto

import (
	"routeledger/internal/domain/delivery"
)

// DeliveryLineRequest is one requested product line.
type DeliveryLineRequest struct {
	ProductID string `json:"productId" binding:"required,uuid"`
	Quantity  string `json:"quantity" binding:"required,decimal"`
}

// CreateDeliveryRequest records a delivery to a shop.
type CreateDeliveryRequest struct {
	ShopID string                `json:"shopId" binding:"required,uuid"`
	Date   string                `json:"date" binding:"omitempty,bizdate"`
	Notes  string                `json:"notes" binding:"max=500"`
	Lines  []DeliveryLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// ToDomain converts the request for delivery.Ledger.Create.
func (r CreateDeliveryRequest) ToDomain() (delivery.CreateRequest, error) {
	shopID, err := ParseID("shopId", r.ShopID)
	if err != nil {
		return delivery.CreateRequest{}, err
	}
	date, err := ParseDate("date", r.Date)
	if err != nil {
		return delivery.CreateRequest{}, err
	}
	req := delivery.CreateRequest{
		ShopID: shopID,
		Date:   date,
		Notes:  r.Notes,
		Lines:  make([]delivery.LineRequest, 0, len(r.Lines)),
	}
	for _, l := range r.Lines {
		productID, err := ParseID("productId", l.ProductID)
		if err != nil {
			return delivery.CreateRequest{}, err
		}
		qty, err := parseQuantity("quantity", l.Quantity)
		if err != nil {
			return delivery.CreateRequest{}, err
		}
		req.Lines = append(req.Lines, delivery.LineRequest{ProductID: productID, Quantity: qty})
	}
	return req, nil
}

// DeliveryListQuery filters the delivery listing.
type DeliveryListQuery struct {
	RangeQuery
	PageQuery
	ShopID         string `form:"shopId" binding:"omitempty,uuid"`
	IncludeDeleted bool   `form:"includeDeleted"`
}

// ToFilter converts the query.
func (q DeliveryListQuery) ToFilter() (delivery.ListFilter, error) {
	shopID, err := ParseOptionalID("shopId", q.ShopID)
	if err != nil {
		return delivery.ListFilter{}, err
	}
	from, to, err := q.Bounds()
	if err != nil {
		return delivery.ListFilter{}, err
	}
	return delivery.ListFilter{
		ShopID:         shopID,
		From:           from,
		To:             to,
		IncludeDeleted: q.IncludeDeleted,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}, nil
}

// DeletedQuery lists recently deleted deliveries.
type DeletedQuery struct {
	ShopID string `form:"shopId" binding:"omitempty,uuid"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}
