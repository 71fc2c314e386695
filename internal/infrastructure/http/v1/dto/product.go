package dto

import (
	"routeledger/internal/core/types"
)

// CreateProductRequest adds a product with an optional opening stock.
type CreateProductRequest struct {
	Name         string `json:"name" binding:"required,max=200"`
	UnitPrice    string `json:"unitPrice" binding:"required,decimal"`
	OpeningStock string `json:"openingStock" binding:"omitempty,decimal"`
}

// Parse returns the price and opening stock.
func (r CreateProductRequest) Parse() (types.Money, types.Quantity, error) {
	price, err := parseMoney("unitPrice", r.UnitPrice)
	if err != nil {
		return types.Money{}, 0, err
	}
	opening, err := parseQuantity("openingStock", r.OpeningStock)
	if err != nil {
		return types.Money{}, 0, err
	}
	return price, opening, nil
}

// RestockRequest adds stock to a product.
type RestockRequest struct {
	Quantity string `json:"quantity" binding:"required,decimal"`
}

// Parse returns the quantity.
func (r RestockRequest) Parse() (types.Quantity, error) {
	return parseQuantity("quantity", r.Quantity)
}

// SetPriceRequest changes the selling price of a product.
type SetPriceRequest struct {
	UnitPrice string `json:"unitPrice" binding:"required,decimal"`
}

// Parse returns the price.
func (r SetPriceRequest) Parse() (types.Money, error) {
	return parseMoney("unitPrice", r.UnitPrice)
}

// MovementQuery limits the journal listing.
type MovementQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}
