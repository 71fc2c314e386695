package stock

import (
	"context"

	"routeledger/internal/core/id"
)

// Repository persists products and their movement journal.
type Repository interface {
	CreateProduct(ctx context.Context, p *Product) error
	GetProduct(ctx context.Context, productID id.ID) (*Product, error)

	// GetProductForUpdate reads the product and locks its row until the transaction ends.
	GetProductForUpdate(ctx context.Context, productID id.ID) (*Product, error)

	UpdateProduct(ctx context.Context, p *Product) error
	FindProductByName(ctx context.Context, name string) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)

	AppendMovements(ctx context.Context, movements []Movement) error

	// ListMovements returns the newest movements of a product first.
	ListMovements(ctx context.Context, productID id.ID, limit int) ([]Movement, error)
}
