package memory

import (
	"context"
	"slices"
	"strings"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/domain/stock"
)

var _ stock.Repository = (*StockRepo)(nil)

// StockRepo implements stock.Repository.
type StockRepo struct {
	s *Store
}

func (r *StockRepo) CreateProduct(ctx context.Context, p *stock.Product) error {
	return r.s.write(ctx, "product.create", func(d *dataset) error {
		for _, existing := range d.Products {
			if existing.Name == p.Name {
				return apperror.NewDuplicate("product", "name", p.Name)
			}
		}
		d.Products[p.ID] = p.Clone()
		return nil
	})
}

func (r *StockRepo) GetProduct(ctx context.Context, productID id.ID) (*stock.Product, error) {
	p, ok := r.s.read(ctx).Products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return p.Clone(), nil
}

// GetProductForUpdate needs no row lock: write transactions are serialized.
func (r *StockRepo) GetProductForUpdate(ctx context.Context, productID id.ID) (*stock.Product, error) {
	return r.GetProduct(ctx, productID)
}

func (r *StockRepo) UpdateProduct(ctx context.Context, p *stock.Product) error {
	return r.s.write(ctx, "product.update", func(d *dataset) error {
		stored, ok := d.Products[p.ID]
		if !ok {
			return apperror.NewNotFound("product", p.ID.String())
		}
		if stored.Version != p.Version-1 {
			return apperror.NewConcurrentModification("product", p.ID.String())
		}
		d.Products[p.ID] = p.Clone()
		return nil
	})
}

func (r *StockRepo) FindProductByName(ctx context.Context, name string) (*stock.Product, error) {
	for _, p := range r.s.read(ctx).Products {
		if p.Name == name {
			return p.Clone(), nil
		}
	}
	return nil, apperror.NewNotFound("product", name)
}

func (r *StockRepo) ListProducts(ctx context.Context) ([]*stock.Product, error) {
	data := r.s.read(ctx)
	out := make([]*stock.Product, 0, len(data.Products))
	for _, p := range data.Products {
		out = append(out, p.Clone())
	}
	slices.SortFunc(out, func(a, b *stock.Product) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *StockRepo) AppendMovements(ctx context.Context, movements []stock.Movement) error {
	return r.s.write(ctx, "movement.append", func(d *dataset) error {
		d.Movements = append(d.Movements, movements...)
		return nil
	})
}

func (r *StockRepo) ListMovements(ctx context.Context, productID id.ID, limit int) ([]stock.Movement, error) {
	all := r.s.read(ctx).Movements
	var out []stock.Movement
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ProductID != productID {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
