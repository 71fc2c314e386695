package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/domain/stock"
)

var _ stock.Repository = (*StockRepo)(nil)

var (
	productColumns  = []string{"id", "name", "unit_price", "on_hand", "created_at", "updated_at", "version"}
	movementColumns = []string{"id", "product_id", "recorder_id", "kind", "quantity", "balance", "recorded_at"}
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm *TxManager
}

func (r *StockRepo) CreateProduct(ctx context.Context, p *stock.Product) error {
	_, err := exec(ctx, r.txm.GetQuerier(ctx),
		builder().Insert("products").Columns(productColumns...).
			Values(p.ID, p.Name, p.UnitPrice, p.OnHand.Int64Scaled(), p.CreatedAt, p.UpdatedAt, p.Version),
		"insert product")
	if _, ok := isUniqueViolation(err); ok {
		return apperror.NewDuplicate("product", "name", p.Name)
	}
	return err
}

func (r *StockRepo) GetProduct(ctx context.Context, productID id.ID) (*stock.Product, error) {
	return r.getProduct(ctx, productID, "")
}

// GetProductForUpdate locks the product row until the transaction ends.
func (r *StockRepo) GetProductForUpdate(ctx context.Context, productID id.ID) (*stock.Product, error) {
	return r.getProduct(ctx, productID, "FOR UPDATE")
}

func (r *StockRepo) getProduct(ctx context.Context, productID id.ID, lock string) (*stock.Product, error) {
	p := &stock.Product{}
	q := builder().Select(productColumns...).From("products").Where(squirrel.Eq{"id": productID})
	if lock != "" {
		q = q.Suffix(lock)
	}
	if err := get(ctx, r.txm.GetQuerier(ctx), p, q, "product", productID.String()); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *StockRepo) UpdateProduct(ctx context.Context, p *stock.Product) error {
	n, err := exec(ctx, r.txm.GetQuerier(ctx),
		builder().Update("products").
			Set("name", p.Name).
			Set("unit_price", p.UnitPrice).
			Set("on_hand", p.OnHand.Int64Scaled()).
			Set("updated_at", p.UpdatedAt).
			Set("version", p.Version).
			Where(squirrel.Eq{"id": p.ID, "version": p.Version - 1}),
		"update product")
	if err != nil {
		return err
	}
	return versioned(n, "product", p.ID)
}

func (r *StockRepo) FindProductByName(ctx context.Context, name string) (*stock.Product, error) {
	p := &stock.Product{}
	q := builder().Select(productColumns...).From("products").Where(squirrel.Eq{"name": name})
	if err := get(ctx, r.txm.GetQuerier(ctx), p, q, "product", name); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *StockRepo) ListProducts(ctx context.Context) ([]*stock.Product, error) {
	var out []*stock.Product
	q := builder().Select(productColumns...).From("products").OrderBy("name")
	if err := selectAll(ctx, r.txm.GetQuerier(ctx), &out, q, "products"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *StockRepo) AppendMovements(ctx context.Context, movements []stock.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	q := builder().Insert("stock_movements").Columns(movementColumns...)
	for _, m := range movements {
		q = q.Values(m.ID, m.ProductID, m.RecorderID, string(m.Kind),
			m.Quantity.Int64Scaled(), m.Balance.Int64Scaled(), m.RecordedAt)
	}
	_, err := exec(ctx, r.txm.GetQuerier(ctx), q, "append movements")
	return err
}

func (r *StockRepo) ListMovements(ctx context.Context, productID id.ID, limit int) ([]stock.Movement, error) {
	var out []stock.Movement
	q := builder().Select(movementColumns...).From("stock_movements").
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("recorded_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if err := selectAll(ctx, r.txm.GetQuerier(ctx), &out, q, "movements"); err != nil {
		return nil, err
	}
	return out, nil
}
