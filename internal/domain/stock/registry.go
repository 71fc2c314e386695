package stock

import (
	"context"
	"fmt"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/keylock"
	"routeledger/internal/core/tx"
	"routeledger/internal/core/types"
	"routeledger/pkg/logger"
)

// Registry owns quantity-on-hand. Every change to OnHand goes through a
// Holding, which exists only while the product locks and a transaction are held.
type Registry struct {
	repo  Repository
	txm   tx.Manager
	locks *keylock.Set
	now   func() time.Time
}

// NewRegistry creates a stock registry.
func NewRegistry(repo Repository, txm tx.Manager) *Registry {
	return &Registry{
		repo:  repo,
		txm:   txm,
		locks: keylock.New(),
		now:   time.Now,
	}
}

// Hold locks productIDs, opens a transaction and runs fn with a Holding over them.
// Product locks are taken before the transaction starts; callers must not call
// Hold from inside a transaction of their own.
func (r *Registry) Hold(ctx context.Context, productIDs []id.ID, fn func(ctx context.Context, h *Holding) error) error {
	held, unlock := r.locks.Lock(productIDs...)
	defer unlock()

	h := &Holding{r: r, held: make(map[id.ID]struct{}, len(held))}
	for _, pid := range held {
		h.held[pid] = struct{}{}
	}
	return r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx, h)
	})
}

// Reserve takes qty of one product and returns the new on-hand level.
func (r *Registry) Reserve(ctx context.Context, productID id.ID, qty types.Quantity) (types.Quantity, error) {
	var level types.Quantity
	err := r.Hold(ctx, []id.ID{productID}, func(ctx context.Context, h *Holding) error {
		products, err := h.Reserve(ctx, nil, []Request{{ProductID: productID, Quantity: qty}})
		if err != nil {
			return err
		}
		level = products[productID].OnHand
		return nil
	})
	return level, err
}

// Release returns qty of one product and returns the new on-hand level.
func (r *Registry) Release(ctx context.Context, productID id.ID, qty types.Quantity) (types.Quantity, error) {
	var level types.Quantity
	err := r.Hold(ctx, []id.ID{productID}, func(ctx context.Context, h *Holding) error {
		products, err := h.Release(ctx, nil, []Request{{ProductID: productID, Quantity: qty}})
		if err != nil {
			return err
		}
		level = products[productID].OnHand
		return nil
	})
	return level, err
}

// ReserveGroup reserves every request or none of them.
func (r *Registry) ReserveGroup(ctx context.Context, recorderID id.ID, reqs []Request) error {
	return r.Hold(ctx, ProductIDs(reqs), func(ctx context.Context, h *Holding) error {
		_, err := h.Reserve(ctx, &recorderID, reqs)
		return err
	})
}

// ReleaseGroup returns every request or none of them.
func (r *Registry) ReleaseGroup(ctx context.Context, recorderID id.ID, reqs []Request) error {
	return r.Hold(ctx, ProductIDs(reqs), func(ctx context.Context, h *Holding) error {
		_, err := h.Release(ctx, &recorderID, reqs)
		return err
	})
}

// Peek returns a snapshot of the product without side effects.
func (r *Registry) Peek(ctx context.Context, productID id.ID) (*Product, error) {
	return r.repo.GetProduct(ctx, productID)
}

// ListProducts returns every product ordered by name.
func (r *Registry) ListProducts(ctx context.Context) ([]*Product, error) {
	return r.repo.ListProducts(ctx)
}

// Movements returns the newest movements of a product.
func (r *Registry) Movements(ctx context.Context, productID id.ID, limit int) ([]Movement, error) {
	if _, err := r.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.repo.ListMovements(ctx, productID, limit)
}

// AddProduct creates a product, optionally with opening stock.
func (r *Registry) AddProduct(ctx context.Context, name string, price types.Money, opening types.Quantity) (*Product, error) {
	if opening.IsNegative() {
		return nil, apperror.NewInvalidQuantity("", opening.String())
	}
	if !opening.InRange() {
		return nil, apperror.NewQuantityOutOfRange("", opening.String(), types.MaxQuantity.String())
	}
	now := r.now()
	p, err := NewProduct(name, price, now)
	if err != nil {
		return nil, err
	}

	err = r.Hold(ctx, []id.ID{p.ID}, func(ctx context.Context, h *Holding) error {
		existing, err := r.repo.FindProductByName(ctx, name)
		if err != nil && !apperror.IsNotFound(err) {
			return fmt.Errorf("find product by name: %w", err)
		}
		if existing != nil {
			return apperror.NewDuplicate("product", "name", name)
		}
		if err := r.repo.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("create product: %w", err)
		}
		if opening.IsPositive() {
			_, err := h.restock(ctx, p.ID, opening)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.OnHand = opening
	logger.Info(ctx, "product added", "product_id", p.ID, "name", name, "on_hand", opening.String())
	return p, nil
}

// Restock adds qty to a product.
func (r *Registry) Restock(ctx context.Context, productID id.ID, qty types.Quantity) (*Product, error) {
	var p *Product
	err := r.Hold(ctx, []id.ID{productID}, func(ctx context.Context, h *Holding) error {
		var err error
		p, err = h.restock(ctx, productID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "product restocked", "product_id", productID, "quantity", qty.String(), "on_hand", p.OnHand.String())
	return p, nil
}

// SetPrice changes the selling price. Deliveries keep the price they captured.
func (r *Registry) SetPrice(ctx context.Context, productID id.ID, price types.Money) (*Product, error) {
	if price.IsNegative() {
		return nil, apperror.NewInvalidAmount("unit price cannot be negative", price.String())
	}
	var p *Product
	err := r.Hold(ctx, []id.ID{productID}, func(ctx context.Context, h *Holding) error {
		var err error
		p, err = r.repo.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		p.UnitPrice = price
		if err := p.apply(0, r.now()); err != nil {
			return err
		}
		return r.repo.UpdateProduct(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Holding is the capability to move stock of a locked set of products
// inside one transaction.
type Holding struct {
	r    *Registry
	held map[id.ID]struct{}
}

func (h *Holding) check(productID id.ID) error {
	if _, ok := h.held[productID]; !ok {
		return apperror.NewInternal(fmt.Errorf("product %s moved without its lock", productID))
	}
	return nil
}

// Reserve decrements every requested product, or fails without writing anything.
// Quantities of repeated products are summed. On shortage the first short product
// in request order is reported. The returned products carry the levels after reservation
// and the unit price current at reservation time.
func (h *Holding) Reserve(ctx context.Context, recorderID *id.ID, reqs []Request) (map[id.ID]*Product, error) {
	agg, err := aggregate(reqs)
	if err != nil {
		return nil, err
	}

	products := make(map[id.ID]*Product, len(agg))
	for _, req := range agg {
		if err := h.check(req.ProductID); err != nil {
			return nil, err
		}
		p, err := h.r.repo.GetProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		if req.Quantity > p.OnHand {
			return nil, apperror.NewInsufficientStock(p.ID.String(), p.Name, req.Quantity.String(), p.OnHand.String())
		}
		products[p.ID] = p
	}

	if err := h.move(ctx, recorderID, MovementReserve, agg, products, -1); err != nil {
		return nil, err
	}
	return products, nil
}

// Release increments every requested product. A level beyond types.MaxQuantity
// fails the whole release.
func (h *Holding) Release(ctx context.Context, recorderID *id.ID, reqs []Request) (map[id.ID]*Product, error) {
	return h.release(ctx, recorderID, reqs, MovementRelease)
}

func (h *Holding) release(ctx context.Context, recorderID *id.ID, reqs []Request, kind MovementKind) (map[id.ID]*Product, error) {
	agg, err := aggregate(reqs)
	if err != nil {
		return nil, err
	}

	products := make(map[id.ID]*Product, len(agg))
	for _, req := range agg {
		if err := h.check(req.ProductID); err != nil {
			return nil, err
		}
		p, err := h.r.repo.GetProductForUpdate(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}

	if err := h.move(ctx, recorderID, kind, agg, products, 1); err != nil {
		return nil, err
	}
	return products, nil
}

func (h *Holding) restock(ctx context.Context, productID id.ID, qty types.Quantity) (*Product, error) {
	products, err := h.release(ctx, nil, []Request{{ProductID: productID, Quantity: qty}}, MovementRestock)
	if err != nil {
		return nil, err
	}
	return products[productID], nil
}

func (h *Holding) move(ctx context.Context, recorderID *id.ID, kind MovementKind, agg []Request, products map[id.ID]*Product, sign types.Quantity) error {
	now := h.r.now()
	movements := make([]Movement, 0, len(agg))
	for _, req := range agg {
		p := products[req.ProductID]
		if err := p.apply(sign*req.Quantity, now); err != nil {
			return err
		}
		if err := h.r.repo.UpdateProduct(ctx, p); err != nil {
			return fmt.Errorf("update product %s: %w", p.ID, err)
		}
		movements = append(movements, Movement{
			ID:         id.New(),
			ProductID:  p.ID,
			RecorderID: recorderID,
			Kind:       kind,
			Quantity:   req.Quantity,
			Balance:    p.OnHand,
			RecordedAt: now,
		})
	}
	if err := h.r.repo.AppendMovements(ctx, movements); err != nil {
		return fmt.Errorf("append stock movements: %w", err)
	}
	return nil
}
