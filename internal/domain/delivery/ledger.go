package delivery

import (
	"context"
	"fmt"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain"
	"routeledger/internal/domain/cycle"
	"routeledger/internal/domain/shop"
	"routeledger/internal/domain/stock"
	"routeledger/pkg/logger"
)

// LineRequest is one requested line of a new delivery.
type LineRequest struct {
	ProductID id.ID
	Quantity  types.Quantity
}

// CreateRequest is the input of Ledger.Create.
type CreateRequest struct {
	ShopID id.ID
	Date   time.Time // zero means today
	Lines  []LineRequest
	Notes  string
}

// ListFilter is the query side of the ledger.
type ListFilter struct {
	ShopID         *id.ID
	From, To       time.Time
	IncludeDeleted bool
	Limit, Offset  int
}

// Ledger creates, deletes and restores deliveries, keeping stock in step.
type Ledger struct {
	repo  Repository
	shops shop.Repository
	stock *stock.Registry
	gate  *cycle.Gate
	hooks *domain.HookRegistry[*Delivery]
	now   func() time.Time
}

// LedgerConfig configures the ledger.
type LedgerConfig struct {
	Repo  Repository
	Shops shop.Repository
	Stock *stock.Registry
	Gate  *cycle.Gate
}

// NewLedger creates a delivery ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	return &Ledger{
		repo:  cfg.Repo,
		shops: cfg.Shops,
		stock: cfg.Stock,
		gate:  cfg.Gate,
		hooks: domain.NewHookRegistry[*Delivery](),
		now:   time.Now,
	}
}

// Hooks returns the hook registry for external registration.
func (l *Ledger) Hooks() *domain.HookRegistry[*Delivery] {
	return l.hooks
}

// Create records a delivery and reserves its stock as one group.
// Nothing is reserved or stored when any line fails.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (*Delivery, error) {
	leave, err := l.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if len(req.Lines) == 0 {
		return nil, apperror.NewValidation("delivery must have at least one line").WithDetail("field", "lines")
	}
	reqs := make([]stock.Request, len(req.Lines))
	for i, line := range req.Lines {
		if !line.Quantity.IsPositive() {
			return nil, apperror.NewInvalidQuantity(line.ProductID.String(), line.Quantity.String()).
				WithDetail("line", i+1)
		}
		reqs[i] = stock.Request{ProductID: line.ProductID, Quantity: line.Quantity}
	}

	now := l.now()
	date := req.Date
	if date.IsZero() {
		date = now
	}
	d := &Delivery{
		ID:        id.New(),
		ShopID:    req.ShopID,
		Date:      types.Day(date),
		Notes:     req.Notes,
		State:     StateActive,
		CreatedAt: now,
		Version:   1,
	}

	err = l.stock.Hold(ctx, stock.ProductIDs(reqs), func(ctx context.Context, h *stock.Holding) error {
		if err := l.gate.Admit(ctx); err != nil {
			return err
		}
		s, err := l.shops.Get(ctx, req.ShopID)
		if err != nil {
			return err
		}
		if !s.Active {
			return apperror.NewShopInactive(s.ID.String())
		}

		products, err := h.Reserve(ctx, &d.ID, reqs)
		if err != nil {
			return err
		}
		for _, line := range req.Lines {
			p := products[line.ProductID]
			d.AddLine(p.ID, p.Name, line.Quantity, p.UnitPrice)
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if err := l.repo.Create(ctx, d); err != nil {
			return fmt.Errorf("create delivery: %w", err)
		}
		if !s.Delivered {
			if err := l.shops.SetDelivered(ctx, s.ID, true); err != nil {
				return fmt.Errorf("mark shop delivered: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "delivery created",
		"delivery_id", d.ID,
		"shop_id", d.ShopID,
		"lines", len(d.Lines),
		"total", d.Total.String(),
	)
	l.hooks.Run(ctx, domain.AfterCreate, d)
	return d, nil
}

// Delete soft-deletes an active delivery and returns its stock.
func (l *Ledger) Delete(ctx context.Context, deliveryID id.ID) (*Delivery, error) {
	leave, err := l.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	current, err := l.repo.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	var deleted *Delivery
	err = l.stock.Hold(ctx, current.ProductIDs(), func(ctx context.Context, h *stock.Holding) error {
		if err := l.gate.Admit(ctx); err != nil {
			return err
		}
		d, err := l.repo.GetForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		if err := d.MarkDeleted(l.now()); err != nil {
			return err
		}
		if _, err := h.Release(ctx, &d.ID, d.Requests()); err != nil {
			return fmt.Errorf("release stock: %w", err)
		}
		if err := l.repo.Update(ctx, d); err != nil {
			return fmt.Errorf("update delivery: %w", err)
		}
		deleted = d
		return l.syncDelivered(ctx, d.ShopID)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "delivery deleted", "delivery_id", deliveryID, "shop_id", deleted.ShopID)
	l.hooks.Run(ctx, domain.AfterDelete, deleted)
	return deleted, nil
}

// Restore re-reserves the stock of a deleted delivery against current levels
// and makes it active again. On shortage it returns RESTORE_CONFLICT and the
// delivery stays deleted. Deliveries of removed shops cannot be restored.
func (l *Ledger) Restore(ctx context.Context, deliveryID id.ID) (*Delivery, error) {
	leave, err := l.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	current, err := l.repo.Get(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	var restored *Delivery
	err = l.stock.Hold(ctx, current.ProductIDs(), func(ctx context.Context, h *stock.Holding) error {
		if err := l.gate.Admit(ctx); err != nil {
			return err
		}
		d, err := l.repo.GetForUpdate(ctx, deliveryID)
		if err != nil {
			return err
		}
		s, err := l.shops.Get(ctx, d.ShopID)
		if err != nil {
			return err
		}
		if !s.Active {
			return apperror.NewShopInactive(s.ID.String())
		}
		if err := d.Restore(l.now()); err != nil {
			return err
		}
		if _, err := h.Reserve(ctx, &d.ID, d.Requests()); err != nil {
			if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeInsufficientStock {
				return apperror.NewRestoreConflict(d.ID.String(), appErr)
			}
			return err
		}
		if err := l.repo.Update(ctx, d); err != nil {
			return fmt.Errorf("update delivery: %w", err)
		}
		restored = d
		return l.shops.SetDelivered(ctx, d.ShopID, true)
	})
	if err != nil {
		if apperror.Is(err, apperror.CodeRestoreConflict) {
			logger.Warn(ctx, "delivery restore rejected", "delivery_id", deliveryID, "error", err)
		}
		return nil, err
	}

	logger.Info(ctx, "delivery restored", "delivery_id", deliveryID, "shop_id", restored.ShopID)
	l.hooks.Run(ctx, domain.AfterRestore, restored)
	return restored, nil
}

// Get returns a delivery in any state.
func (l *Ledger) Get(ctx context.Context, deliveryID id.ID) (*Delivery, error) {
	return l.repo.Get(ctx, deliveryID)
}

// List returns active and archived deliveries, plus deleted ones when asked.
func (l *Ledger) List(ctx context.Context, f ListFilter) ([]*Delivery, error) {
	states := []State{StateActive, StateArchived}
	if f.IncludeDeleted {
		states = append(states, StateDeleted)
	}
	return l.repo.List(ctx, Filter{
		ShopID: f.ShopID,
		From:   dayOrZero(f.From),
		To:     dayOrZero(f.To),
		States: states,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

// Deleted returns the deleted-deliveries history, candidates for Restore.
func (l *Ledger) Deleted(ctx context.Context, shopID *id.ID, limit int) ([]*Delivery, error) {
	return l.repo.List(ctx, Filter{ShopID: shopID, States: []State{StateDeleted}, Limit: limit})
}

// syncDelivered clears the shop's delivered flag once its last active delivery is gone.
func (l *Ledger) syncDelivered(ctx context.Context, shopID id.ID) error {
	active, err := l.repo.List(ctx, Filter{ShopID: &shopID, States: []State{StateActive}, Limit: 1})
	if err != nil {
		return fmt.Errorf("list active deliveries: %w", err)
	}
	return l.shops.SetDelivered(ctx, shopID, len(active) > 0)
}

func dayOrZero(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return types.Day(t)
}
