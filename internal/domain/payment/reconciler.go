package payment

import (
	"context"
	"fmt"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/keylock"
	"routeledger/internal/core/tx"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/cycle"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/shop"
	"routeledger/pkg/logger"
)

// PaymentRequest is the input of RecordPayment.
type PaymentRequest struct {
	ShopID id.ID
	Amount types.Money
	Source Source
	Date   time.Time // zero means today
	Note   string
}

// PendingRequest is the input of AddPendingAmount.
type PendingRequest struct {
	ShopID id.ID
	Amount types.Money
	Date   time.Time
	Note   string
}

// Reconciler records money movements and derives balances.
type Reconciler struct {
	repo       Repository
	deliveries delivery.Repository
	shops      shop.Repository
	txm        tx.Manager
	gate       *cycle.Gate
	cache      ViewCache
	shopLocks  *keylock.Set

	allowOverpayment bool
	now              func() time.Time
}

// ReconcilerConfig configures the reconciler.
type ReconcilerConfig struct {
	Repo       Repository
	Deliveries delivery.Repository
	Shops      shop.Repository
	TxManager  tx.Manager
	Gate       *cycle.Gate

	// Cache stores the collection view; nil disables caching.
	Cache ViewCache

	// AllowOverpayment accepts payments above the outstanding balance.
	AllowOverpayment bool
}

// NewReconciler creates a reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	cache := cfg.Cache
	if cache == nil {
		cache = NoopViewCache{}
	}
	return &Reconciler{
		repo:             cfg.Repo,
		deliveries:       cfg.Deliveries,
		shops:            cfg.Shops,
		txm:              cfg.TxManager,
		gate:             cfg.Gate,
		cache:            cache,
		shopLocks:        keylock.New(),
		allowOverpayment: cfg.AllowOverpayment,
		now:              time.Now,
	}
}

// RecordPayment appends a payment. Both sources reduce the outstanding balance.
func (r *Reconciler) RecordPayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.NewInvalidAmount("payment amount must be greater than zero", req.Amount.String())
	}
	if req.Source == "" {
		req.Source = SourceDelivery
	}
	if !req.Source.Valid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown payment source %q", req.Source)).
			WithDetail("field", "source")
	}

	leave, err := r.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	_, unlock := r.shopLocks.Lock(req.ShopID)
	defer unlock()

	now := r.now()
	p := &Payment{
		ID:        id.New(),
		ShopID:    req.ShopID,
		Amount:    req.Amount,
		Source:    req.Source,
		Date:      dayOr(req.Date, now),
		Note:      req.Note,
		CreatedAt: now,
	}

	err = r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.gate.Admit(ctx); err != nil {
			return err
		}
		s, err := r.shops.Get(ctx, req.ShopID)
		if err != nil {
			return err
		}
		if !r.allowOverpayment {
			b, err := r.balance(ctx, s)
			if err != nil {
				return err
			}
			if req.Amount.GreaterThan(b.Outstanding) {
				return apperror.NewInvalidAmount("payment exceeds the outstanding balance", req.Amount.String()).
					WithDetail("shop_id", s.ID.String()).
					WithDetail("outstanding", b.Outstanding.String())
			}
		}
		if err := r.repo.CreatePayment(ctx, p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		if s.PayTomorrow {
			s.ClearDeferral()
			if err := r.shops.Update(ctx, s); err != nil {
				return fmt.Errorf("clear pay-tomorrow: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "payment recorded",
		"payment_id", p.ID,
		"shop_id", p.ShopID,
		"amount", p.Amount.String(),
		"source", string(p.Source),
	)
	r.InvalidateView(ctx)
	return p, nil
}

// AddPendingAmount records a manual pending amount that raises the balance.
func (r *Reconciler) AddPendingAmount(ctx context.Context, req PendingRequest) (*PendingEntry, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.NewInvalidAmount("pending amount must be greater than zero", req.Amount.String())
	}

	leave, err := r.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	_, unlock := r.shopLocks.Lock(req.ShopID)
	defer unlock()

	now := r.now()
	e := &PendingEntry{
		ID:        id.New(),
		ShopID:    req.ShopID,
		Amount:    req.Amount,
		Date:      dayOr(req.Date, now),
		Note:      req.Note,
		CreatedAt: now,
	}

	err = r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.gate.Admit(ctx); err != nil {
			return err
		}
		s, err := r.shops.Get(ctx, req.ShopID)
		if err != nil {
			return err
		}
		if !s.Active {
			return apperror.NewShopInactive(s.ID.String())
		}
		return r.repo.CreatePending(ctx, e)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "pending amount added", "entry_id", e.ID, "shop_id", e.ShopID, "amount", e.Amount.String())
	r.InvalidateView(ctx)
	return e, nil
}

// MarkPayTomorrow defers collection from a shop to the next day.
func (r *Reconciler) MarkPayTomorrow(ctx context.Context, shopID id.ID, note string) (*shop.Shop, error) {
	leave, err := r.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	_, unlock := r.shopLocks.Lock(shopID)
	defer unlock()

	var updated *shop.Shop
	err = r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := r.gate.Admit(ctx); err != nil {
			return err
		}
		s, err := r.shops.Get(ctx, shopID)
		if err != nil {
			return err
		}
		if !s.Active {
			return apperror.NewShopInactive(s.ID.String())
		}
		b, err := r.balance(ctx, s)
		if err != nil {
			return err
		}
		if !b.Outstanding.IsPositive() {
			return apperror.NewBusinessRule(apperror.CodeInvalidState, "shop has nothing outstanding").
				WithDetail("shop_id", s.ID.String())
		}
		s.DeferPayment(note)
		updated = s
		return r.shops.Update(ctx, s)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "payment deferred", "shop_id", shopID)
	r.InvalidateView(ctx)
	return updated, nil
}

// GetBalance recomputes the balance of a shop from the open cycle. Read-only.
func (r *Reconciler) GetBalance(ctx context.Context, shopID id.ID) (*Balance, error) {
	s, err := r.shops.Get(ctx, shopID)
	if err != nil {
		return nil, err
	}
	b, err := r.balance(ctx, s)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Payments lists the payments of a shop, open cycle only unless all is set.
func (r *Reconciler) Payments(ctx context.Context, shopID id.ID, all bool) ([]*Payment, error) {
	if _, err := r.shops.Get(ctx, shopID); err != nil {
		return nil, err
	}
	return r.repo.ListPayments(ctx, Filter{ShopID: &shopID, OpenOnly: !all})
}

// PendingEntries lists the manual pending entries of a shop.
func (r *Reconciler) PendingEntries(ctx context.Context, shopID id.ID, all bool) ([]*PendingEntry, error) {
	if _, err := r.shops.Get(ctx, shopID); err != nil {
		return nil, err
	}
	return r.repo.ListPending(ctx, Filter{ShopID: &shopID, OpenOnly: !all})
}

// InvalidateView drops the cached collection view.
func (r *Reconciler) InvalidateView(ctx context.Context) {
	if err := r.cache.Invalidate(ctx); err != nil {
		logger.Warn(ctx, "collection view invalidation failed", "error", err)
	}
}

func (r *Reconciler) balance(ctx context.Context, s *shop.Shop) (Balance, error) {
	deliveries, err := r.deliveries.List(ctx, delivery.Filter{
		ShopID: &s.ID,
		States: []delivery.State{delivery.StateActive},
	})
	if err != nil {
		return Balance{}, fmt.Errorf("list deliveries: %w", err)
	}
	pending, err := r.repo.ListPending(ctx, Filter{ShopID: &s.ID, OpenOnly: true})
	if err != nil {
		return Balance{}, fmt.Errorf("list pending entries: %w", err)
	}
	payments, err := r.repo.ListPayments(ctx, Filter{ShopID: &s.ID, OpenOnly: true})
	if err != nil {
		return Balance{}, fmt.Errorf("list payments: %w", err)
	}
	return Compute(s.ID, s.OpeningBalance, deliveries, pending, payments), nil
}

func dayOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return types.Day(fallback)
	}
	return types.Day(t)
}
