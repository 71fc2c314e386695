// Package ledgertest wires the ledger services on an in-memory store for tests.
package ledgertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain"
	"routeledger/internal/domain/cycle"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/settlement"
	"routeledger/internal/domain/shop"
	"routeledger/internal/domain/stock"
	"routeledger/internal/infrastructure/storage/memory"
)

// Ledger is a fully wired ledger over a memory store.
type Ledger struct {
	Store      *memory.Store
	Gate       *cycle.Gate
	Shops      *shop.Directory
	Stock      *stock.Registry
	Deliveries *delivery.Ledger
	Reconciler *payment.Reconciler
	Settlement *settlement.Engine
}

type options struct {
	authorizer       settlement.Authorizer
	locker           settlement.Locker
	cache            payment.ViewCache
	allowOverpayment bool
}

// Option adjusts the wiring.
type Option func(*options)

// WithAuthorizer replaces the default AllowAll settlement authorizer.
func WithAuthorizer(a settlement.Authorizer) Option { return func(o *options) { o.authorizer = a } }

// WithLocker sets the cross-process settlement lock.
func WithLocker(l settlement.Locker) Option { return func(o *options) { o.locker = l } }

// WithViewCache sets the collection view cache.
func WithViewCache(c payment.ViewCache) Option { return func(o *options) { o.cache = c } }

// WithOverpayment accepts payments above the outstanding balance.
func WithOverpayment() Option { return func(o *options) { o.allowOverpayment = true } }

// New wires a ledger over a fresh volatile store.
func New(t testing.TB, opts ...Option) *Ledger {
	t.Helper()
	return Wire(memory.New(), opts...)
}

// Wire builds the services over an existing store. Two ledgers wired over one
// store behave like two processes sharing a database.
func Wire(store *memory.Store, opts ...Option) *Ledger {
	o := options{authorizer: settlement.AllowAll}
	for _, opt := range opts {
		opt(&o)
	}

	gate := cycle.NewSharedGate(store.Fence(), time.Minute)
	stk := stock.NewRegistry(store.Stock(), store)
	l := &Ledger{
		Store: store,
		Gate:  gate,
		Stock: stk,
		Shops: shop.NewDirectory(shop.DirectoryConfig{
			Repo:      store.Shops(),
			TxManager: store,
			Gate:      gate,
		}),
		Deliveries: delivery.NewLedger(delivery.LedgerConfig{
			Repo:  store.Deliveries(),
			Shops: store.Shops(),
			Stock: stk,
			Gate:  gate,
		}),
		Reconciler: payment.NewReconciler(payment.ReconcilerConfig{
			Repo:             store.Payments(),
			Deliveries:       store.Deliveries(),
			Shops:            store.Shops(),
			TxManager:        store,
			Gate:             gate,
			Cache:            o.cache,
			AllowOverpayment: o.allowOverpayment,
		}),
		Settlement: settlement.NewEngine(settlement.EngineConfig{
			Repo:       store.Settlements(),
			Shops:      store.Shops(),
			Deliveries: store.Deliveries(),
			Payments:   store.Payments(),
			TxManager:  store,
			Gate:       gate,
			Authorizer: o.authorizer,
			Locker:     o.locker,
		}),
	}
	invalidate := func(ctx context.Context) { l.Reconciler.InvalidateView(ctx) }
	l.Deliveries.Hooks().OnAny(func(ctx context.Context, _ *delivery.Delivery) error {
		invalidate(ctx)
		return nil
	}, domain.AfterCreate, domain.AfterDelete, domain.AfterRestore)
	l.Settlement.Hooks().On(domain.AfterSettle, func(ctx context.Context, _ *settlement.Archive) error {
		invalidate(ctx)
		return nil
	})
	return l
}

// Shop registers a shop on the default route.
func (l *Ledger) Shop(t testing.TB, name string) *shop.Shop {
	t.Helper()
	s, err := l.Shops.Register(context.Background(), name, "")
	require.NoError(t, err)
	return s
}

// Product adds a product with opening stock given as a decimal string.
func (l *Ledger) Product(t testing.TB, name, price, onHand string) *stock.Product {
	t.Helper()
	p, err := l.Stock.AddProduct(context.Background(), name, types.MustMoney(price), types.MustQuantity(onHand))
	require.NoError(t, err)
	return p
}

// Deliver records a delivery dated today.
func (l *Ledger) Deliver(t testing.TB, shopID id.ID, lines ...delivery.LineRequest) *delivery.Delivery {
	t.Helper()
	d, err := l.Deliveries.Create(context.Background(), delivery.CreateRequest{ShopID: shopID, Lines: lines})
	require.NoError(t, err)
	return d
}

// Pay records a delivery-source payment dated today.
func (l *Ledger) Pay(t testing.TB, shopID id.ID, amount string) *payment.Payment {
	t.Helper()
	p, err := l.Reconciler.RecordPayment(context.Background(), payment.PaymentRequest{
		ShopID: shopID,
		Amount: types.MustMoney(amount),
	})
	require.NoError(t, err)
	return p
}

// OnHand returns the current stock of a product.
func (l *Ledger) OnHand(t testing.TB, productID id.ID) types.Quantity {
	t.Helper()
	p, err := l.Stock.Peek(context.Background(), productID)
	require.NoError(t, err)
	return p.OnHand
}

// Outstanding returns the balance of a shop.
func (l *Ledger) Outstanding(t testing.TB, shopID id.ID) types.Money {
	t.Helper()
	b, err := l.Reconciler.GetBalance(context.Background(), shopID)
	require.NoError(t, err)
	return b.Outstanding
}

// Line builds a delivery line from a decimal quantity.
func Line(productID id.ID, qty string) delivery.LineRequest {
	return delivery.LineRequest{ProductID: productID, Quantity: types.MustQuantity(qty)}
}
