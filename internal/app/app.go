// Package app wires the ledger services onto the configured storage and cache.
package app

import (
	"context"
	"fmt"

	"routeledger/internal/config"
	"routeledger/internal/core/tx"
	"routeledger/internal/domain"
	"routeledger/internal/domain/cycle"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/settlement"
	"routeledger/internal/domain/shop"
	"routeledger/internal/domain/stock"
	"routeledger/internal/infrastructure/auth"
	"routeledger/internal/infrastructure/cache"
	"routeledger/internal/infrastructure/http/v1/handlers"
	"routeledger/internal/infrastructure/idempotency"
	"routeledger/internal/infrastructure/storage/memory"
	"routeledger/internal/infrastructure/storage/postgres"
	"routeledger/pkg/logger"
)

// App is the wired ledger.
type App struct {
	Config config.Config
	Log    *logger.Logger

	Shops      *shop.Directory
	Stock      *stock.Registry
	Deliveries *delivery.Ledger
	Reconciler *payment.Reconciler
	Settlement *settlement.Engine

	// Tokens is nil when authentication is disabled.
	Tokens      *auth.TokenService
	Idempotency idempotency.Store
	ReadyChecks map[string]handlers.Check

	closers []func()
}

// Options adjusts wiring per process.
type Options struct {
	// Authorizer gates settlement runs; nil requires the settlement scope.
	Authorizer settlement.Authorizer
}

type repos struct {
	txm         tx.Manager
	shops       shop.Repository
	stock       stock.Repository
	deliveries  delivery.Repository
	payments    payment.Repository
	settlements settlement.Repository
	fence       cycle.Fence
}

// New builds the ledger. Close releases what it opened, also on error.
func New(ctx context.Context, cfg config.Config, log *logger.Logger, opts Options) (a *App, err error) {
	if log == nil {
		log = logger.Default()
	}
	a = &App{Config: cfg, Log: log, ReadyChecks: make(map[string]handlers.Check)}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	r, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	var (
		viewCache payment.ViewCache
		locker    settlement.Locker = settlement.NoopLocker{}
	)
	if cfg.Redis.Enabled {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.ReadyChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		viewCache = cache.NewRedisViewCache(rdb, cfg.Redis.ViewTTL)
		locker = cache.NewRedisLocker(rdb, cfg.Settlement.LockTTL)
		a.Idempotency = idempotency.NewRedisStore(rdb, cfg.Server.IdempotencyTTL)
		log.Infow("redis enabled", "addr", cfg.Redis.Addr)
	} else {
		viewCache = cache.NewMemoryViewCache(cfg.Redis.ViewTTL)
		a.Idempotency = idempotency.NewMemoryStore(cfg.Server.IdempotencyTTL)
	}

	if cfg.Auth.JWTSecret != "" {
		a.Tokens = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	}

	gate := cycle.NewSharedGate(r.fence, cfg.Settlement.FenceTTL)
	a.Stock = stock.NewRegistry(r.stock, r.txm)
	a.Shops = shop.NewDirectory(shop.DirectoryConfig{
		Repo:         r.shops,
		TxManager:    r.txm,
		Gate:         gate,
		DefaultRoute: cfg.Ledger.DefaultRoute,
	})
	a.Deliveries = delivery.NewLedger(delivery.LedgerConfig{
		Repo:  r.deliveries,
		Shops: r.shops,
		Stock: a.Stock,
		Gate:  gate,
	})
	a.Reconciler = payment.NewReconciler(payment.ReconcilerConfig{
		Repo:             r.payments,
		Deliveries:       r.deliveries,
		Shops:            r.shops,
		TxManager:        r.txm,
		Gate:             gate,
		Cache:            viewCache,
		AllowOverpayment: cfg.Ledger.AllowOverpayment,
	})
	a.Settlement = settlement.NewEngine(settlement.EngineConfig{
		Repo:       r.settlements,
		Shops:      r.shops,
		Deliveries: r.deliveries,
		Payments:   r.payments,
		TxManager:  r.txm,
		Gate:       gate,
		Authorizer: opts.Authorizer,
		Locker:     locker,
		LockKey:    cfg.Settlement.LockKey,
	})

	a.registerHooks()
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (repos, error) {
	cfg := a.Config.Storage
	switch cfg.Driver {
	case "postgres":
		poolCfg := postgres.DefaultPoolConfig(cfg.DSN)
		poolCfg.MaxConns = cfg.MaxConns
		poolCfg.MinConns = cfg.MinConns
		pool, err := postgres.NewPool(ctx, poolCfg)
		if err != nil {
			return repos{}, err
		}
		a.closers = append(a.closers, pool.Close)
		a.ReadyChecks["database"] = pool.Ping

		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				return repos{}, err
			}
		}
		store, err := postgres.NewStore(pool)
		if err != nil {
			return repos{}, err
		}
		a.closers = append(a.closers, store.Close)
		return repos{
			txm:         store,
			shops:       store.Shops(),
			stock:       store.Stock(),
			deliveries:  store.Deliveries(),
			payments:    store.Payments(),
			settlements: store.Settlements(),
			fence:       store.Fence(),
		}, nil

	case "memory", "":
		store := memory.New()
		if cfg.SnapshotPath != "" {
			opened, err := memory.Open(cfg.SnapshotPath)
			if err != nil {
				return repos{}, err
			}
			store = opened
		}
		a.closers = append(a.closers, store.Close)
		a.Log.Infow("memory store opened", "snapshot", cfg.SnapshotPath)
		return repos{
			txm:         store,
			shops:       store.Shops(),
			stock:       store.Stock(),
			deliveries:  store.Deliveries(),
			payments:    store.Payments(),
			settlements: store.Settlements(),
			fence:       store.Fence(),
		}, nil
	}
	return repos{}, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// registerHooks drops the cached collection view whenever a change that
// feeds it is committed outside the reconciler.
func (a *App) registerHooks() {
	a.Shops.Hooks().OnAny(invalidate[*shop.Shop](a.Reconciler),
		domain.AfterCreate, domain.AfterUpdate, domain.AfterDelete)
	a.Deliveries.Hooks().OnAny(invalidate[*delivery.Delivery](a.Reconciler),
		domain.AfterCreate, domain.AfterDelete, domain.AfterRestore)
	a.Settlement.Hooks().On(domain.AfterSettle, func(ctx context.Context, arc *settlement.Archive) error {
		a.Reconciler.InvalidateView(ctx)
		a.Log.WithContext(ctx).Infow("settlement archived",
			"archive_id", arc.ID, "sequence", arc.Sequence, "deliveries", arc.Summary.Deliveries)
		return nil
	})
}

func invalidate[T any](r *payment.Reconciler) domain.Hook[T] {
	return func(ctx context.Context, _ T) error {
		r.InvalidateView(ctx)
		return nil
	}
}

// Start resolves settlements interrupted by a crash. Call it once before
// serving commands.
func (a *App) Start(ctx context.Context) error {
	n, err := a.Settlement.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover settlements: %w", err)
	}
	if n > 0 {
		a.Log.Warnw("resolved interrupted settlements", "count", n)
	}
	return nil
}

// Close releases storage and cache connections in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
