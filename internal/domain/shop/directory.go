package shop

import (
	"context"
	"fmt"
	"iter"
	"time"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/tx"
	"routeledger/internal/domain"
	"routeledger/internal/domain/cycle"
	"routeledger/pkg/logger"
)

const listPageSize = 100

// Directory registers, lists and removes shops.
type Directory struct {
	repo         Repository
	txm          tx.Manager
	gate         *cycle.Gate
	defaultRoute string
	hooks        *domain.HookRegistry[*Shop]
	now          func() time.Time
}

// DirectoryConfig configures the directory.
type DirectoryConfig struct {
	Repo         Repository
	TxManager    tx.Manager
	Gate         *cycle.Gate
	DefaultRoute string
}

// NewDirectory creates a shop directory.
func NewDirectory(cfg DirectoryConfig) *Directory {
	route := cfg.DefaultRoute
	if route == "" {
		route = DefaultRoute
	}
	return &Directory{
		repo:         cfg.Repo,
		txm:          cfg.TxManager,
		gate:         cfg.Gate,
		defaultRoute: route,
		hooks:        domain.NewHookRegistry[*Shop](),
		now:          time.Now,
	}
}

// Hooks returns the hook registry for external registration.
func (d *Directory) Hooks() *domain.HookRegistry[*Shop] {
	return d.hooks
}

// Register adds a shop. Names are unique among active shops, compared exactly.
func (d *Directory) Register(ctx context.Context, name, route string) (*Shop, error) {
	leave, err := d.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if route == "" {
		route = d.defaultRoute
	}
	s, err := New(name, route, d.now())
	if err != nil {
		return nil, err
	}

	err = d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := d.gate.Admit(ctx); err != nil {
			return err
		}
		existing, err := d.repo.FindActiveByName(ctx, name)
		if err != nil && !apperror.IsNotFound(err) {
			return fmt.Errorf("find shop by name: %w", err)
		}
		if existing != nil {
			return apperror.NewDuplicateShopName(name)
		}
		if err := d.repo.Create(ctx, s); err != nil {
			if apperror.Is(err, apperror.CodeDuplicate) {
				return apperror.NewDuplicateShopName(name)
			}
			return fmt.Errorf("create shop: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "shop registered", "shop_id", s.ID, "name", s.Name, "route", s.Route)
	d.hooks.Run(ctx, domain.AfterCreate, s)
	return s, nil
}

// Get returns a shop by id, active or removed.
func (d *Directory) Get(ctx context.Context, shopID id.ID) (*Shop, error) {
	return d.repo.Get(ctx, shopID)
}

// Remove deactivates a shop. Its ledger history stays and the name becomes reusable.
func (d *Directory) Remove(ctx context.Context, shopID id.ID) (*Shop, error) {
	leave, err := d.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	var removed *Shop
	err = d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := d.gate.Admit(ctx); err != nil {
			return err
		}
		s, err := d.repo.Get(ctx, shopID)
		if err != nil {
			return err
		}
		if err := s.Deactivate(d.now()); err != nil {
			return err
		}
		if err := d.repo.Update(ctx, s); err != nil {
			return fmt.Errorf("update shop: %w", err)
		}
		removed = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "shop removed", "shop_id", shopID)
	d.hooks.Run(ctx, domain.AfterDelete, removed)
	return removed, nil
}

// SetRoute moves an active shop to another route.
func (d *Directory) SetRoute(ctx context.Context, shopID id.ID, route string) (*Shop, error) {
	if route == "" {
		return nil, apperror.NewValidation("route is required").WithDetail("field", "route")
	}
	leave, err := d.gate.Enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	var updated *Shop
	err = d.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := d.gate.Admit(ctx); err != nil {
			return err
		}
		s, err := d.repo.Get(ctx, shopID)
		if err != nil {
			return err
		}
		if !s.Active {
			return apperror.NewShopInactive(shopID.String())
		}
		s.Route = route
		s.touch()
		updated = s
		return d.repo.Update(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	d.hooks.Run(ctx, domain.AfterUpdate, updated)
	return updated, nil
}

// Shops yields every shop, removed ones included, in registration order.
func (d *Directory) Shops(ctx context.Context) iter.Seq2[*Shop, error] {
	return Iterate(ctx, d.repo)
}

// List collects Shops, keeping only active shops unless includeRemoved.
func (d *Directory) List(ctx context.Context, includeRemoved bool) ([]*Shop, error) {
	var out []*Shop
	for s, err := range d.Shops(ctx) {
		if err != nil {
			return nil, err
		}
		if s.Active || includeRemoved {
			out = append(out, s)
		}
	}
	return out, nil
}

// Iterate yields every shop of repo in registration order.
// The sequence is lazy: pages are fetched as the caller ranges over it,
// and each range over it starts again from the first shop.
func Iterate(ctx context.Context, repo Repository) iter.Seq2[*Shop, error] {
	return func(yield func(*Shop, error) bool) {
		var after int64
		for {
			page, err := repo.ListPage(ctx, after, listPageSize)
			if err != nil {
				yield(nil, fmt.Errorf("list shops: %w", err))
				return
			}
			for _, s := range page {
				if !yield(s, nil) {
					return
				}
				after = s.Seq
			}
			if len(page) < listPageSize {
				return
			}
		}
	}
}

// Collect drains Iterate.
func Collect(ctx context.Context, repo Repository) ([]*Shop, error) {
	var out []*Shop
	for s, err := range Iterate(ctx, repo) {
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
