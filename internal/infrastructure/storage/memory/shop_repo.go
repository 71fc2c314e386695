package memory

import (
	"context"
	"slices"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/domain/shop"
)

var _ shop.Repository = (*ShopRepo)(nil)

// ShopRepo implements shop.Repository.
type ShopRepo struct {
	s *Store
}

func (r *ShopRepo) Create(ctx context.Context, sh *shop.Shop) error {
	return r.s.write(ctx, "shop.create", func(d *dataset) error {
		for _, existing := range d.Shops {
			if existing.Active && existing.Name == sh.Name {
				return apperror.NewDuplicate("shop", "name", sh.Name)
			}
		}
		d.ShopSeq++
		sh.Seq = d.ShopSeq
		d.Shops[sh.ID] = sh.Clone()
		return nil
	})
}

func (r *ShopRepo) Get(ctx context.Context, shopID id.ID) (*shop.Shop, error) {
	sh, ok := r.s.read(ctx).Shops[shopID]
	if !ok {
		return nil, apperror.NewNotFound("shop", shopID.String())
	}
	return sh.Clone(), nil
}

func (r *ShopRepo) Update(ctx context.Context, sh *shop.Shop) error {
	return r.s.write(ctx, "shop.update", func(d *dataset) error {
		stored, ok := d.Shops[sh.ID]
		if !ok {
			return apperror.NewNotFound("shop", sh.ID.String())
		}
		if stored.Version != sh.Version-1 {
			return apperror.NewConcurrentModification("shop", sh.ID.String())
		}
		next := sh.Clone()
		next.Delivered = stored.Delivered
		next.Seq = stored.Seq
		d.Shops[sh.ID] = next
		return nil
	})
}

func (r *ShopRepo) FindActiveByName(ctx context.Context, name string) (*shop.Shop, error) {
	for _, sh := range r.s.read(ctx).Shops {
		if sh.Active && sh.Name == name {
			return sh.Clone(), nil
		}
	}
	return nil, apperror.NewNotFound("shop", name)
}

func (r *ShopRepo) ListPage(ctx context.Context, afterSeq int64, limit int) ([]*shop.Shop, error) {
	var out []*shop.Shop
	for _, sh := range r.s.read(ctx).Shops {
		if sh.Seq > afterSeq {
			out = append(out, sh)
		}
	}
	slices.SortFunc(out, func(a, b *shop.Shop) int { return int(a.Seq - b.Seq) })
	out = page(out, 0, limit)
	for i, sh := range out {
		out[i] = sh.Clone()
	}
	return out, nil
}

func (r *ShopRepo) SetDelivered(ctx context.Context, shopID id.ID, delivered bool) error {
	return r.s.write(ctx, "shop.set_delivered", func(d *dataset) error {
		stored, ok := d.Shops[shopID]
		if !ok {
			return apperror.NewNotFound("shop", shopID.String())
		}
		next := stored.Clone()
		next.Delivered = delivered
		d.Shops[shopID] = next
		return nil
	})
}
