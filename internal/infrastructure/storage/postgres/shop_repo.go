package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/domain/shop"
)

var _ shop.Repository = (*ShopRepo)(nil)

var shopColumns = []string{
	"id", "seq", "name", "route", "active", "delivered", "pay_tomorrow", "pay_tomorrow_note",
	"opening_balance", "registered_at", "removed_at", "version",
}

// ShopRepo implements shop.Repository.
type ShopRepo struct {
	txm *TxManager
}

func (r *ShopRepo) Create(ctx context.Context, s *shop.Shop) error {
	sql, args, err := builder().Insert("shops").
		SetMap(map[string]any{
			"id":                s.ID,
			"name":              s.Name,
			"route":             s.Route,
			"active":            s.Active,
			"delivered":         s.Delivered,
			"pay_tomorrow":      s.PayTomorrow,
			"pay_tomorrow_note": s.PayTomorrowNote,
			"opening_balance":   s.OpeningBalance,
			"registered_at":     s.RegisteredAt,
			"removed_at":        s.RemovedAt,
			"version":           s.Version,
		}).
		Suffix("RETURNING seq").
		ToSql()
	if err != nil {
		return err
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&s.Seq); err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return apperror.NewDuplicate("shop", "name", s.Name)
		}
		return err
	}
	return nil
}

func (r *ShopRepo) Get(ctx context.Context, shopID id.ID) (*shop.Shop, error) {
	s := &shop.Shop{}
	q := builder().Select(shopColumns...).From("shops").Where(squirrel.Eq{"id": shopID})
	if err := get(ctx, r.txm.GetQuerier(ctx), s, q, "shop", shopID.String()); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ShopRepo) Update(ctx context.Context, s *shop.Shop) error {
	n, err := exec(ctx, r.txm.GetQuerier(ctx), shopUpdate(s), "update shop")
	if err != nil {
		if _, ok := isUniqueViolation(err); ok {
			return apperror.NewDuplicate("shop", "name", s.Name)
		}
		return err
	}
	return versioned(n, "shop", s.ID)
}

// shopUpdate writes every mutable column except delivered.
func shopUpdate(s *shop.Shop) squirrel.UpdateBuilder {
	return builder().Update("shops").
		Set("name", s.Name).
		Set("route", s.Route).
		Set("active", s.Active).
		Set("pay_tomorrow", s.PayTomorrow).
		Set("pay_tomorrow_note", s.PayTomorrowNote).
		Set("opening_balance", s.OpeningBalance).
		Set("removed_at", s.RemovedAt).
		Set("version", s.Version).
		Where(squirrel.Eq{"id": s.ID, "version": s.Version - 1})
}

func (r *ShopRepo) FindActiveByName(ctx context.Context, name string) (*shop.Shop, error) {
	s := &shop.Shop{}
	q := builder().Select(shopColumns...).From("shops").
		Where(squirrel.Eq{"name": name, "active": true})
	if err := get(ctx, r.txm.GetQuerier(ctx), s, q, "shop", name); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *ShopRepo) ListPage(ctx context.Context, afterSeq int64, limit int) ([]*shop.Shop, error) {
	var out []*shop.Shop
	q := builder().Select(shopColumns...).From("shops").
		Where(squirrel.Gt{"seq": afterSeq}).
		OrderBy("seq").
		Limit(uint64(limit))
	if err := selectAll(ctx, r.txm.GetQuerier(ctx), &out, q, "shops"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ShopRepo) SetDelivered(ctx context.Context, shopID id.ID, delivered bool) error {
	n, err := exec(ctx, r.txm.GetQuerier(ctx),
		builder().Update("shops").Set("delivered", delivered).Where(squirrel.Eq{"id": shopID}),
		"set delivered")
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("shop", shopID.String())
	}
	return nil
}
