package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/delivery"
)

var _ delivery.Repository = (*DeliveryRepo)(nil)

var (
	deliveryColumns = []string{
		"id", "shop_id", "business_date", "notes", "total", "state",
		"created_at", "deleted_at", "restored_at", "archived_at", "archive_id", "version",
	}
	lineColumns = []string{"line_no", "product_id", "product_name", "quantity", "unit_price", "amount"}
)

// DeliveryRepo implements delivery.Repository. Lines live in delivery_lines.
type DeliveryRepo struct {
	txm *TxManager
}

type lineRow struct {
	DeliveryID id.ID `db:"delivery_id"`
	delivery.Line
}

func (r *DeliveryRepo) Create(ctx context.Context, d *delivery.Delivery) error {
	q := r.txm.GetQuerier(ctx)
	_, err := exec(ctx, q,
		builder().Insert("deliveries").Columns(deliveryColumns...).
			Values(d.ID, d.ShopID, d.Date, d.Notes, d.Total, string(d.State),
				d.CreatedAt, d.DeletedAt, d.RestoredAt, d.ArchivedAt, d.ArchiveID, d.Version),
		"insert delivery")
	if err != nil {
		return err
	}
	if len(d.Lines) == 0 {
		return nil
	}
	lines := builder().Insert("delivery_lines").Columns(append([]string{"delivery_id"}, lineColumns...)...)
	for _, l := range d.Lines {
		lines = lines.Values(d.ID, l.LineNo, l.ProductID, l.ProductName, l.Quantity.Int64Scaled(), l.UnitPrice, l.Amount)
	}
	_, err = exec(ctx, q, lines, "insert delivery lines")
	return err
}

func (r *DeliveryRepo) Get(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	return r.get(ctx, deliveryID, "")
}

// GetForUpdate locks the delivery row until the transaction ends.
func (r *DeliveryRepo) GetForUpdate(ctx context.Context, deliveryID id.ID) (*delivery.Delivery, error) {
	return r.get(ctx, deliveryID, "FOR UPDATE")
}

func (r *DeliveryRepo) get(ctx context.Context, deliveryID id.ID, lock string) (*delivery.Delivery, error) {
	d := &delivery.Delivery{}
	q := builder().Select(deliveryColumns...).From("deliveries").Where(squirrel.Eq{"id": deliveryID})
	if lock != "" {
		q = q.Suffix(lock)
	}
	if err := get(ctx, r.txm.GetQuerier(ctx), d, q, "delivery", deliveryID.String()); err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, []*delivery.Delivery{d}); err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DeliveryRepo) Update(ctx context.Context, d *delivery.Delivery) error {
	n, err := exec(ctx, r.txm.GetQuerier(ctx),
		builder().Update("deliveries").
			Set("state", string(d.State)).
			Set("deleted_at", d.DeletedAt).
			Set("restored_at", d.RestoredAt).
			Set("archived_at", d.ArchivedAt).
			Set("archive_id", d.ArchiveID).
			Set("version", d.Version).
			Where(squirrel.Eq{"id": d.ID, "version": d.Version - 1}),
		"update delivery")
	if err != nil {
		return err
	}
	return versioned(n, "delivery", d.ID)
}

func (r *DeliveryRepo) List(ctx context.Context, f delivery.Filter) ([]*delivery.Delivery, error) {
	var out []*delivery.Delivery
	if err := selectAll(ctx, r.txm.GetQuerier(ctx), &out, deliveryList(f), "deliveries"); err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func deliveryList(f delivery.Filter) squirrel.SelectBuilder {
	q := builder().Select(deliveryColumns...).From("deliveries")
	if f.ShopID != nil {
		q = q.Where(squirrel.Eq{"shop_id": *f.ShopID})
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, s := range f.States {
			states[i] = string(s)
		}
		q = q.Where(squirrel.Eq{"state": states})
	}
	if !f.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"business_date": types.Day(f.From)})
	}
	if !f.To.IsZero() {
		q = q.Where(squirrel.LtOrEq{"business_date": types.Day(f.To)})
	}
	q = q.OrderBy("business_date", "created_at", "id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	return q
}

func (r *DeliveryRepo) attachLines(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	byID := make(map[id.ID]*delivery.Delivery, len(ds))
	ids := make([]id.ID, len(ds))
	for i, d := range ds {
		byID[d.ID] = d
		ids[i] = d.ID
		d.Lines = nil
	}
	var rows []lineRow
	q := builder().Select(append([]string{"delivery_id"}, lineColumns...)...).From("delivery_lines").
		Where(squirrel.Eq{"delivery_id": ids}).
		OrderBy("delivery_id", "line_no")
	if err := selectAll(ctx, r.txm.GetQuerier(ctx), &rows, q, "delivery lines"); err != nil {
		return err
	}
	for _, row := range rows {
		d := byID[row.DeliveryID]
		d.Lines = append(d.Lines, row.Line)
	}
	return nil
}
