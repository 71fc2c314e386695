package postgres

import (
	"context"

	"github.com/Masterminds/squirrel"

	"routeledger/internal/core/id"
	"routeledger/internal/domain/payment"
)

var _ payment.Repository = (*PaymentRepo)(nil)

var (
	paymentColumns = []string{"id", "shop_id", "amount", "source", "business_date", "note", "created_at", "archive_id"}
	pendingColumns = []string{"id", "shop_id", "amount", "business_date", "note", "created_at", "archive_id"}
)

// PaymentRepo implements payment.Repository.
type PaymentRepo struct {
	txm *TxManager
}

func (r *PaymentRepo) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := exec(ctx, r.txm.GetQuerier(ctx),
		builder().Insert("payments").Columns(paymentColumns...).
			Values(p.ID, p.ShopID, p.Amount, string(p.Source), p.Date, p.Note, p.CreatedAt, p.ArchiveID),
		"insert payment")
	return err
}

func (r *PaymentRepo) CreatePending(ctx context.Context, e *payment.PendingEntry) error {
	_, err := exec(ctx, r.txm.GetQuerier(ctx),
		builder().Insert("pending_entries").Columns(pendingColumns...).
			Values(e.ID, e.ShopID, e.Amount, e.Date, e.Note, e.CreatedAt, e.ArchiveID),
		"insert pending entry")
	return err
}

func (r *PaymentRepo) ListPayments(ctx context.Context, f payment.Filter) ([]*payment.Payment, error) {
	var out []*payment.Payment
	q := paymentFilter(builder().Select(paymentColumns...).From("payments"), f)
	if err := selectAll(ctx, r.txm.GetQuerier(ctx), &out, q, "payments"); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PaymentRepo) ListPending(ctx context.Context, f payment.Filter) ([]*payment.PendingEntry, error) {
	var out []*payment.PendingEntry
	q := paymentFilter(builder().Select(pendingColumns...).From("pending_entries"), f)
	if err := selectAll(ctx, r.txm.GetQuerier(ctx), &out, q, "pending entries"); err != nil {
		return nil, err
	}
	return out, nil
}

func paymentFilter(q squirrel.SelectBuilder, f payment.Filter) squirrel.SelectBuilder {
	if f.ShopID != nil {
		q = q.Where(squirrel.Eq{"shop_id": *f.ShopID})
	}
	if f.OpenOnly {
		q = q.Where(squirrel.Eq{"archive_id": nil})
	}
	if f.ArchiveID != nil {
		q = q.Where(squirrel.Eq{"archive_id": *f.ArchiveID})
	}
	return q.OrderBy("created_at", "id")
}

func (r *PaymentRepo) ClosePayments(ctx context.Context, ids []id.ID, archiveID id.ID) error {
	return closeOpen(ctx, r.txm.GetQuerier(ctx), "payments", "payment", ids, archiveID)
}

func (r *PaymentRepo) ClosePending(ctx context.Context, ids []id.ID, archiveID id.ID) error {
	return closeOpen(ctx, r.txm.GetQuerier(ctx), "pending_entries", "pending entry", ids, archiveID)
}

// closeOpen stamps archiveID on open rows. A row that was already closed makes
// the count come up short, which fails the whole settlement.
func closeOpen(ctx context.Context, q Querier, table, entity string, ids []id.ID, archiveID id.ID) error {
	if len(ids) == 0 {
		return nil
	}
	n, err := exec(ctx, q,
		builder().Update(table).
			Set("archive_id", archiveID).
			Where(squirrel.Eq{"id": ids, "archive_id": nil}),
		"close "+table)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return versioned(0, entity, archiveID)
	}
	return nil
}
