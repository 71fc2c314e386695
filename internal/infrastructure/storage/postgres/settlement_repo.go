package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/settlement"
	"routeledger/internal/infrastructure/storage/codec"
)

var _ settlement.Repository = (*SettlementRepo)(nil)

var intentColumns = []string{"id", "business_date", "archive_id", "status", "error", "created_at", "resolved_at"}

// SettlementRepo implements settlement.Repository. An archive is stored as a
// compressed JSON payload next to its date and sequence.
type SettlementRepo struct {
	txm   *TxManager
	codec *codec.Codec
}

type archiveRow struct {
	Payload []byte `db:"payload"`
}

func (r *SettlementRepo) CreateArchive(ctx context.Context, a *settlement.Archive) error {
	payload, err := r.codec.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode archive: %w", err)
	}
	_, err = exec(ctx, r.txm.GetQuerier(ctx),
		builder().Insert("archives").
			Columns("id", "business_date", "sequence", "archived_at", "payload").
			Values(a.ID, a.Date, a.Sequence, a.ArchivedAt, payload),
		"insert archive")
	if _, ok := isUniqueViolation(err); ok {
		return apperror.NewDuplicate("archive", "sequence", types.FormatDay(a.Date))
	}
	return err
}

func (r *SettlementRepo) GetArchive(ctx context.Context, archiveID id.ID) (*settlement.Archive, error) {
	row := archiveRow{}
	q := builder().Select("payload").From("archives").Where(squirrel.Eq{"id": archiveID})
	if err := get(ctx, r.txm.GetQuerier(ctx), &row, q, "archive", archiveID.String()); err != nil {
		return nil, err
	}
	return r.decode(row.Payload)
}

func (r *SettlementRepo) ListArchives(ctx context.Context, from, to time.Time) ([]*settlement.Archive, error) {
	var rows []archiveRow
	if err := selectAll(ctx, r.txm.GetQuerier(ctx), &rows, archiveList(from, to), "archives"); err != nil {
		return nil, err
	}
	out := make([]*settlement.Archive, 0, len(rows))
	for _, row := range rows {
		a, err := r.decode(row.Payload)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func archiveList(from, to time.Time) squirrel.SelectBuilder {
	q := builder().Select("payload").From("archives")
	if !from.IsZero() {
		q = q.Where(squirrel.GtOrEq{"business_date": types.Day(from)})
	}
	if !to.IsZero() {
		q = q.Where(squirrel.LtOrEq{"business_date": types.Day(to)})
	}
	return q.OrderBy("business_date", "sequence")
}

func (r *SettlementRepo) decode(payload []byte) (*settlement.Archive, error) {
	a := &settlement.Archive{}
	if err := r.codec.Unmarshal(payload, a); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	return a, nil
}

func (r *SettlementRepo) CreateIntent(ctx context.Context, i *settlement.Intent) error {
	_, err := exec(ctx, r.txm.GetQuerier(ctx),
		builder().Insert("settlement_intents").Columns(intentColumns...).
			Values(i.ID, i.Date, i.ArchiveID, string(i.Status), i.Error, i.CreatedAt, i.ResolvedAt),
		"insert settlement intent")
	return err
}

func (r *SettlementRepo) UpdateIntent(ctx context.Context, i *settlement.Intent) error {
	n, err := exec(ctx, r.txm.GetQuerier(ctx),
		builder().Update("settlement_intents").
			Set("status", string(i.Status)).
			Set("error", i.Error).
			Set("resolved_at", i.ResolvedAt).
			Where(squirrel.Eq{"id": i.ID}),
		"update settlement intent")
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewNotFound("settlement intent", i.ID.String())
	}
	return nil
}

func (r *SettlementRepo) ListIntents(ctx context.Context, status settlement.IntentStatus) ([]*settlement.Intent, error) {
	var out []*settlement.Intent
	sql, args, err := builder().Select(intentColumns...).From("settlement_intents").
		Where(squirrel.Eq{"status": string(status)}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("list settlement intents: %w", err)
	}
	return out, nil
}
