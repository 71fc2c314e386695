package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"routeledger/internal/domain/cycle"
)

var _ cycle.Fence = (*Fence)(nil)

const fenceRow = 1

// Fence keeps the settlement flag in the settlement_fence row.
//
// Commands read the row FOR SHARE inside their transaction and Raise updates
// it, so Raise waits for every command that already passed Check to commit,
// and commands starting after Raise commits see the flag.
type Fence struct {
	txm *TxManager
}

func (s *Store) Fence() *Fence { return &Fence{txm: s.TxManager} }

func fenceRaise(holder string, ttl time.Duration) squirrel.UpdateBuilder {
	return builder().Update("settlement_fence").
		Set("holder", holder).
		Set("expires_at", squirrel.Expr("now() + make_interval(secs => ?)", ttl.Seconds())).
		Where(squirrel.Eq{"id": fenceRow}).
		Where(squirrel.Or{
			squirrel.Eq{"holder": nil},
			squirrel.Eq{"holder": holder},
			squirrel.Expr("expires_at <= now()"),
		})
}

func fenceLower(holder string) squirrel.UpdateBuilder {
	return builder().Update("settlement_fence").
		Set("holder", nil).
		Set("expires_at", nil).
		Where(squirrel.Eq{"id": fenceRow, "holder": holder})
}

func fenceCheck() squirrel.SelectBuilder {
	return builder().Select("COALESCE(holder IS NOT NULL AND expires_at > now(), false) AS live").
		From("settlement_fence").
		Where(squirrel.Eq{"id": fenceRow}).
		Suffix("FOR SHARE")
}

func (f *Fence) Raise(ctx context.Context, holder string, ttl time.Duration) error {
	return f.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := exec(ctx, f.txm.GetQuerier(ctx), fenceRaise(holder, ttl), "raise settlement fence")
		if err != nil {
			return err
		}
		if n == 0 {
			return cycle.ErrFenceRaised
		}
		return nil
	})
}

func (f *Fence) Lower(ctx context.Context, holder string) error {
	_, err := exec(ctx, f.txm.GetQuerier(ctx), fenceLower(holder), "lower settlement fence")
	return err
}

func (f *Fence) Check(ctx context.Context) error {
	if f.txm.getTx(ctx) == nil {
		return fmt.Errorf("settlement fence checked outside a transaction")
	}
	sql, args, err := fenceCheck().ToSql()
	if err != nil {
		return fmt.Errorf("build settlement fence query: %w", err)
	}
	var live []bool
	if err := pgxscan.Select(ctx, f.txm.GetQuerier(ctx), &live, sql, args...); err != nil {
		return fmt.Errorf("check settlement fence: %w", err)
	}
	if len(live) > 0 && live[0] {
		return cycle.ErrFenceRaised
	}
	return nil
}
