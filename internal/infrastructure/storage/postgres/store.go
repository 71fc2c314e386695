package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/infrastructure/storage/codec"
)

const codeUniqueViolation = "23505"

// Store bundles the transaction manager and the repositories over one pool.
type Store struct {
	*TxManager
	codec *codec.Codec
}

// NewStore creates a store over pool.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	c, err := codec.New()
	if err != nil {
		return nil, err
	}
	return &Store{TxManager: NewTxManager(pool), codec: c}, nil
}

// Close releases the archive codec. The pool is owned by the caller.
func (s *Store) Close() { s.codec.Close() }

func (s *Store) Shops() *ShopRepo             { return &ShopRepo{txm: s.TxManager} }
func (s *Store) Stock() *StockRepo            { return &StockRepo{txm: s.TxManager} }
func (s *Store) Deliveries() *DeliveryRepo    { return &DeliveryRepo{txm: s.TxManager} }
func (s *Store) Payments() *PaymentRepo       { return &PaymentRepo{txm: s.TxManager} }
func (s *Store) Settlements() *SettlementRepo { return &SettlementRepo{txm: s.TxManager, codec: s.codec} }

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func isUniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr, true
	}
	return nil, false
}

// exec builds and runs a statement.
func exec(ctx context.Context, q Querier, b squirrel.Sqlizer, what string) (int64, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s: %w", what, err)
	}
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", what, err)
	}
	return tag.RowsAffected(), nil
}

// get scans one row into dst, mapping no rows to NOT_FOUND for entity.
func get(ctx context.Context, q Querier, dst any, b squirrel.Sqlizer, entity string, key any) error {
	sql, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", entity, err)
	}
	if err := pgxscan.Get(ctx, q, dst, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return apperror.NewNotFound(entity, key)
		}
		return fmt.Errorf("get %s: %w", entity, err)
	}
	return nil
}

func selectAll(ctx context.Context, q Querier, dst any, b squirrel.Sqlizer, entity string) error {
	sql, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", entity, err)
	}
	if err := pgxscan.Select(ctx, q, dst, sql, args...); err != nil {
		return fmt.Errorf("list %s: %w", entity, err)
	}
	return nil
}

// versioned returns the optimistic-lock error when an update matched no row.
func versioned(affected int64, entity string, key id.ID) error {
	if affected == 0 {
		return apperror.NewConcurrentModification(entity, key.String())
	}
	return nil
}
