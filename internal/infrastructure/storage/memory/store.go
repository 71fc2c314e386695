// Package memory is an in-process transactional store for the ledger.
//
// A write transaction works on a copy of the committed dataset and swaps it in
// on commit, so a failed transaction leaves nothing behind and readers never
// see a half-applied change. With a snapshot path every commit is also written
// to disk (zstd-compressed JSON, atomic rename) before it becomes visible.
//
// Each commit re-encodes the whole dataset, and the movement journal and the
// archives only grow, so commit cost grows linearly with ledger history. This
// store suits a single office with months of history. Larger ledgers, and any
// deployment with more than one process, use the postgres store. A snapshot
// file has exactly one writer: the process that opened it.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"routeledger/internal/core/id"
	"routeledger/internal/core/tx"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/settlement"
	"routeledger/internal/domain/shop"
	"routeledger/internal/domain/stock"
)

var _ tx.Manager = (*Store)(nil)

// dataset is the whole ledger state. Entity pointers are shared between
// versions of the dataset and never mutated: repositories store and return copies.
type dataset struct {
	ShopSeq    int64                           `json:"shopSeq"`
	Shops      map[id.ID]*shop.Shop            `json:"shops"`
	Products   map[id.ID]*stock.Product        `json:"products"`
	Movements  []stock.Movement                `json:"movements"`
	Deliveries map[id.ID]*delivery.Delivery    `json:"deliveries"`
	Payments   map[id.ID]*payment.Payment      `json:"payments"`
	Pending    map[id.ID]*payment.PendingEntry `json:"pending"`
	Archives   map[id.ID]*settlement.Archive   `json:"archives"`
	Intents    map[id.ID]*settlement.Intent    `json:"intents"`
	Fence      fenceFlag                       `json:"fence"`
}

func newDataset() *dataset {
	return &dataset{
		Shops:      make(map[id.ID]*shop.Shop),
		Products:   make(map[id.ID]*stock.Product),
		Deliveries: make(map[id.ID]*delivery.Delivery),
		Payments:   make(map[id.ID]*payment.Payment),
		Pending:    make(map[id.ID]*payment.PendingEntry),
		Archives:   make(map[id.ID]*settlement.Archive),
		Intents:    make(map[id.ID]*settlement.Intent),
	}
}

func (d *dataset) clone() *dataset {
	return &dataset{
		ShopSeq:    d.ShopSeq,
		Shops:      maps.Clone(d.Shops),
		Products:   maps.Clone(d.Products),
		Movements:  slices.Clip(d.Movements),
		Deliveries: maps.Clone(d.Deliveries),
		Payments:   maps.Clone(d.Payments),
		Pending:    maps.Clone(d.Pending),
		Archives:   maps.Clone(d.Archives),
		Intents:    maps.Clone(d.Intents),
		Fence:      d.Fence,
	}
}

// fill replaces nil maps after decoding an older or empty snapshot.
func (d *dataset) fill() {
	fresh := newDataset()
	if d.Shops == nil {
		d.Shops = fresh.Shops
	}
	if d.Products == nil {
		d.Products = fresh.Products
	}
	if d.Deliveries == nil {
		d.Deliveries = fresh.Deliveries
	}
	if d.Payments == nil {
		d.Payments = fresh.Payments
	}
	if d.Pending == nil {
		d.Pending = fresh.Pending
	}
	if d.Archives == nil {
		d.Archives = fresh.Archives
	}
	if d.Intents == nil {
		d.Intents = fresh.Intents
	}
}

// Store owns the committed dataset. Write transactions are serialized.
type Store struct {
	writeMu sync.Mutex

	mu        sync.RWMutex
	committed *dataset

	snapshot *snapshotFile

	failMu     sync.Mutex
	failpoints map[string]error
}

// New creates an empty volatile store.
func New() *Store {
	return &Store{
		committed:  newDataset(),
		failpoints: make(map[string]error),
	}
}

// Open creates a store persisted at path, loading the last snapshot if present.
func Open(path string) (*Store, error) {
	f, err := newSnapshotFile(path)
	if err != nil {
		return nil, err
	}
	data, err := f.load()
	if err != nil {
		f.close()
		return nil, err
	}
	s := New()
	s.committed = data
	s.snapshot = f
	return s, nil
}

// Close releases the snapshot codec.
func (s *Store) Close() {
	if s.snapshot != nil {
		s.snapshot.close()
	}
}

type txKey struct{}

type txState struct {
	data *dataset
}

// RunInTransaction runs fn against a private copy of the dataset and publishes
// the copy only if fn succeeds. Nested calls reuse the outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	staged := s.committed.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, &txState{data: staged})); err != nil {
		return err
	}
	if err := s.fail("commit"); err != nil {
		return err
	}
	if s.snapshot != nil {
		if err := s.snapshot.save(staged); err != nil {
			return fmt.Errorf("persist snapshot: %w", err)
		}
	}

	s.mu.Lock()
	s.committed = staged
	s.mu.Unlock()
	return nil
}

// read returns the dataset visible to ctx: the transaction copy or the committed one.
func (s *Store) read(ctx context.Context) *dataset {
	if t, ok := ctx.Value(txKey{}).(*txState); ok {
		return t.data
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// write runs fn against the transaction copy, opening a transaction when ctx has none.
func (s *Store) write(ctx context.Context, op string, fn func(d *dataset) error) error {
	if err := s.fail(op); err != nil {
		return err
	}
	if t, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(t.data)
	}
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*txState).data)
	})
}

// Inject makes the named operation fail with err until cleared.
// Operations are "<entity>.<verb>" (e.g. "archive.create", "shop.update") or "commit".
func (s *Store) Inject(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.failpoints[op] = err
}

// ClearFailpoints removes every injected failure.
func (s *Store) ClearFailpoints() {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	clear(s.failpoints)
}

func (s *Store) fail(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failpoints[op]
}

// Shops returns the shop repository.
func (s *Store) Shops() *ShopRepo { return &ShopRepo{s: s} }

// Stock returns the product and movement repository.
func (s *Store) Stock() *StockRepo { return &StockRepo{s: s} }

// Deliveries returns the delivery repository.
func (s *Store) Deliveries() *DeliveryRepo { return &DeliveryRepo{s: s} }

// Payments returns the payment and pending entry repository.
func (s *Store) Payments() *PaymentRepo { return &PaymentRepo{s: s} }

// Settlements returns the archive and intent repository.
func (s *Store) Settlements() *SettlementRepo { return &SettlementRepo{s: s} }

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
