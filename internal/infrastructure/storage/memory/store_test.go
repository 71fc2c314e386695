package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/cycle"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/settlement"
	"routeledger/internal/domain/shop"
)

func newShop(t *testing.T, name string) *shop.Shop {
	t.Helper()
	s, err := shop.New(name, "", time.Now())
	require.NoError(t, err)
	return s
}

func TestStore_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("boom")

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Shops().Create(ctx, newShop(t, "Kirana")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	page, err := s.Shops().ListPage(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestStore_TransactionSeesOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	sh := newShop(t, "Kirana")

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.Shops().Create(ctx, sh); err != nil {
			return err
		}
		got, err := s.Shops().Get(ctx, sh.ID)
		require.NoError(t, err)
		assert.Equal(t, "Kirana", got.Name)

		_, err = s.Shops().Get(context.Background(), sh.ID)
		assert.True(t, apperror.IsNotFound(err), "uncommitted shop must be invisible outside the transaction")
		return nil
	})
	require.NoError(t, err)

	_, err = s.Shops().Get(ctx, sh.ID)
	assert.NoError(t, err)
}

func TestStore_FailpointRollsBackWholeTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()
	injected := errors.New("disk full")
	s.Inject("archive.create", injected)

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.Shops().Create(ctx, newShop(t, "Kirana")); err != nil {
			return err
		}
		return s.Settlements().CreateArchive(ctx, &settlement.Archive{ID: id.New(), Date: types.Today(), Sequence: 1})
	})
	require.ErrorIs(t, err, injected)

	page, err := s.Shops().ListPage(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	s.ClearFailpoints()
	require.NoError(t, s.Settlements().CreateArchive(ctx, &settlement.Archive{ID: id.New(), Date: types.Today(), Sequence: 1}))
}

func TestStore_CommitFailpoint(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Inject("commit", errors.New("lost power"))

	err := s.Shops().Create(ctx, newShop(t, "Kirana"))
	require.Error(t, err)

	page, err := s.Shops().ListPage(ctx, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestStore_SnapshotSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.snap")

	s, err := Open(path)
	require.NoError(t, err)
	sh := newShop(t, "Kirana")
	require.NoError(t, s.Shops().Create(ctx, sh))
	p := &payment.Payment{
		ID:        id.New(),
		ShopID:    sh.ID,
		Amount:    types.MustMoney("150.50"),
		Source:    payment.SourceDelivery,
		Date:      types.Today(),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Payments().CreatePayment(ctx, p))
	s.Close()

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Shops().Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kirana", got.Name)
	assert.Equal(t, int64(1), got.Seq)

	payments, err := reopened.Payments().ListPayments(ctx, payment.Filter{ShopID: &sh.ID})
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, p.Amount.Equal(payments[0].Amount))
}

func TestShopRepo_UpdateChecksVersionAndKeepsDelivered(t *testing.T) {
	ctx := context.Background()
	s := New()
	sh := newShop(t, "Kirana")
	require.NoError(t, s.Shops().Create(ctx, sh))
	require.NoError(t, s.Shops().SetDelivered(ctx, sh.ID, true))

	stale, err := s.Shops().Get(ctx, sh.ID)
	require.NoError(t, err)
	stale.Delivered = false
	stale.DeferPayment("after lunch")
	require.NoError(t, s.Shops().Update(ctx, stale))

	got, err := s.Shops().Get(ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, got.Delivered)
	assert.True(t, got.PayTomorrow)

	a, err := s.Shops().Get(ctx, sh.ID)
	require.NoError(t, err)
	b := a.Clone()
	a.ClearDeferral()
	require.NoError(t, s.Shops().Update(ctx, a))
	b.DeferPayment("evening")
	err = s.Shops().Update(ctx, b)
	assert.True(t, apperror.Is(err, apperror.CodeConcurrentModification))
}

func TestDeliveryRepo_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := New()
	shopID := id.New()
	other := id.New()
	day, err := types.ParseDay("2026-03-10")
	require.NoError(t, err)

	mk := func(shopID id.ID, date time.Time, state delivery.State) *delivery.Delivery {
		d := &delivery.Delivery{
			ID:        id.New(),
			ShopID:    shopID,
			Date:      date,
			State:     state,
			Total:     types.Zero(),
			CreatedAt: time.Now().UTC(),
			Version:   1,
		}
		require.NoError(t, s.Deliveries().Create(ctx, d))
		return d
	}
	later := mk(shopID, day.AddDate(0, 0, 1), delivery.StateActive)
	first := mk(shopID, day, delivery.StateActive)
	mk(shopID, day, delivery.StateDeleted)
	mk(other, day, delivery.StateActive)

	got, err := s.Deliveries().List(ctx, delivery.Filter{ShopID: &shopID, States: []delivery.State{delivery.StateActive}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, later.ID, got[1].ID)

	got, err = s.Deliveries().List(ctx, delivery.Filter{From: day, To: day})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestPaymentRepo_CloseStampsArchive(t *testing.T) {
	ctx := context.Background()
	s := New()
	shopID := id.New()
	p := &payment.Payment{ID: id.New(), ShopID: shopID, Amount: types.MustMoney("10"), Source: payment.SourceManual, CreatedAt: time.Now()}
	require.NoError(t, s.Payments().CreatePayment(ctx, p))

	archiveID := id.New()
	require.NoError(t, s.Payments().ClosePayments(ctx, []id.ID{p.ID}, archiveID))

	open, err := s.Payments().ListPayments(ctx, payment.Filter{ShopID: &shopID, OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, err := s.Payments().ListPayments(ctx, payment.Filter{ArchiveID: &archiveID})
	require.NoError(t, err)
	require.Len(t, closed, 1)

	err = s.Payments().ClosePayments(ctx, []id.ID{p.ID}, id.New())
	assert.True(t, apperror.Is(err, apperror.CodeConcurrentModification))
}

func TestFence_RaiseCheckLower(t *testing.T) {
	ctx := context.Background()
	s := New()
	fence := s.Fence()

	inTx := func() error {
		return s.RunInTransaction(ctx, func(ctx context.Context) error { return fence.Check(ctx) })
	}
	require.NoError(t, inTx())

	require.NoError(t, fence.Raise(ctx, "worker", time.Minute))
	assert.ErrorIs(t, inTx(), cycle.ErrFenceRaised)
	assert.ErrorIs(t, fence.Raise(ctx, "server", time.Minute), cycle.ErrFenceRaised)

	// only the holder lowers it
	require.NoError(t, fence.Lower(ctx, "server"))
	assert.ErrorIs(t, inTx(), cycle.ErrFenceRaised)
	require.NoError(t, fence.Lower(ctx, "worker"))
	assert.NoError(t, inTx())
}

func TestFence_LapsesAfterTTL(t *testing.T) {
	ctx := context.Background()
	s := New()
	fence := s.Fence()
	now := time.Now()
	fence.now = func() time.Time { return now }

	require.NoError(t, fence.Raise(ctx, "crashed", time.Minute))
	assert.ErrorIs(t, fence.Check(ctx), cycle.ErrFenceRaised)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, fence.Check(ctx))
	assert.NoError(t, fence.Raise(ctx, "next", time.Minute), "a lapsed fence can be taken over")
}

func TestFence_RaiseFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	injected := errors.New("disk full")
	s.Inject("commit", injected)

	assert.ErrorIs(t, s.Fence().Raise(ctx, "worker", time.Minute), injected)
	s.ClearFailpoints()
	assert.NoError(t, s.Fence().Check(ctx))
}
