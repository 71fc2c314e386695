package settlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeledger/internal/core/apperror"
	appctx "routeledger/internal/core/context"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/domain/payment"
	"routeledger/internal/domain/settlement"
	"routeledger/internal/ledgertest"
)

type heldLocker struct{}

func (heldLocker) Obtain(context.Context, string) (func(context.Context) error, error) {
	return nil, settlement.ErrLockHeld
}

type countingLocker struct {
	obtained, released int
}

func (l *countingLocker) Obtain(context.Context, string) (func(context.Context) error, error) {
	l.obtained++
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

func TestEngine_RunArchivesAndOpensNextCycle(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	a := l.Shop(t, "Kirana")
	b := l.Shop(t, "Bakery")
	p := l.Product(t, "Biscuits", "15", "100")

	kept := l.Deliver(t, a.ID, ledgertest.Line(p.ID, "10"))
	l.Pay(t, a.ID, "100")
	dropped := l.Deliver(t, b.ID, ledgertest.Line(p.ID, "5"))
	_, err := l.Deliveries.Delete(ctx, dropped.ID)
	require.NoError(t, err)

	var settled []*settlement.Archive
	l.Settlement.Hooks().On(domain.AfterSettle, func(_ context.Context, a *settlement.Archive) error {
		settled = append(settled, a)
		return nil
	})

	res, err := l.Settlement.Run(ctx, types.Today())
	require.NoError(t, err)
	require.False(t, res.AlreadySettled)

	archive := res.Archive
	assert.Equal(t, 1, archive.Sequence)
	assert.Equal(t, types.Today(), archive.Date)
	require.Len(t, archive.Deliveries, 1, "deleted deliveries are not archived")
	assert.Equal(t, kept.ID, archive.Deliveries[0].ID)
	assert.Equal(t, delivery.StateArchived, archive.Deliveries[0].State)
	assert.Equal(t, 1, archive.Summary.Payments)
	assert.True(t, archive.Summary.DeliveryTotal.Equal(types.MustMoney("150")))
	assert.True(t, archive.Summary.PaymentTotal.Equal(types.MustMoney("100")))
	assert.True(t, archive.Summary.Outstanding.Equal(types.MustMoney("50")))
	assert.Len(t, settled, 1)

	closings := make(map[id.ID]settlement.Closing)
	for _, c := range archive.Closings {
		closings[c.ShopID] = c
	}
	assert.True(t, closings[a.ID].Closing.Equal(types.MustMoney("50")))
	assert.True(t, closings[b.ID].Closing.IsZero())

	// next cycle starts from the carried balance
	shopA, err := l.Shops.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, shopA.Delivered)
	assert.True(t, shopA.OpeningBalance.Equal(types.MustMoney("50")))
	assert.True(t, l.Outstanding(t, a.ID).Equal(types.MustMoney("50")))

	bal, err := l.Reconciler.GetBalance(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, bal.Deliveries.IsZero())
	assert.True(t, bal.Payments.IsZero())

	active, err := l.Deliveries.List(ctx, delivery.ListFilter{})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, delivery.StateArchived, active[0].State)

	// archiving does not move stock
	assert.Equal(t, types.Units(90), l.OnHand(t, p.ID))

	stored, err := l.Settlement.GetArchive(ctx, archive.ID)
	require.NoError(t, err)
	assert.Equal(t, archive.ID, stored.ID)

	status := l.Settlement.Status()
	assert.Equal(t, settlement.StateCompleted, status.State)
	require.NotNil(t, status.LastDate)
	assert.Equal(t, types.Today(), *status.LastDate)
}

func TestEngine_RerunWithoutActivityIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "100")
	l.Deliver(t, s.ID, ledgertest.Line(p.ID, "1"))

	first, err := l.Settlement.Run(ctx, types.Today())
	require.NoError(t, err)

	again, err := l.Settlement.Run(ctx, types.Today())
	require.NoError(t, err)
	assert.True(t, again.AlreadySettled)
	assert.Equal(t, first.Archive.ID, again.Archive.ID)

	archives, err := l.Settlement.ListArchives(ctx, types.Today(), types.Today())
	require.NoError(t, err)
	assert.Len(t, archives, 1)

	// new activity opens a second archive for the same date
	l.Deliver(t, s.ID, ledgertest.Line(p.ID, "2"))
	second, err := l.Settlement.Run(ctx, types.Today())
	require.NoError(t, err)
	assert.False(t, second.AlreadySettled)
	assert.Equal(t, 2, second.Archive.Sequence)

	sum, err := l.Settlement.DailySummary(ctx, types.Today())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Archives)
	assert.Equal(t, 2, sum.Summary.Deliveries)
	assert.True(t, sum.Summary.DeliveryTotal.Equal(types.MustMoney("30")))
	assert.True(t, sum.Summary.Outstanding.Equal(types.MustMoney("30")))
}

func TestEngine_FirstRunOnEmptyLedgerStillArchives(t *testing.T) {
	l := ledgertest.New(t)

	res, err := l.Settlement.Run(context.Background(), types.Today())
	require.NoError(t, err)
	assert.False(t, res.AlreadySettled)
	assert.Equal(t, 1, res.Archive.Sequence)
	assert.Empty(t, res.Archive.Deliveries)
	assert.True(t, res.Archive.Summary.Outstanding.IsZero())
}

func TestEngine_PayTomorrowCountsAsActivityAndIsCleared(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "100")
	l.Deliver(t, s.ID, ledgertest.Line(p.ID, "1"))
	_, err := l.Reconciler.MarkPayTomorrow(ctx, s.ID, "")
	require.NoError(t, err)

	_, err = l.Settlement.Run(ctx, types.Today())
	require.NoError(t, err)

	got, err := l.Shops.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.PayTomorrow)
	assert.True(t, got.OpeningBalance.Equal(types.MustMoney("10")))
}

func TestEngine_FailedWriteRollsBackEverything(t *testing.T) {
	for _, op := range []string{"archive.create", "delivery.update", "payment.close", "shop.update", "commit"} {
		t.Run(op, func(t *testing.T) {
			ctx := context.Background()
			l := ledgertest.New(t)
			s := l.Shop(t, "Kirana")
			p := l.Product(t, "Biscuits", "10", "100")
			d := l.Deliver(t, s.ID, ledgertest.Line(p.ID, "5"))
			l.Pay(t, s.ID, "20")

			injected := errors.New("disk full")
			l.Store.Inject(op, injected)
			_, err := l.Settlement.Run(ctx, types.Today())
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.CodeSettlementFailed))
			assert.ErrorIs(t, err, injected)
			l.Store.ClearFailpoints()

			archives, err := l.Settlement.ListArchives(ctx, time.Time{}, time.Time{})
			require.NoError(t, err)
			assert.Empty(t, archives)

			stored, err := l.Deliveries.Get(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, delivery.StateActive, stored.State)

			payments, err := l.Reconciler.Payments(ctx, s.ID, false)
			require.NoError(t, err)
			assert.Len(t, payments, 1)

			shop, err := l.Shops.Get(ctx, s.ID)
			require.NoError(t, err)
			assert.True(t, shop.Delivered)
			assert.True(t, shop.OpeningBalance.IsZero())
			assert.True(t, l.Outstanding(t, s.ID).Equal(types.MustMoney("30")))

			status := l.Settlement.Status()
			assert.Equal(t, settlement.StateIdle, status.State)
			assert.NotEmpty(t, status.LastError)

			if op != "commit" {
				aborted, err := l.Store.Settlements().ListIntents(ctx, settlement.IntentAborted)
				require.NoError(t, err)
				assert.Len(t, aborted, 1)
			}

			// the ledger is usable and a retry succeeds
			res, err := l.Settlement.Run(ctx, types.Today())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Archive.Sequence)
		})
	}
}

func TestEngine_CommandsAreRejectedWhileSettling(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "100")
	l.Deliver(t, s.ID, ledgertest.Line(p.ID, "1"))

	var deliverErr, payErr, rerunErr error
	l.Settlement.Hooks().On(domain.AfterSettle, func(ctx context.Context, _ *settlement.Archive) error {
		_, deliverErr = l.Deliveries.Create(ctx, delivery.CreateRequest{
			ShopID: s.ID,
			Lines:  []delivery.LineRequest{ledgertest.Line(p.ID, "1")},
		})
		_, payErr = l.Reconciler.RecordPayment(ctx, payment.PaymentRequest{ShopID: s.ID, Amount: types.MustMoney("1")})
		_, rerunErr = l.Settlement.Run(ctx, types.Today())
		return nil
	})

	_, err := l.Settlement.Run(ctx, types.Today())
	require.NoError(t, err)

	assert.True(t, apperror.Is(deliverErr, apperror.CodeSettlementInProgress))
	assert.True(t, apperror.Is(payErr, apperror.CodeSettlementInProgress))
	assert.True(t, apperror.Is(rerunErr, apperror.CodeSettlementInProgress))
	assert.Equal(t, types.Units(99), l.OnHand(t, p.ID))

	// the gate reopens after the run
	l.Deliver(t, s.ID, ledgertest.Line(p.ID, "1"))
}

func TestEngine_SettlementInWorkerRejectsServerCommands(t *testing.T) {
	ctx := context.Background()
	server := ledgertest.New(t)
	worker := ledgertest.Wire(server.Store)
	s := server.Shop(t, "Kirana")
	other := server.Shop(t, "Bakery")
	p := server.Product(t, "Biscuits", "10", "100")
	server.Deliver(t, s.ID, ledgertest.Line(p.ID, "5"))

	var deliverErr, payErr, pendingErr, registerErr, rerunErr error
	worker.Settlement.Hooks().On(domain.AfterSettle, func(ctx context.Context, _ *settlement.Archive) error {
		// the server's own gate is open; only the shared fence stops it
		leave, err := server.Gate.Enter()
		require.NoError(t, err)
		leave()

		_, deliverErr = server.Deliveries.Create(ctx, delivery.CreateRequest{
			ShopID: other.ID,
			Lines:  []delivery.LineRequest{ledgertest.Line(p.ID, "1")},
		})
		_, payErr = server.Reconciler.RecordPayment(ctx, payment.PaymentRequest{ShopID: s.ID, Amount: types.MustMoney("1")})
		_, pendingErr = server.Reconciler.AddPendingAmount(ctx, payment.PendingRequest{ShopID: s.ID, Amount: types.MustMoney("1")})
		_, registerErr = server.Shops.Register(ctx, "Dairy", "")
		_, rerunErr = server.Settlement.Run(ctx, types.Today())
		return nil
	})

	res, err := worker.Settlement.Run(ctx, types.Today())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Archive.Summary.Deliveries)

	for name, err := range map[string]error{
		"deliver": deliverErr, "pay": payErr, "pending": pendingErr, "register": registerErr, "rerun": rerunErr,
	} {
		assert.True(t, apperror.Is(err, apperror.CodeSettlementInProgress), "%s: %v", name, err)
	}
	assert.Equal(t, types.Units(95), server.OnHand(t, p.ID))
	bakery, err := server.Shops.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, bakery.Delivered)

	// the fence is lowered once the worker's run ends
	d := server.Deliver(t, other.ID, ledgertest.Line(p.ID, "1"))
	bakery, err = server.Shops.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, bakery.Delivered)
	assert.Equal(t, delivery.StateActive, d.State)
}

func TestEngine_RecoverLeavesLiveSettlementAlone(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	repo := l.Store.Settlements()

	live := &settlement.Intent{
		ID: id.New(), Date: types.Today(), ArchiveID: id.New(),
		Status: settlement.IntentStaged, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateIntent(ctx, live))
	require.NoError(t, l.Store.Fence().Raise(ctx, "worker", time.Minute))

	n, err := l.Settlement.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	staged, err := repo.ListIntents(ctx, settlement.IntentStaged)
	require.NoError(t, err)
	assert.Len(t, staged, 1)

	require.NoError(t, l.Store.Fence().Lower(ctx, "worker"))
	n, err = l.Settlement.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_LockHeldByAnotherProcess(t *testing.T) {
	l := ledgertest.New(t, ledgertest.WithLocker(heldLocker{}))

	_, err := l.Settlement.Run(context.Background(), types.Today())
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeSettlementInProgress))
	assert.Equal(t, settlement.StateIdle, l.Settlement.Status().State)
}

func TestEngine_ReleasesLock(t *testing.T) {
	locker := &countingLocker{}
	l := ledgertest.New(t, ledgertest.WithLocker(locker))

	_, err := l.Settlement.Run(context.Background(), types.Today())
	require.NoError(t, err)
	assert.Equal(t, 1, locker.obtained)
	assert.Equal(t, 1, locker.released)
}

func TestEngine_RequiresSettlementScope(t *testing.T) {
	l := ledgertest.New(t, ledgertest.WithAuthorizer(settlement.ScopeAuthorizer))

	_, err := l.Settlement.Run(context.Background(), types.Today())
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeForbidden))
	assert.Equal(t, settlement.StateIdle, l.Settlement.Status().State)

	clerk := appctx.WithOperator(context.Background(), &appctx.Operator{Subject: "clerk", Scopes: []string{"deliveries"}})
	_, err = l.Settlement.Run(clerk, types.Today())
	assert.True(t, apperror.Is(err, apperror.CodeForbidden))

	owner := appctx.WithOperator(context.Background(), &appctx.Operator{
		Subject: "owner",
		Scopes:  []string{appctx.ScopeSettlement},
	})
	_, err = l.Settlement.Run(owner, types.Today())
	require.NoError(t, err)
}

func TestEngine_RecoverResolvesStagedIntents(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	repo := l.Store.Settlements()

	res, err := l.Settlement.Run(ctx, types.Today())
	require.NoError(t, err)

	committed := &settlement.Intent{
		ID: id.New(), Date: types.Today(), ArchiveID: res.Archive.ID,
		Status: settlement.IntentStaged, CreatedAt: time.Now(),
	}
	lost := &settlement.Intent{
		ID: id.New(), Date: types.Today(), ArchiveID: id.New(),
		Status: settlement.IntentStaged, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateIntent(ctx, committed))
	require.NoError(t, repo.CreateIntent(ctx, lost))

	n, err := l.Settlement.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	staged, err := repo.ListIntents(ctx, settlement.IntentStaged)
	require.NoError(t, err)
	assert.Empty(t, staged)

	aborted, err := repo.ListIntents(ctx, settlement.IntentAborted)
	require.NoError(t, err)
	require.Len(t, aborted, 1)
	assert.Equal(t, lost.ID, aborted[0].ID)
	assert.NotEmpty(t, aborted[0].Error)

	applied, err := repo.ListIntents(ctx, settlement.IntentApplied)
	require.NoError(t, err)
	assert.Len(t, applied, 2, "the run's own intent and the recovered one")

	n, err = l.Settlement.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_Preview(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	a := l.Shop(t, "Kirana")
	b := l.Shop(t, "Bakery")
	p := l.Product(t, "Biscuits", "10", "100")

	l.Deliver(t, a.ID, ledgertest.Line(p.ID, "3"))
	l.Pay(t, a.ID, "30")
	gone := l.Deliver(t, b.ID, ledgertest.Line(p.ID, "1"))
	_, err := l.Deliveries.Delete(ctx, gone.ID)
	require.NoError(t, err)
	_, err = l.Reconciler.AddPendingAmount(ctx, payment.PendingRequest{ShopID: b.ID, Amount: types.MustMoney("12")})
	require.NoError(t, err)

	pv, err := l.Settlement.Preview(ctx, types.Today())
	require.NoError(t, err)
	assert.False(t, pv.AlreadySettled)
	assert.Equal(t, 1, pv.NextSequence)
	assert.Equal(t, 1, pv.ActiveDeliveries)
	assert.Equal(t, 1, pv.DeletedDeliveries)
	assert.Equal(t, 1, pv.Payments)
	assert.Equal(t, 1, pv.PendingEntries)
	assert.True(t, pv.Outstanding.Equal(types.MustMoney("12")))
	assert.Equal(t, 1, pv.PaidShops)
	assert.Equal(t, 1, pv.PendingShops)

	archives, err := l.Settlement.ListArchives(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, archives, "preview writes nothing")
}

func TestEngine_ListArchivesRejectsInvertedRange(t *testing.T) {
	l := ledgertest.New(t)
	today := types.Today()

	_, err := l.Settlement.ListArchives(context.Background(), today, today.AddDate(0, 0, -1))
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}
