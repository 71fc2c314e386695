package delivery_test

import (
	"context"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/delivery"
	"routeledger/internal/ledgertest"
)

func TestLedger_CreateReservesStockAndPricesLines(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	biscuits := l.Product(t, "Biscuits", "10", "100")
	chips := l.Product(t, "Chips", "2.50", "20")

	d := l.Deliver(t, s.ID, ledgertest.Line(biscuits.ID, "4"), ledgertest.Line(chips.ID, "2"))

	assert.Equal(t, delivery.StateActive, d.State)
	assert.Equal(t, types.Day(d.CreatedAt), d.Date)
	require.Len(t, d.Lines, 2)
	assert.Equal(t, "Biscuits", d.Lines[0].ProductName)
	assert.True(t, d.Lines[0].Amount.Equal(types.MustMoney("40")))
	assert.True(t, d.Lines[1].Amount.Equal(types.MustMoney("5")))
	assert.True(t, d.Total.Equal(types.MustMoney("45")))

	assert.Equal(t, types.Units(96), l.OnHand(t, biscuits.ID))
	assert.Equal(t, types.Units(18), l.OnHand(t, chips.ID))

	shop, err := l.Shops.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, shop.Delivered)

	// later price changes do not touch recorded lines
	_, err = l.Stock.SetPrice(ctx, biscuits.ID, types.MustMoney("11"))
	require.NoError(t, err)
	stored, err := l.Deliveries.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(types.MustMoney("45")))
}

func TestLedger_ShortageStoresNothing(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "100")

	_, err := l.Deliveries.Create(ctx, delivery.CreateRequest{
		ShopID: s.ID,
		Lines:  []delivery.LineRequest{ledgertest.Line(p.ID, "101")},
	})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientStock))

	assert.Equal(t, types.Units(100), l.OnHand(t, p.ID))
	all, err := l.Deliveries.List(ctx, delivery.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, all)
	shop, err := l.Shops.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, shop.Delivered)

	d := l.Deliver(t, s.ID, ledgertest.Line(p.ID, "100"))
	assert.True(t, d.Total.Equal(types.MustMoney("1000")))
	assert.True(t, l.OnHand(t, p.ID).IsZero())
}

func TestLedger_CreateValidation(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "10")

	tests := []struct {
		name string
		req  delivery.CreateRequest
		code string
	}{
		{"no lines", delivery.CreateRequest{ShopID: s.ID}, apperror.CodeValidation},
		{"zero quantity", delivery.CreateRequest{ShopID: s.ID, Lines: []delivery.LineRequest{ledgertest.Line(p.ID, "0")}}, apperror.CodeInvalidQuantity},
		{"negative quantity", delivery.CreateRequest{ShopID: s.ID, Lines: []delivery.LineRequest{ledgertest.Line(p.ID, "-1")}}, apperror.CodeInvalidQuantity},
		{"unknown shop", delivery.CreateRequest{ShopID: id.New(), Lines: []delivery.LineRequest{ledgertest.Line(p.ID, "1")}}, apperror.CodeNotFound},
		{"unknown product", delivery.CreateRequest{ShopID: s.ID, Lines: []delivery.LineRequest{ledgertest.Line(id.New(), "1")}}, apperror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Deliveries.Create(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, apperror.Is(err, tt.code), "got %v", err)
		})
	}
	assert.Equal(t, types.Units(10), l.OnHand(t, p.ID))
}

func TestLedger_RemovedShopRejectsDeliveries(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "10")

	_, err := l.Shops.Remove(ctx, s.ID)
	require.NoError(t, err)

	_, err = l.Deliveries.Create(ctx, delivery.CreateRequest{
		ShopID: s.ID,
		Lines:  []delivery.LineRequest{ledgertest.Line(p.ID, "1")},
	})
	assert.True(t, apperror.Is(err, apperror.CodeShopInactive))
	assert.Equal(t, types.Units(10), l.OnHand(t, p.ID))
}

func TestLedger_RepeatedLinesCannotOverflowStock(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	milk := l.Product(t, "Milk", "1", "100")

	tests := []struct {
		name  string
		lines []delivery.LineRequest
	}{
		{"two lines at the maximum", []delivery.LineRequest{
			{ProductID: milk.ID, Quantity: types.MaxQuantity},
			{ProductID: milk.ID, Quantity: types.MaxQuantity},
		}},
		{"two lines that wrap int64", []delivery.LineRequest{
			{ProductID: milk.ID, Quantity: types.Quantity(5_000_000_000_000_000_000)},
			{ProductID: milk.ID, Quantity: types.Quantity(5_000_000_000_000_000_000)},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Deliveries.Create(ctx, delivery.CreateRequest{ShopID: s.ID, Lines: tt.lines})
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.CodeInvalidQuantity), "got %v", err)
		})
	}

	assert.Equal(t, types.Units(100), l.OnHand(t, milk.ID))
	all, err := l.Deliveries.List(ctx, delivery.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestLedger_RestoreRejectsRemovedShop(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "10")
	d := l.Deliver(t, s.ID, ledgertest.Line(p.ID, "4"))

	_, err := l.Deliveries.Delete(ctx, d.ID)
	require.NoError(t, err)
	_, err = l.Shops.Remove(ctx, s.ID)
	require.NoError(t, err)

	_, err = l.Deliveries.Restore(ctx, d.ID)
	assert.True(t, apperror.Is(err, apperror.CodeShopInactive), "got %v", err)

	stored, err := l.Deliveries.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StateDeleted, stored.State)
	assert.Equal(t, types.Units(10), l.OnHand(t, p.ID))
}

func TestLedger_StockMatchesActiveDeliveriesUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	for seed := uint64(1); seed <= 5; seed++ {
		t.Run("seed-"+strconv.FormatUint(seed, 10), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(seed, seed*17))
			l := ledgertest.New(t)
			shops := []id.ID{l.Shop(t, "Kirana").ID, l.Shop(t, "Bakery").ID}
			opening := map[id.ID]types.Quantity{}
			var products []id.ID
			for _, name := range []string{"Biscuits", "Chips"} {
				p := l.Product(t, name, "1", "40")
				products = append(products, p.ID)
				opening[p.ID] = p.OnHand
			}

			var active, deleted []id.ID
			for step := range 300 {
				switch rng.IntN(3) {
				case 0:
					lines := make([]delivery.LineRequest, rng.IntN(3)+1)
					for i := range lines {
						qty := strconv.Itoa(rng.IntN(8)+1) + ".5"
						lines[i] = ledgertest.Line(products[rng.IntN(len(products))], qty)
					}
					d, err := l.Deliveries.Create(ctx, delivery.CreateRequest{
						ShopID: shops[rng.IntN(len(shops))],
						Lines:  lines,
					})
					if err != nil {
						require.True(t, apperror.Is(err, apperror.CodeInsufficientStock), "step %d: %v", step, err)
						continue
					}
					active = append(active, d.ID)
				case 1:
					if len(active) == 0 {
						continue
					}
					i := rng.IntN(len(active))
					_, err := l.Deliveries.Delete(ctx, active[i])
					require.NoError(t, err)
					deleted = append(deleted, active[i])
					active = append(active[:i], active[i+1:]...)
				case 2:
					if len(deleted) == 0 {
						continue
					}
					i := rng.IntN(len(deleted))
					_, err := l.Deliveries.Restore(ctx, deleted[i])
					if err != nil {
						require.True(t, apperror.Is(err, apperror.CodeRestoreConflict), "step %d: %v", step, err)
						continue
					}
					active = append(active, deleted[i])
					deleted = append(deleted[:i], deleted[i+1:]...)
				}

				want := make(map[id.ID]types.Quantity, len(opening))
				for pid, q := range opening {
					want[pid] = q
				}
				for _, did := range active {
					d, err := l.Deliveries.Get(ctx, did)
					require.NoError(t, err)
					require.Equal(t, delivery.StateActive, d.State)
					for _, line := range d.Lines {
						want[line.ProductID] -= line.Quantity
					}
				}
				for _, pid := range products {
					got := l.OnHand(t, pid)
					require.False(t, got.IsNegative(), "step %d: on hand %s", step, got)
					require.Equal(t, want[pid], got, "step %d", step)
				}
			}
		})
	}
}

func TestLedger_DeleteReturnsStockAndRestoreTakesItBack(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "100")
	d := l.Deliver(t, s.ID, ledgertest.Line(p.ID, "100"))

	deleted, err := l.Deliveries.Delete(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StateDeleted, deleted.State)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, types.Units(100), l.OnHand(t, p.ID))

	shop, err := l.Shops.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, shop.Delivered, "last active delivery is gone")

	_, err = l.Deliveries.Delete(ctx, d.ID)
	assert.True(t, apperror.Is(err, apperror.CodeAlreadyDeleted))
	assert.Equal(t, types.Units(100), l.OnHand(t, p.ID))

	history, err := l.Deliveries.Deleted(ctx, &s.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, d.ID, history[0].ID)

	restored, err := l.Deliveries.Restore(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StateActive, restored.State)
	assert.Nil(t, restored.DeletedAt)
	assert.NotNil(t, restored.RestoredAt)
	assert.True(t, l.OnHand(t, p.ID).IsZero())
	assert.True(t, restored.Total.Equal(d.Total))

	_, err = l.Deliveries.Restore(ctx, d.ID)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidState))
}

func TestLedger_RestoreConflictKeepsDeliveryDeleted(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	a := l.Shop(t, "Kirana")
	b := l.Shop(t, "Bakery")
	p := l.Product(t, "Biscuits", "10", "100")

	first := l.Deliver(t, a.ID, ledgertest.Line(p.ID, "80"))
	_, err := l.Deliveries.Delete(ctx, first.ID)
	require.NoError(t, err)
	l.Deliver(t, b.ID, ledgertest.Line(p.ID, "60"))

	_, err = l.Deliveries.Restore(ctx, first.ID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeRestoreConflict, appErr.Code)
	assert.Equal(t, "80.0000", appErr.Details["requested"])
	assert.Equal(t, "40.0000", appErr.Details["available"])

	stored, err := l.Deliveries.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.StateDeleted, stored.State)
	assert.Equal(t, types.Units(40), l.OnHand(t, p.ID))
}

func TestLedger_ListFiltersDeleted(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	a := l.Shop(t, "Kirana")
	b := l.Shop(t, "Bakery")
	p := l.Product(t, "Biscuits", "10", "100")

	l.Deliver(t, a.ID, ledgertest.Line(p.ID, "1"))
	gone := l.Deliver(t, a.ID, ledgertest.Line(p.ID, "2"))
	l.Deliver(t, b.ID, ledgertest.Line(p.ID, "3"))
	_, err := l.Deliveries.Delete(ctx, gone.ID)
	require.NoError(t, err)

	active, err := l.Deliveries.List(ctx, delivery.ListFilter{ShopID: &a.ID})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	withDeleted, err := l.Deliveries.List(ctx, delivery.ListFilter{ShopID: &a.ID, IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, withDeleted, 2)

	everyone, err := l.Deliveries.List(ctx, delivery.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, everyone, 2)

	// shop A still has an active delivery
	shop, err := l.Shops.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, shop.Delivered)
}

func TestLedger_RejectsCommandsDuringSettlement(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")
	p := l.Product(t, "Biscuits", "10", "10")
	d := l.Deliver(t, s.ID, ledgertest.Line(p.ID, "1"))

	release := l.Gate.Exclusive()
	_, err := l.Deliveries.Create(ctx, delivery.CreateRequest{
		ShopID: s.ID,
		Lines:  []delivery.LineRequest{ledgertest.Line(p.ID, "1")},
	})
	assert.True(t, apperror.Is(err, apperror.CodeSettlementInProgress))
	_, err = l.Deliveries.Delete(ctx, d.ID)
	assert.True(t, apperror.Is(err, apperror.CodeSettlementInProgress))
	release()

	assert.Equal(t, types.Units(9), l.OnHand(t, p.ID))
	_, err = l.Deliveries.Delete(ctx, d.ID)
	require.NoError(t, err)
}
