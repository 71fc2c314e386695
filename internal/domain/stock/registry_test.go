package stock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/core/types"
	"routeledger/internal/domain/stock"
	"routeledger/internal/ledgertest"
)

func TestRegistry_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	p := l.Product(t, "Biscuits", "10", "10")

	level, err := l.Stock.Reserve(ctx, p.ID, types.Units(4))
	require.NoError(t, err)
	assert.Equal(t, types.Units(6), level)

	level, err = l.Stock.Release(ctx, p.ID, types.Units(2))
	require.NoError(t, err)
	assert.Equal(t, types.Units(8), level)

	movements, err := l.Stock.Movements(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, movements, 3)
	assert.Equal(t, stock.MovementRelease, movements[0].Kind)
	assert.Equal(t, types.Units(8), movements[0].Balance)
	assert.Equal(t, stock.MovementRestock, movements[2].Kind)
}

func TestRegistry_ReserveRejectsShortage(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	p := l.Product(t, "Biscuits", "10", "100")

	_, err := l.Stock.Reserve(ctx, p.ID, types.Units(101))
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, "101.0000", appErr.Details["requested"])
	assert.Equal(t, "100.0000", appErr.Details["available"])
	assert.Equal(t, types.Units(100), l.OnHand(t, p.ID))

	level, err := l.Stock.Reserve(ctx, p.ID, types.Units(100))
	require.NoError(t, err)
	assert.True(t, level.IsZero())
}

func TestRegistry_ReserveGroupIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	a := l.Product(t, "Biscuits", "10", "5")
	b := l.Product(t, "Chips", "20", "1")

	err := l.Stock.ReserveGroup(ctx, id.New(), []stock.Request{
		{ProductID: a.ID, Quantity: types.Units(3)},
		{ProductID: b.ID, Quantity: types.Units(2)},
	})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientStock))

	assert.Equal(t, types.Units(5), l.OnHand(t, a.ID))
	assert.Equal(t, types.Units(1), l.OnHand(t, b.ID))
}

func TestRegistry_RepeatedProductIsSummed(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	p := l.Product(t, "Biscuits", "10", "5")

	err := l.Stock.ReserveGroup(ctx, id.New(), []stock.Request{
		{ProductID: p.ID, Quantity: types.Units(3)},
		{ProductID: p.ID, Quantity: types.Units(3)},
	})
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "6.0000", appErr.Details["requested"])
	assert.Equal(t, types.Units(5), l.OnHand(t, p.ID))
}

func TestRegistry_InvalidQuantities(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	p := l.Product(t, "Biscuits", "10", "5")

	tests := []struct {
		name string
		call func() error
	}{
		{"zero reserve", func() error { _, err := l.Stock.Reserve(ctx, p.ID, 0); return err }},
		{"negative reserve", func() error { _, err := l.Stock.Reserve(ctx, p.ID, -types.Units(1)); return err }},
		{"zero release", func() error { _, err := l.Stock.Release(ctx, p.ID, 0); return err }},
		{"zero restock", func() error { _, err := l.Stock.Restock(ctx, p.ID, 0); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.CodeInvalidQuantity))
		})
	}
	assert.Equal(t, types.Units(5), l.OnHand(t, p.ID))
}

func TestRegistry_QuantitiesStayWithinRange(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	p := l.Product(t, "Biscuits", "10", "100")
	huge := types.Quantity(5_000_000_000_000_000_000)

	tests := []struct {
		name string
		call func() error
	}{
		{"repeated lines summing past the maximum", func() error {
			return l.Stock.ReserveGroup(ctx, id.New(), []stock.Request{
				{ProductID: p.ID, Quantity: types.MaxQuantity},
				{ProductID: p.ID, Quantity: types.MaxQuantity},
			})
		}},
		{"single reserve beyond the maximum", func() error { _, err := l.Stock.Reserve(ctx, p.ID, huge); return err }},
		{"release beyond the maximum", func() error { _, err := l.Stock.Release(ctx, p.ID, huge); return err }},
		{"restock past the maximum level", func() error { _, err := l.Stock.Restock(ctx, p.ID, types.MaxQuantity); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, apperror.Is(err, apperror.CodeInvalidQuantity), "got %v", err)
			assert.Equal(t, types.Units(100), l.OnHand(t, p.ID))
		})
	}

	movements, err := l.Stock.Movements(ctx, p.ID, 10)
	require.NoError(t, err)
	assert.Len(t, movements, 1, "only the opening restock")

	_, err = l.Stock.AddProduct(ctx, "Flour", types.MustMoney("1"), huge)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidQuantity))
}

func TestRegistry_UnknownProduct(t *testing.T) {
	l := ledgertest.New(t)
	_, err := l.Stock.Reserve(context.Background(), id.New(), types.Units(1))
	assert.True(t, apperror.IsNotFound(err))
}

func TestRegistry_ConcurrentReservationsNeverOversell(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	p := l.Product(t, "Biscuits", "10", "50")

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		short     atomic.Int64
	)
	for range 120 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Stock.Reserve(ctx, p.ID, types.Units(1))
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperror.Is(err, apperror.CodeInsufficientStock):
				short.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), succeeded.Load())
	assert.Equal(t, int64(70), short.Load())
	assert.True(t, l.OnHand(t, p.ID).IsZero())
}

func TestRegistry_AddProduct(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	l.Product(t, "Biscuits", "10", "0")

	_, err := l.Stock.AddProduct(ctx, "Biscuits", types.MustMoney("12"), 0)
	assert.True(t, apperror.Is(err, apperror.CodeDuplicate))

	_, err = l.Stock.AddProduct(ctx, "Chips", types.MustMoney("-1"), 0)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidAmount))

	_, err = l.Stock.AddProduct(ctx, "  ", types.MustMoney("1"), 0)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	products, err := l.Stock.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestRegistry_SetPriceKeepsStock(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	p := l.Product(t, "Biscuits", "10", "7")

	updated, err := l.Stock.SetPrice(ctx, p.ID, types.MustMoney("12.50"))
	require.NoError(t, err)
	assert.True(t, updated.UnitPrice.Equal(types.MustMoney("12.5")))
	assert.Equal(t, types.Units(7), updated.OnHand)

	_, err = l.Stock.SetPrice(ctx, p.ID, types.MustMoney("-1"))
	assert.True(t, apperror.Is(err, apperror.CodeInvalidAmount))
}
