package shop_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeledger/internal/core/apperror"
	"routeledger/internal/core/id"
	"routeledger/internal/domain/shop"
	"routeledger/internal/ledgertest"
)

func TestDirectory_Register(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)

	s, err := l.Shops.Register(ctx, "Kirana", "")
	require.NoError(t, err)
	assert.True(t, s.Active)
	assert.Equal(t, shop.DefaultRoute, s.Route)
	assert.True(t, s.OpeningBalance.IsZero())

	_, err = l.Shops.Register(ctx, "Kirana", "north")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeDuplicateShopName))

	// names compare exactly
	other, err := l.Shops.Register(ctx, "kirana", "north")
	require.NoError(t, err)
	assert.Equal(t, "north", other.Route)

	_, err = l.Shops.Register(ctx, "   ", "")
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
}

func TestDirectory_RemovedNameIsReusable(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	first := l.Shop(t, "Kirana")

	removed, err := l.Shops.Remove(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, removed.Active)
	assert.NotNil(t, removed.RemovedAt)

	_, err = l.Shops.Remove(ctx, first.ID)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidState))

	second := l.Shop(t, "Kirana")
	assert.NotEqual(t, first.ID, second.ID)

	active, err := l.Shops.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.ID, active[0].ID)

	all, err := l.Shops.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// history of the removed shop is still readable
	got, err := l.Shops.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kirana", got.Name)
}

func TestDirectory_SetRoute(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)
	s := l.Shop(t, "Kirana")

	moved, err := l.Shops.SetRoute(ctx, s.ID, "east")
	require.NoError(t, err)
	assert.Equal(t, "east", moved.Route)

	_, err = l.Shops.SetRoute(ctx, s.ID, "")
	assert.True(t, apperror.Is(err, apperror.CodeValidation))

	_, err = l.Shops.SetRoute(ctx, id.New(), "east")
	assert.True(t, apperror.IsNotFound(err))

	_, err = l.Shops.Remove(ctx, s.ID)
	require.NoError(t, err)
	_, err = l.Shops.SetRoute(ctx, s.ID, "west")
	assert.True(t, apperror.Is(err, apperror.CodeShopInactive))
}

func TestDirectory_ListsAcrossPagesInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)

	const n = 250
	for i := range n {
		l.Shop(t, fmt.Sprintf("Shop %03d", i))
	}

	shops, err := l.Shops.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, shops, n)
	for i, s := range shops {
		assert.Equal(t, fmt.Sprintf("Shop %03d", i), s.Name)
	}

	// stopping early fetches no further pages
	seen := 0
	for s, err := range l.Shops.Shops(ctx) {
		require.NoError(t, err)
		require.NotNil(t, s)
		seen++
		if seen == 5 {
			break
		}
	}
	assert.Equal(t, 5, seen)
}

func TestDirectory_RejectsCommandsDuringSettlement(t *testing.T) {
	ctx := context.Background()
	l := ledgertest.New(t)

	release := l.Gate.Exclusive()
	_, err := l.Shops.Register(ctx, "Kirana", "")
	release()
	assert.True(t, apperror.Is(err, apperror.CodeSettlementInProgress))

	l.Shop(t, "Kirana")
}
