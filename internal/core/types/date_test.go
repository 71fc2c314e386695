package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	got := Day(time.Date(2026, 3, 4, 23, 59, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", FormatDay(d))

	_, err = ParseDay("28/02/2026")
	assert.Error(t, err)
}

func TestInRange(t *testing.T) {
	day := mustDay(t, "2026-05-10")
	from := mustDay(t, "2026-05-01")
	to := mustDay(t, "2026-05-10")

	assert.True(t, InRange(day, from, to))
	assert.True(t, InRange(day, time.Time{}, time.Time{}))
	assert.False(t, InRange(day, time.Time{}, mustDay(t, "2026-05-09")))
	assert.False(t, InRange(day, mustDay(t, "2026-05-11"), time.Time{}))
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDay(s)
	require.NoError(t, err)
	return d
}
