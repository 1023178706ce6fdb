package archive

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhumphrey11/moda-trading/internal/core"
)

func TestArchiver_SnapshotPosition(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	a := NewArchiver(fs)

	closedAt := time.Date(2026, 8, 24, 16, 30, 0, 0, time.UTC)
	pos := core.Position{
		ID:          "AAPL",
		Symbol:      "AAPL",
		Quantity:    0,
		AverageCost: decimal.NewFromInt(150),
		Status:      core.PositionClosed,
		OpenedAt:    closedAt.Add(-72 * time.Hour),
		ClosedAt:    &closedAt,
		UpdatedAt:   closedAt,
	}

	path, err := a.SnapshotPosition(context.Background(), pos)
	require.NoError(t, err)
	assert.Equal(t, "positions/AAPL/2026-08-24T16-30-00.json", path)

	restored, err := a.ReadPosition(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", restored.Symbol)
	assert.Equal(t, core.PositionClosed, restored.Status)
	assert.True(t, restored.AverageCost.Equal(decimal.NewFromInt(150)))
}

func TestArchiver_ListPositionSnapshots(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	a := NewArchiver(fs)

	now := time.Now().UTC()
	for _, sym := range []string{"AAPL", "MSFT"} {
		pos := core.Position{Symbol: sym, Status: core.PositionClosed, UpdatedAt: now}
		_, err := a.SnapshotPosition(context.Background(), pos)
		require.NoError(t, err)
	}

	paths, err := a.ListPositionSnapshots(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, paths, 1)

	paths, err = a.ListPositionSnapshots(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestArchiver_SnapshotDailyPrices(t *testing.T) {
	fs, err := NewLocalFS(t.TempDir())
	require.NoError(t, err)
	a := NewArchiver(fs)

	day := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	records := []core.PriceRecord{{
		Symbol:   "AAPL",
		Date:     day,
		Close:    decimal.NewFromInt(100),
		Provider: core.ProviderFinnhub,
	}}

	path, err := a.SnapshotDailyPrices(context.Background(), "AAPL", day, records)
	require.NoError(t, err)
	assert.Equal(t, "prices/2026-08-24/AAPL.json", path)

	exists, err := fs.Exists(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, exists)
}
