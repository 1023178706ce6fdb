package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/store"
	"github.com/dhumphrey11/moda-trading/internal/store/memory"
)

func TestStore_UpsertGet(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	pos := core.Position{
		Symbol:      "AAPL",
		Quantity:    10,
		AverageCost: decimal.NewFromInt(150),
		Status:      core.PositionActive,
		OpenedAt:    time.Now(),
	}
	require.NoError(t, s.Upsert(ctx, store.CollectionPositionsActive, "AAPL_1", pos))

	var got core.Position
	require.NoError(t, s.Get(ctx, store.CollectionPositionsActive, "AAPL_1", &got))
	assert.Equal(t, "AAPL", got.Symbol)
	assert.Equal(t, "AAPL_1", got.ID, "document id should be injected")
	assert.True(t, got.AverageCost.Equal(decimal.NewFromInt(150)))
}

func TestStore_GetMissing(t *testing.T) {
	s := memory.New()
	var got core.Position
	err := s.Get(context.Background(), store.CollectionPositionsActive, "nope", &got)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_CreateDuplicateFails(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	item := core.WatchlistItem{Symbol: "MSFT", Priority: 1}

	require.NoError(t, s.Create(ctx, store.CollectionWatchlist, "w1", item))
	assert.Error(t, s.Create(ctx, store.CollectionWatchlist, "w1", item))
}

func TestStore_UpdateMissingFails(t *testing.T) {
	s := memory.New()
	err := s.Update(context.Background(), store.CollectionWatchlist, "w1", core.WatchlistItem{Symbol: "MSFT"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestStore_UpsertOverwrites(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	rec := core.PriceRecord{Symbol: "AAPL", Close: decimal.NewFromInt(100)}
	require.NoError(t, s.Upsert(ctx, store.CollectionPricesDaily, "AAPL_2026-01-05", rec))

	rec.Close = decimal.NewFromInt(105)
	require.NoError(t, s.Upsert(ctx, store.CollectionPricesDaily, "AAPL_2026-01-05", rec))

	var got core.PriceRecord
	require.NoError(t, s.Get(ctx, store.CollectionPricesDaily, "AAPL_2026-01-05", &got))
	assert.True(t, got.Close.Equal(decimal.NewFromInt(105)))
}

func TestStore_QueryFilters(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for _, p := range []core.Position{
		{Symbol: "AAPL", Quantity: 10, Status: core.PositionActive},
		{Symbol: "MSFT", Quantity: 5, Status: core.PositionActive},
		{Symbol: "TSLA", Quantity: 0, Status: core.PositionClosed},
	} {
		require.NoError(t, s.Upsert(ctx, store.CollectionPositionsActive, p.Symbol, p))
	}

	var active []core.Position
	q := store.Query{Filters: []store.Filter{store.Where("status", store.OpEq, string(core.PositionActive))}}
	require.NoError(t, s.Query(ctx, store.CollectionPositionsActive, q, &active))
	assert.Len(t, active, 2)
}

func TestStore_QueryRangeOnTime(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{48 * time.Hour, 12 * time.Hour, 1 * time.Hour} {
		rec := core.Recommendation{
			Symbol:    "AAPL",
			Kind:      core.RecommendationBuy,
			CreatedAt: now.Add(-age),
		}
		require.NoError(t, s.Upsert(ctx, store.CollectionRecommendations, string(rune('a'+i)), rec))
	}

	var recent []core.Recommendation
	q := store.Query{
		Filters: []store.Filter{store.Where("created_at", store.OpGte, now.Add(-24*time.Hour))},
		OrderBy: "created_at",
	}
	require.NoError(t, s.Query(ctx, store.CollectionRecommendations, q, &recent))
	require.Len(t, recent, 2)
	assert.True(t, recent[0].CreatedAt.Before(recent[1].CreatedAt))
}

func TestStore_QueryOrderDescLimit(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		rec := core.PriceRecord{
			Symbol: "AAPL",
			Date:   base.AddDate(0, 0, i),
			Close:  decimal.NewFromInt(int64(100 + i)),
		}
		require.NoError(t, s.Upsert(ctx, store.CollectionPricesDaily, rec.Date.Format("2006-01-02"), rec))
	}

	var latest []core.PriceRecord
	q := store.Query{
		Filters: []store.Filter{store.Where("symbol", store.OpEq, "AAPL")},
		OrderBy: "date",
		Desc:    true,
		Limit:   1,
	}
	require.NoError(t, s.Query(ctx, store.CollectionPricesDaily, q, &latest))
	require.Len(t, latest, 1)
	assert.True(t, latest[0].Close.Equal(decimal.NewFromInt(104)))
}

func TestStore_Delete(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, store.CollectionWatchlist, "w1", core.WatchlistItem{Symbol: "AAPL"}))
	require.NoError(t, s.Delete(ctx, store.CollectionWatchlist, "w1"))

	var got core.WatchlistItem
	assert.ErrorIs(t, s.Get(ctx, store.CollectionWatchlist, "w1", &got), core.ErrNotFound)

	// Deleting again is not an error.
	assert.NoError(t, s.Delete(ctx, store.CollectionWatchlist, "w1"))
}

func TestStore_QueryDecimalRange(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i, sym := range []string{"A", "B", "C"} {
		p := core.IntradayPrice{Symbol: sym, Price: decimal.NewFromInt(int64(100 * (i + 1)))}
		require.NoError(t, s.Upsert(ctx, store.CollectionPricesIntraday, sym, p))
	}

	var cheap []core.IntradayPrice
	q := store.Query{Filters: []store.Filter{store.Where("price", store.OpLte, decimal.NewFromInt(200))}}
	require.NoError(t, s.Query(ctx, store.CollectionPricesIntraday, q, &cheap))
	assert.Len(t, cheap, 2)
}
