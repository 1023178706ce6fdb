package portfolio_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/portfolio"
	"github.com/dhumphrey11/moda-trading/internal/storage/archive"
	"github.com/dhumphrey11/moda-trading/internal/store"
	"github.com/dhumphrey11/moda-trading/internal/store/memory"
)

var testNow = time.Date(2026, 8, 24, 16, 0, 0, 0, time.UTC)

func newManager(t *testing.T, opts ...portfolio.Option) (*portfolio.Manager, store.Store) {
	t.Helper()
	st := memory.New()
	opts = append(opts, portfolio.WithClock(func() time.Time { return testNow }))
	return portfolio.NewManager(st, nil, nil, opts...), st
}

func seedPrice(t *testing.T, st store.Store, symbol string, close float64, date time.Time) {
	t.Helper()
	rec := core.PriceRecord{
		Symbol:   symbol,
		Date:     date,
		Close:    decimal.NewFromFloat(close),
		Provider: core.ProviderFinnhub,
	}
	id := symbol + "_" + date.Format("2006-01-02")
	require.NoError(t, st.Upsert(context.Background(), store.CollectionPricesDaily, id, rec))
}

func buySignal(symbol string, qty int64) core.TradeSignal {
	return core.TradeSignal{
		Symbol:    symbol,
		Kind:      core.TransactionBuy,
		Quantity:  qty,
		CreatedAt: testNow.Add(-time.Hour),
		ExpiresAt: testNow.Add(23 * time.Hour),
	}
}

func sellSignal(symbol string, qty int64) core.TradeSignal {
	s := buySignal(symbol, qty)
	s.Kind = core.TransactionSell
	return s
}

func TestExecuteTrade_BuyOpensPosition(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-24*time.Hour))

	result, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 7))
	require.NoError(t, err)

	tx := result.Transaction
	assert.Equal(t, "AAPL_buy_20260824_160000", tx.ID)
	assert.True(t, tx.Price.Equal(decimal.NewFromInt(100)))
	assert.True(t, tx.TotalAmount.Equal(decimal.NewFromInt(700)))
	assert.True(t, tx.Fees.Equal(decimal.NewFromFloat(0.7)), "got %s", tx.Fees)

	require.NotNil(t, result.Position)
	assert.Equal(t, int64(7), result.Position.Quantity)
	assert.True(t, result.Position.AverageCost.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, core.PositionActive, result.Position.Status)
}

func TestExecuteTrade_PriceLimitOverridesClose(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-24*time.Hour))

	limit := decimal.NewFromInt(95)
	sig := buySignal("AAPL", 2)
	sig.PriceLimit = &limit

	result, err := m.ExecuteTrade(context.Background(), sig)
	require.NoError(t, err)
	assert.True(t, result.Transaction.Price.Equal(limit))
}

func TestExecuteTrade_BuyAveragesUp(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-48*time.Hour))

	_, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 10))
	require.NoError(t, err)

	seedPrice(t, st, "AAPL", 110, testNow.Add(-24*time.Hour))
	result, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 10))
	require.NoError(t, err)

	require.NotNil(t, result.Position)
	assert.Equal(t, int64(20), result.Position.Quantity)
	assert.True(t, result.Position.AverageCost.Equal(decimal.NewFromInt(105)),
		"got %s", result.Position.AverageCost)
}

func TestExecuteTrade_FullSellClosesPosition(t *testing.T) {
	fs, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	m, st := newManager(t, portfolio.WithArchiver(archive.NewArchiver(fs)))
	seedPrice(t, st, "AAPL", 100, testNow.Add(-24*time.Hour))

	_, err = m.ExecuteTrade(context.Background(), buySignal("AAPL", 5))
	require.NoError(t, err)

	result, err := m.ExecuteTrade(context.Background(), sellSignal("AAPL", 5))
	require.NoError(t, err)
	assert.True(t, result.Closed)
	require.NotNil(t, result.Position)
	assert.Equal(t, core.PositionClosed, result.Position.Status)
	assert.Equal(t, int64(0), result.Position.Quantity)
	require.NotNil(t, result.Position.ClosedAt)

	active, err := m.ActivePositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	history, err := m.PositionHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, core.PositionClosed, history[0].Status)

	// the close left a cold-storage snapshot behind
	paths, err := fs.List(context.Background(), "positions/AAPL")
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestExecuteTrade_OversizedSellClosesFully(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-24*time.Hour))

	_, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 5))
	require.NoError(t, err)

	result, err := m.ExecuteTrade(context.Background(), sellSignal("AAPL", 50))
	require.NoError(t, err)
	assert.True(t, result.Closed)
}

func TestExecuteTrade_PartialSellKeepsAverageCost(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-24*time.Hour))

	_, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 10))
	require.NoError(t, err)

	result, err := m.ExecuteTrade(context.Background(), sellSignal("AAPL", 4))
	require.NoError(t, err)
	assert.False(t, result.Closed)
	require.NotNil(t, result.Position)
	assert.Equal(t, int64(6), result.Position.Quantity)
	assert.True(t, result.Position.AverageCost.Equal(decimal.NewFromInt(100)))
}

func TestExecuteTrade_SellWithoutPositionRecordsTransactionOnly(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-24*time.Hour))

	result, err := m.ExecuteTrade(context.Background(), sellSignal("AAPL", 3))
	require.NoError(t, err)
	assert.Nil(t, result.Position)

	txs, err := m.Transactions(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestExecuteTrade_RejectsExpiredSignal(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-24*time.Hour))

	sig := buySignal("AAPL", 1)
	sig.CreatedAt = testNow.Add(-48 * time.Hour)
	sig.ExpiresAt = testNow.Add(-24 * time.Hour)

	_, err := m.ExecuteTrade(context.Background(), sig)
	assert.ErrorIs(t, err, core.ErrTradeFailed)
}

func TestExecuteTrade_RejectsInvalidSignal(t *testing.T) {
	m, _ := newManager(t)
	sig := buySignal("AAPL", 0)
	_, err := m.ExecuteTrade(context.Background(), sig)
	assert.ErrorIs(t, err, core.ErrInvalidSignal)
}

func TestExecuteTrade_NoPriceFails(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 1))
	assert.ErrorIs(t, err, core.ErrNoPrice)
}

func TestUpdatePositionValues(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-48*time.Hour))

	_, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 10))
	require.NoError(t, err)

	seedPrice(t, st, "AAPL", 120, testNow.Add(-24*time.Hour))
	updated, err := m.UpdatePositionValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	positions, err := m.ActivePositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	pos := positions[0]
	require.NotNil(t, pos.MarketValue)
	assert.True(t, pos.MarketValue.Equal(decimal.NewFromInt(1200)))
	require.NotNil(t, pos.UnrealizedPNL)
	assert.True(t, pos.UnrealizedPNL.Equal(decimal.NewFromInt(200)))
}

func TestProcessPendingSignals(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-24*time.Hour))

	fresh := buySignal("AAPL", 2)
	expired := buySignal("MSFT", 1)
	expired.CreatedAt = testNow.Add(-23 * time.Hour)
	expired.ExpiresAt = testNow.Add(-time.Hour)
	require.NoError(t, st.Upsert(context.Background(), store.CollectionTradeSignals, "s1", fresh))
	require.NoError(t, st.Upsert(context.Background(), store.CollectionTradeSignals, "s2", expired))

	run, err := m.ProcessPendingSignals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Executed)
	assert.Equal(t, 1, run.Skipped)
	assert.Equal(t, 0, run.Failed)
}

func TestPortfolioSummary(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-48*time.Hour))
	seedPrice(t, st, "MSFT", 200, testNow.Add(-48*time.Hour))

	_, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 10))
	require.NoError(t, err)
	_, err = m.ExecuteTrade(context.Background(), buySignal("MSFT", 5))
	require.NoError(t, err)

	seedPrice(t, st, "AAPL", 110, testNow.Add(-24*time.Hour))
	seedPrice(t, st, "MSFT", 190, testNow.Add(-24*time.Hour))
	_, err = m.UpdatePositionValues(context.Background())
	require.NoError(t, err)

	summary, err := m.PortfolioSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PositionCount)
	assert.True(t, summary.TotalCost.Equal(decimal.NewFromInt(2000)), "got %s", summary.TotalCost)
	assert.True(t, summary.TotalValue.Equal(decimal.NewFromInt(2050)), "got %s", summary.TotalValue)
	assert.True(t, summary.UnrealizedPNL.Equal(decimal.NewFromInt(50)), "got %s", summary.UnrealizedPNL)
}

func TestHoldingsPerformance(t *testing.T) {
	m, st := newManager(t)
	seedPrice(t, st, "AAPL", 100, testNow.Add(-48*time.Hour))

	_, err := m.ExecuteTrade(context.Background(), buySignal("AAPL", 10))
	require.NoError(t, err)

	seedPrice(t, st, "AAPL", 110, testNow.Add(-24*time.Hour))
	_, err = m.UpdatePositionValues(context.Background())
	require.NoError(t, err)

	holdings, err := m.HoldingsPerformance(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	h := holdings[0]
	assert.Equal(t, "AAPL", h.Symbol)
	require.NotNil(t, h.ReturnPct)
	assert.True(t, h.ReturnPct.Equal(decimal.NewFromInt(10)), "got %s", h.ReturnPct)
}
