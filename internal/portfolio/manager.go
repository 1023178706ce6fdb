// Package portfolio executes trade signals against the paper portfolio
// and maintains positions, transactions and the watchlist.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/metrics"
	"github.com/dhumphrey11/moda-trading/internal/notifier"
	"github.com/dhumphrey11/moda-trading/internal/storage/archive"
	"github.com/dhumphrey11/moda-trading/internal/store"
)

// defaultFeeRate is the simulated commission, a fraction of trade value.
var defaultFeeRate = decimal.NewFromFloat(0.001)

// TradeResult is the outcome of one executed signal.
type TradeResult struct {
	Transaction core.Transaction `json:"transaction"`
	Position    *core.Position   `json:"position,omitempty"`
	Closed      bool             `json:"position_closed"`
}

// Summary aggregates the active portfolio.
type Summary struct {
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	UnrealizedPNL decimal.Decimal `json:"unrealized_pnl"`
	PositionCount int             `json:"position_count"`
	Positions     []core.Position `json:"positions"`
}

// HoldingPerformance is per-position performance.
type HoldingPerformance struct {
	Symbol        string           `json:"symbol"`
	Quantity      int64            `json:"quantity"`
	AverageCost   decimal.Decimal  `json:"average_cost"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	MarketValue   *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPNL *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	ReturnPct     *decimal.Decimal `json:"return_pct,omitempty"`
}

// SignalRunResult summarizes a pending-signal processing pass.
type SignalRunResult struct {
	Executed int           `json:"executed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Results  []TradeResult `json:"results"`
}

// Manager owns portfolio state transitions.
type Manager struct {
	store     store.Store
	archiver  *archive.Archiver
	notifiers *notifier.Registry
	metrics   *metrics.Registry
	logger    *zap.Logger
	feeRate   decimal.Decimal
	now       func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithFeeRate overrides the simulated commission rate.
func WithFeeRate(rate decimal.Decimal) Option {
	return func(m *Manager) { m.feeRate = rate }
}

// WithClock substitutes the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithArchiver attaches cold-storage snapshots for closed positions.
func WithArchiver(a *archive.Archiver) Option {
	return func(m *Manager) { m.archiver = a }
}

// WithNotifiers attaches event notification.
func WithNotifiers(r *notifier.Registry) Option {
	return func(m *Manager) { m.notifiers = r }
}

// NewManager creates a portfolio manager.
func NewManager(st store.Store, reg *metrics.Registry, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:   st,
		metrics: reg,
		logger:  logger,
		feeRate: defaultFeeRate,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ExecuteTrade executes one signal synchronously: it records a
// transaction and applies the position state change. Sells without a
// position still record the transaction but touch no position.
func (m *Manager) ExecuteTrade(ctx context.Context, signal core.TradeSignal) (*TradeResult, error) {
	if err := signal.Validate(); err != nil {
		m.recordTradeMetric(signal.Kind, "rejected")
		return nil, err
	}
	now := m.now()
	if signal.Expired(now) {
		m.recordTradeMetric(signal.Kind, "rejected")
		return nil, core.WrapError(core.ErrTradeFailed, fmt.Errorf("signal for %s expired at %s", signal.Symbol, signal.ExpiresAt))
	}

	price, err := m.executionPrice(ctx, signal)
	if err != nil {
		m.recordTradeMetric(signal.Kind, "failed")
		return nil, err
	}

	quantity := decimal.NewFromInt(signal.Quantity)
	total := price.Mul(quantity)
	fees := total.Mul(m.feeRate)

	tx := core.Transaction{
		Symbol:      signal.Symbol,
		Kind:        signal.Kind,
		Quantity:    signal.Quantity,
		Price:       price,
		TotalAmount: total,
		Fees:        fees,
		ExecutedAt:  now,
	}
	txID := fmt.Sprintf("%s_%s_%s", tx.Symbol, tx.Kind, now.Format("20060102_150405"))
	if err := m.store.Upsert(ctx, store.CollectionTransactions, txID, tx); err != nil {
		m.recordTradeMetric(signal.Kind, "failed")
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	tx.ID = txID

	result := &TradeResult{Transaction: tx}
	if signal.Kind == core.TransactionBuy {
		result.Position, err = m.applyBuy(ctx, signal.Symbol, signal.Quantity, price, now)
	} else {
		result.Position, result.Closed, err = m.applySell(ctx, signal.Symbol, signal.Quantity, now)
	}
	if err != nil {
		m.recordTradeMetric(signal.Kind, "failed")
		return nil, err
	}

	m.recordTradeMetric(signal.Kind, "executed")
	m.notify(notifier.Event{
		Kind:   notifier.EventTradeExecuted,
		Symbol: signal.Symbol,
		Detail: map[string]any{
			"action":   string(signal.Kind),
			"quantity": signal.Quantity,
			"price":    price.String(),
			"fees":     fees.String(),
		},
		OccurredAt: now,
	})
	m.logger.Info("trade executed",
		zap.String("symbol", signal.Symbol),
		zap.String("action", string(signal.Kind)),
		zap.Int64("quantity", signal.Quantity),
		zap.String("price", price.String()))
	return result, nil
}

// executionPrice resolves the fill price: the signal's limit when set,
// otherwise the most recent daily close.
func (m *Manager) executionPrice(ctx context.Context, signal core.TradeSignal) (decimal.Decimal, error) {
	if signal.PriceLimit != nil {
		return *signal.PriceLimit, nil
	}

	var prices []core.PriceRecord
	q := store.Query{
		Filters: []store.Filter{store.Where("symbol", store.OpEq, signal.Symbol)},
		OrderBy: "date",
		Desc:    true,
		Limit:   1,
	}
	if err := m.store.Query(ctx, store.CollectionPricesDaily, q, &prices); err != nil {
		return decimal.Zero, core.WrapError(core.ErrStoreFailed, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, core.WrapError(core.ErrNoPrice, fmt.Errorf("no price for %s", signal.Symbol))
	}
	return prices[0].Close, nil
}

func (m *Manager) applyBuy(ctx context.Context, symbol string, quantity int64, price decimal.Decimal, now time.Time) (*core.Position, error) {
	existing, err := m.activePosition(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		pos := core.Position{
			Symbol:      symbol,
			Quantity:    quantity,
			AverageCost: price,
			Status:      core.PositionActive,
			OpenedAt:    now,
			UpdatedAt:   now,
		}
		if err := m.store.Upsert(ctx, store.CollectionPositionsActive, symbol, pos); err != nil {
			return nil, core.WrapError(core.ErrStoreFailed, err)
		}
		pos.ID = symbol
		return &pos, nil
	}

	// weighted average up
	oldQty := decimal.NewFromInt(existing.Quantity)
	addQty := decimal.NewFromInt(quantity)
	newQty := oldQty.Add(addQty)
	existing.AverageCost = existing.AverageCost.Mul(oldQty).Add(price.Mul(addQty)).Div(newQty)
	existing.Quantity += quantity
	existing.UpdatedAt = now

	if err := m.store.Upsert(ctx, store.CollectionPositionsActive, m.positionID(existing), *existing); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return existing, nil
}

func (m *Manager) applySell(ctx context.Context, symbol string, quantity int64, now time.Time) (*core.Position, bool, error) {
	existing, err := m.activePosition(ctx, symbol)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		m.logger.Warn("sell without active position, transaction recorded only",
			zap.String("symbol", symbol))
		return nil, false, nil
	}

	if quantity >= existing.Quantity {
		return m.closePosition(ctx, existing, now)
	}

	// partial close leaves average cost untouched
	existing.Quantity -= quantity
	existing.UpdatedAt = now
	if err := m.store.Upsert(ctx, store.CollectionPositionsActive, m.positionID(existing), *existing); err != nil {
		return nil, false, core.WrapError(core.ErrStoreFailed, err)
	}
	return existing, false, nil
}

// closePosition moves a position to the history partition in two phases:
// the closed record is archived and copied to history first, then the
// active record is deleted.
func (m *Manager) closePosition(ctx context.Context, pos *core.Position, now time.Time) (*core.Position, bool, error) {
	activeID := m.positionID(pos)

	pos.Status = core.PositionClosed
	pos.ClosedAt = &now
	pos.Quantity = 0
	pos.UpdatedAt = now

	if m.archiver != nil {
		if _, err := m.archiver.SnapshotPosition(ctx, *pos); err != nil {
			m.logger.Warn("position snapshot failed",
				zap.String("symbol", pos.Symbol), zap.Error(err))
		}
	}

	historyID := fmt.Sprintf("%s_%s", pos.Symbol, now.Format("20060102_150405"))
	history := *pos
	history.ID = historyID
	if err := m.store.Upsert(ctx, store.CollectionPositionsHistory, historyID, history); err != nil {
		return nil, false, core.WrapError(core.ErrStoreFailed, err)
	}
	if err := m.store.Delete(ctx, store.CollectionPositionsActive, activeID); err != nil {
		return nil, false, core.WrapError(core.ErrStoreFailed, err)
	}

	m.notify(notifier.Event{
		Kind:       notifier.EventPositionClosed,
		Symbol:     pos.Symbol,
		OccurredAt: now,
	})
	m.logger.Info("position closed", zap.String("symbol", pos.Symbol))
	return &history, true, nil
}

// UpdatePositionValues refreshes each active position against the most
// recent daily close. Positions without a price are left untouched.
func (m *Manager) UpdatePositionValues(ctx context.Context) (int, error) {
	var positions []core.Position
	if err := m.store.Query(ctx, store.CollectionPositionsActive, store.Query{}, &positions); err != nil {
		return 0, core.WrapError(core.ErrStoreFailed, err)
	}

	updated := 0
	for i := range positions {
		pos := positions[i]

		var prices []core.PriceRecord
		q := store.Query{
			Filters: []store.Filter{store.Where("symbol", store.OpEq, pos.Symbol)},
			OrderBy: "date",
			Desc:    true,
			Limit:   1,
		}
		if err := m.store.Query(ctx, store.CollectionPricesDaily, q, &prices); err != nil {
			return updated, core.WrapError(core.ErrStoreFailed, err)
		}
		if len(prices) == 0 {
			m.logger.Debug("no price to revalue position", zap.String("symbol", pos.Symbol))
			continue
		}

		price := prices[0].Close
		marketValue := price.Mul(decimal.NewFromInt(pos.Quantity))
		pnl := marketValue.Sub(pos.CostBasis())

		pos.CurrentPrice = &price
		pos.MarketValue = &marketValue
		pos.UnrealizedPNL = &pnl
		pos.UpdatedAt = m.now()

		if err := m.store.Upsert(ctx, store.CollectionPositionsActive, m.positionID(&pos), pos); err != nil {
			return updated, core.WrapError(core.ErrStoreFailed, err)
		}
		updated++
	}

	if m.metrics != nil {
		m.metrics.SetActivePositions(len(positions))
	}
	return updated, nil
}

// ProcessPendingSignals executes every unexpired signal from the trailing
// day. There is no deduplication; re-running re-executes.
func (m *Manager) ProcessPendingSignals(ctx context.Context) (SignalRunResult, error) {
	var run SignalRunResult

	since := m.now().Add(-24 * time.Hour)
	var signals []core.TradeSignal
	q := store.Query{
		Filters: []store.Filter{store.Where("created_at", store.OpGte, since)},
		OrderBy: "created_at",
	}
	if err := m.store.Query(ctx, store.CollectionTradeSignals, q, &signals); err != nil {
		return run, core.WrapError(core.ErrStoreFailed, err)
	}

	now := m.now()
	for _, signal := range signals {
		if signal.Expired(now) {
			run.Skipped++
			continue
		}
		result, err := m.ExecuteTrade(ctx, signal)
		if err != nil {
			run.Failed++
			m.logger.Warn("pending signal execution failed",
				zap.String("symbol", signal.Symbol), zap.Error(err))
			continue
		}
		run.Executed++
		run.Results = append(run.Results, *result)
	}
	return run, nil
}

// PortfolioSummary aggregates the active positions.
func (m *Manager) PortfolioSummary(ctx context.Context) (Summary, error) {
	var positions []core.Position
	if err := m.store.Query(ctx, store.CollectionPositionsActive, store.Query{}, &positions); err != nil {
		return Summary{}, core.WrapError(core.ErrStoreFailed, err)
	}

	s := Summary{
		TotalValue:    decimal.Zero,
		TotalCost:     decimal.Zero,
		UnrealizedPNL: decimal.Zero,
		PositionCount: len(positions),
		Positions:     positions,
	}
	for _, pos := range positions {
		s.TotalCost = s.TotalCost.Add(pos.CostBasis())
		if pos.MarketValue != nil {
			s.TotalValue = s.TotalValue.Add(*pos.MarketValue)
		} else {
			s.TotalValue = s.TotalValue.Add(pos.CostBasis())
		}
		if pos.UnrealizedPNL != nil {
			s.UnrealizedPNL = s.UnrealizedPNL.Add(*pos.UnrealizedPNL)
		}
	}
	return s, nil
}

// HoldingsPerformance reports per-position performance of the active book.
func (m *Manager) HoldingsPerformance(ctx context.Context) ([]HoldingPerformance, error) {
	var positions []core.Position
	if err := m.store.Query(ctx, store.CollectionPositionsActive, store.Query{}, &positions); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	holdings := make([]HoldingPerformance, 0, len(positions))
	for _, pos := range positions {
		h := HoldingPerformance{
			Symbol:        pos.Symbol,
			Quantity:      pos.Quantity,
			AverageCost:   pos.AverageCost,
			CurrentPrice:  pos.CurrentPrice,
			MarketValue:   pos.MarketValue,
			UnrealizedPNL: pos.UnrealizedPNL,
		}
		cost := pos.CostBasis()
		if pos.UnrealizedPNL != nil && cost.IsPositive() {
			pct := pos.UnrealizedPNL.Div(cost).Mul(decimal.NewFromInt(100))
			h.ReturnPct = &pct
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

// ActivePositions lists the active book.
func (m *Manager) ActivePositions(ctx context.Context) ([]core.Position, error) {
	var positions []core.Position
	if err := m.store.Query(ctx, store.CollectionPositionsActive, store.Query{}, &positions); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return positions, nil
}

// PositionHistory lists closed positions, newest first.
func (m *Manager) PositionHistory(ctx context.Context) ([]core.Position, error) {
	var positions []core.Position
	q := store.Query{OrderBy: "closed_at", Desc: true}
	if err := m.store.Query(ctx, store.CollectionPositionsHistory, q, &positions); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return positions, nil
}

// Transactions lists executed trades, newest first.
func (m *Manager) Transactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	var txs []core.Transaction
	q := store.Query{OrderBy: "executed_at", Desc: true, Limit: limit}
	if err := m.store.Query(ctx, store.CollectionTransactions, q, &txs); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	return txs, nil
}

func (m *Manager) activePosition(ctx context.Context, symbol string) (*core.Position, error) {
	var positions []core.Position
	q := store.Query{Filters: []store.Filter{store.Where("symbol", store.OpEq, symbol)}}
	if err := m.store.Query(ctx, store.CollectionPositionsActive, q, &positions); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}

func (m *Manager) positionID(pos *core.Position) string {
	if pos.ID != "" {
		return pos.ID
	}
	return pos.Symbol
}

func (m *Manager) recordTradeMetric(kind core.TransactionKind, status string) {
	if m.metrics != nil {
		m.metrics.RecordTrade(string(kind), status)
	}
}

func (m *Manager) notify(event notifier.Event) {
	if m.notifiers == nil {
		return
	}
	for name, err := range m.notifiers.NotifyAll(event) {
		m.logger.Warn("notifier failed", zap.String("notifier", name), zap.Error(err))
	}
}
