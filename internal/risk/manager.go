// Package risk sizes trades and enforces portfolio-level limits.
package risk

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/store"
)

// Policy holds the risk parameters applied to every trade decision.
type Policy struct {
	MaxPositionPct decimal.Decimal // cap on a single position, fraction of portfolio
	StopLossPct    decimal.Decimal // distance below (buy) or above (sell) entry
	TakeProfitPct  decimal.Decimal // distance above (buy) or below (sell) entry
	// MaxSectorPct and MaxDrawdownPct are declared policy limits that are
	// not yet enforced anywhere; they are carried for configuration and
	// reporting only.
	MaxSectorPct   decimal.Decimal
	MaxDrawdownPct decimal.Decimal
	MinConfidence  float64
	MaxPositions   int
}

// DefaultPolicy returns the standard policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxPositionPct: decimal.NewFromFloat(0.10),
		StopLossPct:    decimal.NewFromFloat(0.08),
		TakeProfitPct:  decimal.NewFromFloat(0.15),
		MaxSectorPct:   decimal.NewFromFloat(0.30),
		MaxDrawdownPct: decimal.NewFromFloat(0.20),
		MinConfidence:  80,
		MaxPositions:   20,
	}
}

// defaultPortfolioValue stands in when no position carries a market
// value yet, so sizing stays sane while the portfolio is empty.
var defaultPortfolioValue = decimal.NewFromInt(10000)

// Manager evaluates positions against the policy.
type Manager struct {
	store  store.Store
	policy Policy
	logger *zap.Logger
}

// NewManager creates a risk manager.
func NewManager(st store.Store, policy Policy, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: st, policy: policy, logger: logger}
}

// Policy returns the active policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// PortfolioValue sums the market value of all active positions.
// Positions that have not been revalued yet contribute nothing. A total
// of zero falls back to defaultPortfolioValue.
func (m *Manager) PortfolioValue(ctx context.Context) (decimal.Decimal, error) {
	var positions []core.Position
	err := m.store.Query(ctx, store.CollectionPositionsActive, store.Query{}, &positions)
	if err != nil {
		return decimal.Zero, core.WrapError(core.ErrStoreFailed, err)
	}

	total := decimal.Zero
	for _, p := range positions {
		if p.MarketValue != nil {
			total = total.Add(*p.MarketValue)
		}
	}
	if total.IsZero() {
		return defaultPortfolioValue, nil
	}
	return total, nil
}

// PositionSize converts model confidence into a share count. The position
// fraction scales linearly with confidence up to the policy cap, then is
// scaled down again by confidence as a fraction of 100. Always at least
// one share.
func (m *Manager) PositionSize(confidence float64, price, portfolioValue decimal.Decimal) (int64, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return 0, core.ErrNoPrice
	}

	fraction := decimal.NewFromFloat(confidence / 1000)
	if fraction.GreaterThan(m.policy.MaxPositionPct) {
		fraction = m.policy.MaxPositionPct
	}
	scale := decimal.NewFromFloat(confidence / 100)
	if scale.GreaterThan(decimal.NewFromInt(1)) {
		scale = decimal.NewFromInt(1)
	}

	amount := portfolioValue.Mul(fraction).Mul(scale)
	shares := amount.Div(price).IntPart()
	if shares < 1 {
		shares = 1
	}
	return shares, nil
}

// StopLoss returns the protective exit price for a trade side.
func (m *Manager) StopLoss(price decimal.Decimal, kind core.TransactionKind) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if kind == core.TransactionSell {
		return price.Mul(one.Add(m.policy.StopLossPct))
	}
	return price.Mul(one.Sub(m.policy.StopLossPct))
}

// TakeProfit returns the profit-taking exit price for a trade side.
func (m *Manager) TakeProfit(price decimal.Decimal, kind core.TransactionKind) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if kind == core.TransactionSell {
		return price.Mul(one.Sub(m.policy.TakeProfitPct))
	}
	return price.Mul(one.Add(m.policy.TakeProfitPct))
}

// CanOpenPosition reports whether a new position fits under the active
// position count limit.
func (m *Manager) CanOpenPosition(ctx context.Context) (bool, error) {
	var positions []core.Position
	err := m.store.Query(ctx, store.CollectionPositionsActive, store.Query{}, &positions)
	if err != nil {
		return false, core.WrapError(core.ErrStoreFailed, err)
	}
	if len(positions) >= m.policy.MaxPositions {
		m.logger.Warn("position limit reached",
			zap.Int("active", len(positions)),
			zap.Int("max", m.policy.MaxPositions))
		return false, nil
	}
	return true, nil
}

// PositionValue returns the current value of the active position in a
// symbol, or zero when none exists.
func (m *Manager) PositionValue(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var positions []core.Position
	q := store.Query{Filters: []store.Filter{store.Where("symbol", store.OpEq, symbol)}}
	if err := m.store.Query(ctx, store.CollectionPositionsActive, q, &positions); err != nil {
		return decimal.Zero, core.WrapError(core.ErrStoreFailed, err)
	}
	if len(positions) == 0 {
		return decimal.Zero, nil
	}
	p := positions[0]
	if p.MarketValue != nil {
		return *p.MarketValue, nil
	}
	return p.CostBasis(), nil
}
