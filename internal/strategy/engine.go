// Package strategy converts ML recommendations into sized trade signals.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/metrics"
	"github.com/dhumphrey11/moda-trading/internal/notifier"
	"github.com/dhumphrey11/moda-trading/internal/risk"
	"github.com/dhumphrey11/moda-trading/internal/store"
)

// defaultHorizon is how long a generated signal stays valid.
const defaultHorizon = 24 * time.Hour

// recommendationWindow bounds how far back ProcessRecommendations looks.
const recommendationWindow = 24 * time.Hour

// Result summarizes one recommendation processing run.
type Result struct {
	Processed int                `json:"recommendations_processed"`
	Generated []core.TradeSignal `json:"signals_generated"`
	Filtered  int                `json:"filtered"`
	Errors    int                `json:"errors"`
}

// Engine generates trade signals from recommendations.
type Engine struct {
	store     store.Store
	risk      *risk.Manager
	metrics   *metrics.Registry
	notifiers *notifier.Registry
	logger    *zap.Logger
	horizon   time.Duration
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithHorizon overrides the signal validity window.
func WithHorizon(d time.Duration) Option {
	return func(e *Engine) { e.horizon = d }
}

// WithClock substitutes the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNotifiers attaches a notifier registry; generated signals are
// announced fire-and-forget.
func WithNotifiers(reg *notifier.Registry) Option {
	return func(e *Engine) { e.notifiers = reg }
}

// NewEngine creates a strategy engine.
func NewEngine(st store.Store, rm *risk.Manager, reg *metrics.Registry, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:   st,
		risk:    rm,
		metrics: reg,
		logger:  logger,
		horizon: defaultHorizon,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessRecommendations walks the last day of recommendations, newest
// first, and generates at most one signal per symbol. A symbol is only
// marked as handled once a signal was actually produced for it, so an
// older recommendation can still act when the newest one was filtered.
func (e *Engine) ProcessRecommendations(ctx context.Context) (Result, error) {
	var result Result

	since := e.now().Add(-recommendationWindow)
	var recs []core.Recommendation
	q := store.Query{
		Filters: []store.Filter{store.Where("created_at", store.OpGte, since)},
		OrderBy: "created_at",
	}
	if err := e.store.Query(ctx, store.CollectionRecommendations, q, &recs); err != nil {
		return result, core.WrapError(core.ErrStoreFailed, err)
	}

	handled := make(map[string]bool)
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		if handled[rec.Symbol] {
			continue
		}
		result.Processed++

		signal, err := e.generate(ctx, rec)
		if err != nil {
			if isFiltered(err) {
				result.Filtered++
				continue
			}
			result.Errors++
			e.logger.Warn("signal generation failed",
				zap.String("symbol", rec.Symbol), zap.Error(err))
			continue
		}

		result.Generated = append(result.Generated, *signal)
		handled[rec.Symbol] = true
	}

	e.logger.Info("recommendations processed",
		zap.Int("processed", result.Processed),
		zap.Int("generated", len(result.Generated)),
		zap.Int("filtered", result.Filtered),
		zap.Int("errors", result.Errors))
	return result, nil
}

func isFiltered(err error) bool {
	return errors.Is(err, core.ErrSignalFiltered)
}

// generate evaluates one recommendation and, if it survives filtering,
// persists and returns the resulting signal.
func (e *Engine) generate(ctx context.Context, rec core.Recommendation) (*core.TradeSignal, error) {
	switch rec.Kind {
	case core.RecommendationHold:
		return nil, core.WrapError(core.ErrSignalFiltered, fmt.Errorf("hold for %s", rec.Symbol))
	case core.RecommendationBuy, core.RecommendationSell:
	default:
		return nil, core.WrapError(core.ErrSignalFiltered, fmt.Errorf("unknown recommendation %q", rec.Kind))
	}

	price, err := e.latestClose(ctx, rec.Symbol)
	if err != nil {
		return nil, err
	}

	position, err := e.activePosition(ctx, rec.Symbol)
	if err != nil {
		return nil, err
	}

	var kind core.TransactionKind
	var quantity int64

	if rec.Kind == core.RecommendationBuy {
		kind = core.TransactionBuy
		if rec.Confidence < e.risk.Policy().MinConfidence {
			return nil, core.WrapError(core.ErrSignalFiltered,
				fmt.Errorf("confidence %.1f below threshold for %s", rec.Confidence, rec.Symbol))
		}
		if position != nil {
			return nil, core.WrapError(core.ErrSignalFiltered,
				fmt.Errorf("position already open for %s", rec.Symbol))
		}
		ok, err := e.risk.CanOpenPosition(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, core.WrapError(core.ErrSignalFiltered, fmt.Errorf("position limit reached"))
		}

		portfolioValue, err := e.risk.PortfolioValue(ctx)
		if err != nil {
			return nil, err
		}
		quantity, err = e.risk.PositionSize(rec.Confidence, price, portfolioValue)
		if err != nil {
			return nil, err
		}
	} else {
		kind = core.TransactionSell
		if position == nil {
			return nil, core.WrapError(core.ErrSignalFiltered,
				fmt.Errorf("no position to sell for %s", rec.Symbol))
		}
		quantity = position.Quantity
	}

	now := e.now()
	signal := core.TradeSignal{
		Symbol:     rec.Symbol,
		Kind:       kind,
		Quantity:   quantity,
		// Pin execution to the price the sizing was computed against.
		PriceLimit: &price,
		StopLoss:   e.risk.StopLoss(price, kind),
		TakeProfit: e.risk.TakeProfit(price, kind),
		Confidence: rec.Confidence,
		Reasoning:  fmt.Sprintf("ML recommendation with %.1f%% confidence", rec.Confidence),
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.horizon),
	}
	if err := signal.Validate(); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%s_%s", signal.Symbol, now.Format("2006-01-02_15-04-05"))
	if err := e.store.Upsert(ctx, store.CollectionTradeSignals, id, signal); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	signal.ID = id

	if e.metrics != nil {
		e.metrics.RecordSignal(string(kind))
	}
	if e.notifiers != nil {
		for name, err := range e.notifiers.NotifyAll(notifier.Event{
			Kind:   notifier.EventSignalGenerated,
			Symbol: signal.Symbol,
			Detail: map[string]any{
				"action":     string(kind),
				"quantity":   quantity,
				"confidence": rec.Confidence,
			},
			OccurredAt: now,
		}) {
			e.logger.Warn("notifier failed", zap.String("notifier", name), zap.Error(err))
		}
	}
	e.logger.Info("trade signal generated",
		zap.String("symbol", signal.Symbol),
		zap.String("action", string(kind)),
		zap.Int64("quantity", quantity),
		zap.Float64("confidence", rec.Confidence))
	return &signal, nil
}

// GenerateForSymbol runs the pipeline against the newest recommendation
// for one symbol, regardless of its age.
func (e *Engine) GenerateForSymbol(ctx context.Context, symbol string) (*core.TradeSignal, error) {
	var recs []core.Recommendation
	q := store.Query{
		Filters: []store.Filter{store.Where("symbol", store.OpEq, symbol)},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   1,
	}
	if err := e.store.Query(ctx, store.CollectionRecommendations, q, &recs); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if len(recs) == 0 {
		return nil, core.WrapError(core.ErrNotFound, fmt.Errorf("no recommendation for %s", symbol))
	}
	return e.generate(ctx, recs[0])
}

// ActiveSignals returns unexpired signals created within the trailing
// window.
func (e *Engine) ActiveSignals(ctx context.Context, hoursBack int) ([]core.TradeSignal, error) {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	since := e.now().Add(-time.Duration(hoursBack) * time.Hour)

	var signals []core.TradeSignal
	q := store.Query{
		Filters: []store.Filter{store.Where("created_at", store.OpGte, since)},
		OrderBy: "created_at",
		Desc:    true,
	}
	if err := e.store.Query(ctx, store.CollectionTradeSignals, q, &signals); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}

	now := e.now()
	active := signals[:0]
	for _, s := range signals {
		if !s.Expired(now) {
			active = append(active, s)
		}
	}
	return active, nil
}

// latestClose returns the most recent daily close for a symbol.
func (e *Engine) latestClose(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var prices []core.PriceRecord
	q := store.Query{
		Filters: []store.Filter{store.Where("symbol", store.OpEq, symbol)},
		OrderBy: "date",
		Desc:    true,
		Limit:   1,
	}
	if err := e.store.Query(ctx, store.CollectionPricesDaily, q, &prices); err != nil {
		return decimal.Zero, core.WrapError(core.ErrStoreFailed, err)
	}
	if len(prices) == 0 {
		return decimal.Zero, core.WrapError(core.ErrNoPrice, fmt.Errorf("no daily price for %s", symbol))
	}
	return prices[0].Close, nil
}

func (e *Engine) activePosition(ctx context.Context, symbol string) (*core.Position, error) {
	var positions []core.Position
	q := store.Query{Filters: []store.Filter{store.Where("symbol", store.OpEq, symbol)}}
	if err := e.store.Query(ctx, store.CollectionPositionsActive, q, &positions); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if len(positions) == 0 {
		return nil, nil
	}
	return &positions[0], nil
}
