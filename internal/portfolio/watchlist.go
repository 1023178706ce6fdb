package portfolio

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/provider"
	"github.com/dhumphrey11/moda-trading/internal/store"
)

// AddToWatchlist adds a symbol to the watchlist. Adding an already
// watched symbol updates it in place rather than duplicating.
func (m *Manager) AddToWatchlist(ctx context.Context, item core.WatchlistItem) (*core.WatchlistItem, error) {
	if err := provider.ValidateSymbol(item.Symbol); err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, err)
	}
	item.Symbol = provider.NormalizeSymbol(item.Symbol)
	if item.Priority < 1 || item.Priority > 5 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("priority %d out of range", item.Priority))
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = m.now()
	}

	if err := m.store.Upsert(ctx, store.CollectionWatchlist, item.Symbol, item); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	item.ID = item.Symbol
	m.logger.Info("watchlist symbol added",
		zap.String("symbol", item.Symbol), zap.Int("priority", item.Priority))
	return &item, nil
}

// RemoveFromWatchlist removes every entry for a symbol. Removing an
// unwatched symbol is not an error.
func (m *Manager) RemoveFromWatchlist(ctx context.Context, symbol string) error {
	symbol = provider.NormalizeSymbol(symbol)

	var items []core.WatchlistItem
	q := store.Query{Filters: []store.Filter{store.Where("symbol", store.OpEq, symbol)}}
	if err := m.store.Query(ctx, store.CollectionWatchlist, q, &items); err != nil {
		return core.WrapError(core.ErrStoreFailed, err)
	}
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = item.Symbol
		}
		if err := m.store.Delete(ctx, store.CollectionWatchlist, id); err != nil {
			return core.WrapError(core.ErrStoreFailed, err)
		}
	}
	if len(items) > 0 {
		m.logger.Info("watchlist symbol removed", zap.String("symbol", symbol))
	}
	return nil
}

// Watchlist lists watched symbols, highest priority first.
func (m *Manager) Watchlist(ctx context.Context) ([]core.WatchlistItem, error) {
	var items []core.WatchlistItem
	q := store.Query{OrderBy: "priority"}
	if err := m.store.Query(ctx, store.CollectionWatchlist, q, &items); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	if m.metrics != nil {
		m.metrics.SetWatchlistSize(len(items))
	}
	return items, nil
}
