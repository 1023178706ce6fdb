// internal/storage/archive/snapshots.go
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dhumphrey11/moda-trading/internal/core"
)

// Archiver writes domain snapshots to cold storage. The portfolio layer
// snapshots every position before it is removed from the active
// partition, so a full close always leaves a durable record even if the
// history write is lost.
type Archiver struct {
	storage Storage
}

// NewArchiver creates an Archiver over a storage backend.
func NewArchiver(storage Storage) *Archiver {
	return &Archiver{storage: storage}
}

// SnapshotPosition archives a position under positions/<symbol>/<closed-at>.json.
func (a *Archiver) SnapshotPosition(ctx context.Context, pos core.Position) (string, error) {
	data, err := json.Marshal(pos)
	if err != nil {
		return "", fmt.Errorf("marshaling position: %w", err)
	}

	at := pos.UpdatedAt
	if pos.ClosedAt != nil {
		at = *pos.ClosedAt
	}
	path := fmt.Sprintf("positions/%s/%s.json", pos.Symbol, at.UTC().Format("2006-01-02T15-04-05"))
	if err := a.storage.Write(ctx, path, data); err != nil {
		return "", fmt.Errorf("writing position snapshot: %w", err)
	}
	return path, nil
}

// SnapshotDailyPrices archives a day's price records under
// prices/<date>/<symbol>.json, for aging them out of the hot store.
func (a *Archiver) SnapshotDailyPrices(ctx context.Context, symbol string, day time.Time, records []core.PriceRecord) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("marshaling price records: %w", err)
	}

	path := fmt.Sprintf("prices/%s/%s.json", day.UTC().Format("2006-01-02"), symbol)
	if err := a.storage.Write(ctx, path, data); err != nil {
		return "", fmt.Errorf("writing price snapshot: %w", err)
	}
	return path, nil
}

// ReadPosition loads an archived position snapshot.
func (a *Archiver) ReadPosition(ctx context.Context, path string) (*core.Position, error) {
	data, err := a.storage.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	var pos core.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("unmarshaling position snapshot: %w", err)
	}
	return &pos, nil
}

// ListPositionSnapshots returns snapshot paths for a symbol, or all
// symbols when empty.
func (a *Archiver) ListPositionSnapshots(ctx context.Context, symbol string) ([]string, error) {
	prefix := "positions"
	if symbol != "" {
		prefix = "positions/" + symbol
	}
	return a.storage.List(ctx, prefix)
}
