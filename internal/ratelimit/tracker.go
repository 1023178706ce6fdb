// Package ratelimit tracks per-provider call counts against daily quotas.
// This is a coarse process-lifetime limiter, not a precise sliding window:
// counters are not persisted and reset to zero on restart.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/core"
)

// DefaultQuotas are conservative free-tier daily call limits.
var DefaultQuotas = map[core.Provider]int{
	core.ProviderAlphaVantage: 100,
	core.ProviderFinnhub:      250,
	core.ProviderPolygon:      100,
	core.ProviderTiingo:       500,
}

const fallbackQuota = 100

// Snapshot is a point-in-time view of the tracker state.
type Snapshot struct {
	Counts    map[core.Provider]int `json:"call_counts"`
	Quotas    map[core.Provider]int `json:"quotas"`
	LastReset time.Time             `json:"last_reset"`
}

// Tracker counts calls per provider within a rolling daily window.
// The reset is global: once 24h have elapsed since the last reset, the
// next CanCall clears every provider's count, not just the caller's.
type Tracker struct {
	mu        sync.Mutex
	counts    map[core.Provider]int
	quotas    map[core.Provider]int
	lastReset time.Time
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock substitutes the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// New creates a Tracker with the given quotas. A nil map uses DefaultQuotas.
func New(quotas map[core.Provider]int, opts ...Option) *Tracker {
	if quotas == nil {
		quotas = DefaultQuotas
	}
	t := &Tracker{
		counts: make(map[core.Provider]int),
		quotas: quotas,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastReset = t.now()
	return t
}

// resetIfNeeded clears all counters when a day has elapsed. Caller holds mu.
func (t *Tracker) resetIfNeeded() {
	now := t.now()
	if now.Sub(t.lastReset) >= 24*time.Hour {
		t.counts = make(map[core.Provider]int)
		t.lastReset = now
		t.logger.Info("api call counters reset")
	}
}

// CanCall reports whether a call to the provider fits in the remaining
// daily budget. It triggers the lazy daily reset as a side effect.
func (t *Tracker) CanCall(provider core.Provider) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfNeeded()

	quota, ok := t.quotas[provider]
	if !ok {
		quota = fallbackQuota
	}
	return t.counts[provider] < quota
}

// RecordCall counts one issued call against the provider's budget.
// The call counts regardless of whether the fetch returned data.
func (t *Tracker) RecordCall(provider core.Provider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[provider]++
}

// Snapshot returns a copy of the current counters and quotas.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	counts := make(map[core.Provider]int, len(t.counts))
	for p, c := range t.counts {
		counts[p] = c
	}
	quotas := make(map[core.Provider]int, len(t.quotas))
	for p, q := range t.quotas {
		quotas[p] = q
	}
	return Snapshot{Counts: counts, Quotas: quotas, LastReset: t.lastReset}
}
