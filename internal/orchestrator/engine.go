// Package orchestrator drives multi-provider data collection over the
// watchlist and the active position book, distributing symbols across
// providers and honoring daily call budgets.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/metrics"
	"github.com/dhumphrey11/moda-trading/internal/provider"
	"github.com/dhumphrey11/moda-trading/internal/ratelimit"
	"github.com/dhumphrey11/moda-trading/internal/storage/archive"
	"github.com/dhumphrey11/moda-trading/internal/store"
)

// Stage identifies one collection pass.
type Stage string

const (
	StageNews         Stage = "news"
	StageIntraday     Stage = "intraday"
	StageDaily        Stage = "daily"
	StageFundamentals Stage = "fundamentals"
)

// stageProviders maps each stage to the providers able to serve it, in
// distribution order. Daily prices are the only stage every vendor supports.
var stageProviders = map[Stage][]core.Provider{
	StageNews:         {core.ProviderFinnhub},
	StageIntraday:     {core.ProviderFinnhub, core.ProviderAlphaVantage},
	StageDaily:        {core.ProviderAlphaVantage, core.ProviderFinnhub, core.ProviderPolygon, core.ProviderTiingo},
	StageFundamentals: {core.ProviderAlphaVantage, core.ProviderFinnhub},
}

// Options tune the engine's timing behavior.
type Options struct {
	// Pacing is the per-symbol delay within a stage.
	Pacing map[Stage]time.Duration
	// NewsToIntraday, IntradayToDaily and DailyToFundamentals are the
	// delays between consecutive stages of a full cycle.
	NewsToIntraday      time.Duration
	IntradayToDaily     time.Duration
	DailyToFundamentals time.Duration
	// FundamentalsHours restricts the fundamentals stage to these local
	// hours. Empty means always allowed.
	FundamentalsHours []int
	// Archive, when set, receives a blob snapshot of each symbol's daily
	// bars after they are stored.
	Archive *archive.Archiver

	// Test seams.
	Sleep func(ctx context.Context, d time.Duration) error
	Clock func() time.Time
}

// DefaultOptions returns the standard cadence.
func DefaultOptions() Options {
	return Options{
		Pacing: map[Stage]time.Duration{
			StageIntraday:     500 * time.Millisecond,
			StageDaily:        1 * time.Second,
			StageFundamentals: 2 * time.Second,
		},
		NewsToIntraday:      5 * time.Second,
		IntradayToDaily:     10 * time.Second,
		DailyToFundamentals: 10 * time.Second,
		FundamentalsHours:   []int{9, 15},
	}
}

// StageResult summarizes one stage run.
type StageResult struct {
	Stage     Stage     `json:"stage"`
	Symbols   int       `json:"symbols"`
	Fetched   int       `json:"records_fetched"`
	Stored    int       `json:"records_stored"`
	Skipped   int       `json:"symbols_skipped"`
	Errors    int       `json:"errors"`
	StartedAt time.Time `json:"started_at"`
	Elapsed   float64   `json:"elapsed_seconds"`
}

// CycleResult summarizes a full collection cycle.
type CycleResult struct {
	Stages    []StageResult `json:"stages"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   float64       `json:"elapsed_seconds"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	ActivePositions int                       `json:"active_positions_count"`
	WatchlistCount  int                       `json:"watchlist_count"`
	RateBudget      ratelimit.Snapshot        `json:"rate_budget"`
	LastRuns        map[Stage]time.Time       `json:"last_runs"`
	Providers       []core.Provider           `json:"providers"`
	Stages          map[Stage][]core.Provider `json:"stage_providers"`
}

// Engine coordinates the collection stages.
type Engine struct {
	store   store.Store
	clients map[core.Provider]provider.Client
	tracker *ratelimit.Tracker
	metrics *metrics.Registry
	logger  *zap.Logger
	opts    Options

	mu       sync.Mutex
	lastRuns map[Stage]time.Time
}

// NewEngine creates a collection engine over the given provider clients.
func NewEngine(st store.Store, clients []provider.Client, tracker *ratelimit.Tracker, reg *metrics.Registry, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Pacing == nil {
		opts.Pacing = DefaultOptions().Pacing
	}

	byName := make(map[core.Provider]provider.Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	return &Engine{
		store:    st,
		clients:  byName,
		tracker:  tracker,
		metrics:  reg,
		logger:   logger,
		opts:     opts,
		lastRuns: make(map[Stage]time.Time),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// stageClients returns the configured clients able to serve a stage, in
// the stage's distribution order.
func (e *Engine) stageClients(stage Stage) []provider.Client {
	var clients []provider.Client
	for _, name := range stageProviders[stage] {
		if c, ok := e.clients[name]; ok {
			clients = append(clients, c)
		}
	}
	return clients
}

// pickClient selects the provider for the i-th symbol of a stage run.
// Symbols are distributed across the stage's configured providers by
// index; a budget denial skips the symbol rather than redirecting it to
// another provider, so each budget drains at its own documented rate.
func (e *Engine) pickClient(stage Stage, clients []provider.Client, i int) (provider.Client, bool) {
	if len(clients) == 0 {
		return nil, false
	}
	client := clients[i%len(clients)]
	if !e.tracker.CanCall(client.Name()) {
		if e.metrics != nil {
			e.metrics.RecordRateLimitDenial(string(client.Name()))
		}
		e.logger.Warn("provider budget exhausted",
			zap.String("provider", string(client.Name())),
			zap.String("stage", string(stage)))
		return nil, false
	}
	return client, true
}

func (e *Engine) issueCall(client provider.Client, stage Stage) {
	e.tracker.RecordCall(client.Name())
	if e.metrics != nil {
		e.metrics.RecordProviderCall(string(client.Name()), string(stage))
	}
}

// watchlistSymbols reads the watchlist fresh, highest priority first.
// Every stage re-reads so mid-cycle additions are picked up.
func (e *Engine) watchlistSymbols(ctx context.Context) ([]string, error) {
	var items []core.WatchlistItem
	q := store.Query{OrderBy: "priority"}
	if err := e.store.Query(ctx, store.CollectionWatchlist, q, &items); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	symbols := make([]string, 0, len(items))
	for _, item := range items {
		symbols = append(symbols, item.Symbol)
	}
	if e.metrics != nil {
		e.metrics.SetWatchlistSize(len(symbols))
	}
	return symbols, nil
}

// activeSymbols reads the symbols with an open position. Held symbols
// are refreshed even when they have dropped off the watchlist.
func (e *Engine) activeSymbols(ctx context.Context) ([]string, error) {
	var positions []core.Position
	q := store.Query{
		Filters: []store.Filter{store.Where("status", store.OpEq, string(core.PositionActive))},
	}
	if err := e.store.Query(ctx, store.CollectionPositionsActive, q, &positions); err != nil {
		return nil, core.WrapError(core.ErrStoreFailed, err)
	}
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	return symbols, nil
}

// dailySymbols is the watchlist and the active position symbols,
// deduplicated, watchlist first.
func (e *Engine) dailySymbols(ctx context.Context) ([]string, error) {
	watchlist, err := e.watchlistSymbols(ctx)
	if err != nil {
		return nil, err
	}
	active, err := e.activeSymbols(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(watchlist))
	symbols := watchlist
	for _, s := range watchlist {
		seen[s] = true
	}
	for _, s := range active {
		if !seen[s] {
			seen[s] = true
			symbols = append(symbols, s)
		}
	}
	return symbols, nil
}

func (e *Engine) finishStage(res *StageResult) {
	res.Elapsed = e.opts.Clock().Sub(res.StartedAt).Seconds()
	e.mu.Lock()
	e.lastRuns[res.Stage] = res.StartedAt
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.RecordStage(string(res.Stage), res.Elapsed)
	}
	e.logger.Info("collection stage finished",
		zap.String("stage", string(res.Stage)),
		zap.Int("symbols", res.Symbols),
		zap.Int("stored", res.Stored),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", res.Errors),
		zap.Float64("elapsed_seconds", res.Elapsed))
}

// CollectNews fetches market-wide news. A single call per run; articles
// get random ids since vendors provide no stable key. A spent budget
// skips the run without failing it.
func (e *Engine) CollectNews(ctx context.Context) (StageResult, error) {
	res := StageResult{Stage: StageNews, StartedAt: e.opts.Clock()}
	defer e.finishStage(&res)

	client, ok := e.pickClient(StageNews, e.stageClients(StageNews), 0)
	if !ok {
		res.Skipped++
		return res, nil
	}

	e.issueCall(client, StageNews)
	articles, err := client.FetchNews(ctx, "")
	if err != nil {
		res.Errors++
		return res, err
	}
	res.Fetched = len(articles)

	for _, article := range articles {
		id := uuid.NewString()
		if err := e.store.Upsert(ctx, store.CollectionNews, id, article); err != nil {
			res.Errors++
			continue
		}
		res.Stored++
	}
	return res, nil
}

// CollectIntraday fetches the latest quote for each symbol with an open
// position, and company news alongside each quote when the news budget
// allows.
func (e *Engine) CollectIntraday(ctx context.Context) (StageResult, error) {
	res := StageResult{Stage: StageIntraday, StartedAt: e.opts.Clock()}
	defer e.finishStage(&res)

	symbols, err := e.activeSymbols(ctx)
	if err != nil {
		return res, err
	}
	res.Symbols = len(symbols)

	clients := e.stageClients(StageIntraday)
	for i, symbol := range symbols {
		if i > 0 {
			if err := e.opts.Sleep(ctx, e.opts.Pacing[StageIntraday]); err != nil {
				return res, err
			}
		}

		client, ok := e.pickClient(StageIntraday, clients, i)
		if !ok {
			res.Skipped++
			continue
		}

		e.issueCall(client, StageIntraday)
		prices, err := client.FetchIntraday(ctx, symbol)
		if err != nil {
			res.Errors++
			e.logger.Warn("intraday fetch failed",
				zap.String("symbol", symbol),
				zap.String("provider", string(client.Name())),
				zap.Error(err))
		} else {
			res.Fetched += len(prices)
			for _, price := range prices {
				id := fmt.Sprintf("%s_%d", price.Symbol, price.Timestamp.Unix())
				if err := e.store.Upsert(ctx, store.CollectionPricesIntraday, id, price); err != nil {
					res.Errors++
					continue
				}
				res.Stored++
			}
		}

		e.collectCompanyNews(ctx, symbol, i, &res)
	}
	return res, nil
}

// collectCompanyNews piggybacks per-symbol news on the intraday pass.
func (e *Engine) collectCompanyNews(ctx context.Context, symbol string, i int, res *StageResult) {
	client, ok := e.pickClient(StageNews, e.stageClients(StageNews), i)
	if !ok {
		return
	}
	e.issueCall(client, StageNews)
	articles, err := client.FetchNews(ctx, symbol)
	if err != nil {
		e.logger.Debug("company news fetch failed",
			zap.String("symbol", symbol), zap.Error(err))
		return
	}
	for _, article := range articles {
		if err := e.store.Upsert(ctx, store.CollectionNews, uuid.NewString(), article); err == nil {
			res.Stored++
		}
	}
}

// CollectDaily fetches the trailing year of daily bars for the watchlist
// and every held symbol. Bars are keyed by (symbol, date) so re-runs
// overwrite in place.
func (e *Engine) CollectDaily(ctx context.Context) (StageResult, error) {
	res := StageResult{Stage: StageDaily, StartedAt: e.opts.Clock()}
	defer e.finishStage(&res)

	symbols, err := e.dailySymbols(ctx)
	if err != nil {
		return res, err
	}
	res.Symbols = len(symbols)

	clients := e.stageClients(StageDaily)
	for i, symbol := range symbols {
		if i > 0 {
			if err := e.opts.Sleep(ctx, e.opts.Pacing[StageDaily]); err != nil {
				return res, err
			}
		}

		client, ok := e.pickClient(StageDaily, clients, i)
		if !ok {
			res.Skipped++
			continue
		}

		e.issueCall(client, StageDaily)
		records, err := client.FetchDailyPrices(ctx, symbol)
		if err != nil {
			res.Errors++
			e.logger.Warn("daily fetch failed",
				zap.String("symbol", symbol),
				zap.String("provider", string(client.Name())),
				zap.Error(err))
			continue
		}
		res.Fetched += len(records)

		for _, rec := range records {
			id := fmt.Sprintf("%s_%s", rec.Symbol, rec.Date.Format("2006-01-02"))
			if err := e.store.Upsert(ctx, store.CollectionPricesDaily, id, rec); err != nil {
				res.Errors++
				continue
			}
			res.Stored++
		}
		e.archiveDaily(ctx, symbol, res.StartedAt, records)
	}
	return res, nil
}

// archiveDaily snapshots a symbol's fetched bars to blob storage. Failures
// are logged, not fatal; the store already holds the data.
func (e *Engine) archiveDaily(ctx context.Context, symbol string, day time.Time, records []core.PriceRecord) {
	if e.opts.Archive == nil || len(records) == 0 {
		return
	}
	if _, err := e.opts.Archive.SnapshotDailyPrices(ctx, symbol, day, records); err != nil {
		e.logger.Warn("daily price archive failed",
			zap.String("symbol", symbol), zap.Error(err))
	}
}

// CollectFundamentals fetches company fundamentals per watchlist symbol.
// The stage only runs during the configured hours; outside them it is a
// no-op.
func (e *Engine) CollectFundamentals(ctx context.Context) (StageResult, error) {
	res := StageResult{Stage: StageFundamentals, StartedAt: e.opts.Clock()}
	defer e.finishStage(&res)

	if !e.fundamentalsHourAllowed() {
		e.logger.Info("fundamentals stage outside allowed hours, skipping",
			zap.Int("hour", e.opts.Clock().Hour()))
		return res, nil
	}

	symbols, err := e.watchlistSymbols(ctx)
	if err != nil {
		return res, err
	}
	res.Symbols = len(symbols)

	clients := e.stageClients(StageFundamentals)
	for i, symbol := range symbols {
		if i > 0 {
			if err := e.opts.Sleep(ctx, e.opts.Pacing[StageFundamentals]); err != nil {
				return res, err
			}
		}

		client, ok := e.pickClient(StageFundamentals, clients, i)
		if !ok {
			res.Skipped++
			continue
		}

		e.issueCall(client, StageFundamentals)
		rec, err := client.FetchFundamentals(ctx, symbol)
		if err != nil {
			res.Errors++
			e.logger.Warn("fundamentals fetch failed",
				zap.String("symbol", symbol),
				zap.String("provider", string(client.Name())),
				zap.Error(err))
			continue
		}
		res.Fetched++

		id := fmt.Sprintf("%s_%s", rec.Symbol, rec.CreatedAt.Format("2006-01-02"))
		if err := e.store.Upsert(ctx, store.CollectionFundamentals, id, *rec); err != nil {
			res.Errors++
			continue
		}
		res.Stored++
	}
	return res, nil
}

func (e *Engine) fundamentalsHourAllowed() bool {
	if len(e.opts.FundamentalsHours) == 0 {
		return true
	}
	hour := e.opts.Clock().Hour()
	for _, h := range e.opts.FundamentalsHours {
		if h == hour {
			return true
		}
	}
	return false
}

// RunFullCycle runs all four stages in order with inter-stage delays.
// A stage error is recorded but does not abort the cycle; context
// cancellation does.
func (e *Engine) RunFullCycle(ctx context.Context) (CycleResult, error) {
	cycle := CycleResult{StartedAt: e.opts.Clock()}
	e.logger.Info("full collection cycle started")

	run := func(fn func(context.Context) (StageResult, error), delay time.Duration) error {
		res, err := fn(ctx)
		cycle.Stages = append(cycle.Stages, res)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.Warn("stage finished with error",
				zap.String("stage", string(res.Stage)), zap.Error(err))
		}
		if delay > 0 {
			return e.opts.Sleep(ctx, delay)
		}
		return nil
	}

	if err := run(e.CollectNews, e.opts.NewsToIntraday); err != nil {
		return cycle, err
	}
	if err := run(e.CollectIntraday, e.opts.IntradayToDaily); err != nil {
		return cycle, err
	}
	if err := run(e.CollectDaily, e.opts.DailyToFundamentals); err != nil {
		return cycle, err
	}
	if err := run(e.CollectFundamentals, 0); err != nil {
		return cycle, err
	}

	cycle.Elapsed = e.opts.Clock().Sub(cycle.StartedAt).Seconds()
	e.logger.Info("full collection cycle finished",
		zap.Float64("elapsed_seconds", cycle.Elapsed))
	return cycle, nil
}

// Status reports symbol counts, the current rate budget and last stage
// run times.
func (e *Engine) Status(ctx context.Context) Status {
	e.mu.Lock()
	lastRuns := make(map[Stage]time.Time, len(e.lastRuns))
	for s, t := range e.lastRuns {
		lastRuns[s] = t
	}
	e.mu.Unlock()

	providers := make([]core.Provider, 0, len(e.clients))
	for _, p := range core.AllProviders {
		if _, ok := e.clients[p]; ok {
			providers = append(providers, p)
		}
	}

	status := Status{
		RateBudget: e.tracker.Snapshot(),
		LastRuns:   lastRuns,
		Providers:  providers,
		Stages:     stageProviders,
	}
	if active, err := e.activeSymbols(ctx); err == nil {
		status.ActivePositions = len(active)
	}
	if watchlist, err := e.watchlistSymbols(ctx); err == nil {
		status.WatchlistCount = len(watchlist)
	}
	return status
}
