// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/api/job"
	"github.com/dhumphrey11/moda-trading/internal/api/response"
	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/metrics"
	"github.com/dhumphrey11/moda-trading/internal/orchestrator"
	"github.com/dhumphrey11/moda-trading/internal/portfolio"
	"github.com/dhumphrey11/moda-trading/internal/provider"
	"github.com/dhumphrey11/moda-trading/internal/strategy"
)

// collectionTimeout bounds a background collection job.
const collectionTimeout = 30 * time.Minute

// Handler wires the engines to HTTP.
type Handler struct {
	orchestrator *orchestrator.Engine
	strategy     *strategy.Engine
	portfolio    *portfolio.Manager
	jobs         *job.Store
	metrics      *metrics.Registry
	logger       *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(oe *orchestrator.Engine, se *strategy.Engine, pm *portfolio.Manager, jobs *job.Store, reg *metrics.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		orchestrator: oe,
		strategy:     se,
		portfolio:    pm,
		jobs:         jobs,
		metrics:      reg,
		logger:       logger,
	}
}

// Orchestrate starts a collection stage as a background job.
func (h *Handler) Orchestrate(w http.ResponseWriter, r *http.Request) {
	stage := r.PathValue("stage")

	var run func(context.Context) (any, error)
	switch stage {
	case "news":
		run = func(ctx context.Context) (any, error) { return h.orchestrator.CollectNews(ctx) }
	case "intraday":
		run = func(ctx context.Context) (any, error) { return h.orchestrator.CollectIntraday(ctx) }
	case "daily":
		run = func(ctx context.Context) (any, error) { return h.orchestrator.CollectDaily(ctx) }
	case "fundamentals":
		run = func(ctx context.Context) (any, error) { return h.orchestrator.CollectFundamentals(ctx) }
	case "full":
		run = func(ctx context.Context) (any, error) { return h.orchestrator.RunFullCycle(ctx) }
	default:
		response.Error(w, http.StatusNotFound,
			core.WrapError(core.ErrNotFound, nil))
		return
	}

	j := h.jobs.Create("collect_" + stage)
	go h.runJob(j.ID, run)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"stage":  stage,
	})
}

func (h *Handler) runJob(id string, run func(context.Context) (any, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), collectionTimeout)
	defer cancel()

	h.jobs.Update(id, func(j *job.Job) { j.Status = job.StatusRunning })
	h.recordJobGauge()
	defer h.recordJobGauge()

	result, err := run(ctx)
	h.jobs.Update(id, func(j *job.Job) {
		if err != nil {
			j.Status = job.StatusFailed
			var cerr *core.Error
			if errors.As(err, &cerr) {
				j.Error = cerr
			} else {
				j.Error = core.WrapError(core.ErrProviderFailed, err)
			}
		} else {
			j.Status = job.StatusComplete
			j.Progress = 100
		}
		j.Result = result
	})
	if err != nil {
		h.logger.Warn("background job failed", zap.String("job", id), zap.Error(err))
	}
}

func (h *Handler) recordJobGauge() {
	if h.metrics != nil {
		h.metrics.SetJobsActive("collection", h.jobs.Running())
	}
}

// GetJob returns one job's state.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, j)
}

// Status reports orchestrator state and rate budgets.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.orchestrator.Status(r.Context()))
}

// dispatch starts a named background job and replies 202 with its id.
func (h *Handler) dispatch(w http.ResponseWriter, kind string, run func(context.Context) (any, error)) {
	j := h.jobs.Create(kind)
	go h.runJob(j.ID, run)
	response.JSON(w, http.StatusAccepted, map[string]any{"job_id": j.ID})
}

// ProcessRecommendations starts a strategy pass in the background.
func (h *Handler) ProcessRecommendations(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, "process_recommendations", func(ctx context.Context) (any, error) {
		return h.strategy.ProcessRecommendations(ctx)
	})
}

// ActiveSignals lists unexpired signals from the trailing window.
func (h *Handler) ActiveSignals(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours_back"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			response.Error(w, http.StatusBadRequest,
				core.WrapError(core.ErrConfigInvalid, err))
			return
		}
		hours = parsed
	}

	signals, err := h.strategy.ActiveSignals(r.Context(), hours)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"signals": signals,
		"count":   len(signals),
	})
}

// GenerateSignal generates a signal for one symbol on demand.
func (h *Handler) GenerateSignal(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if err := provider.ValidateSymbol(symbol); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	signal, err := h.strategy.GenerateForSymbol(r.Context(), provider.NormalizeSymbol(symbol))
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusCreated, signal)
}

// ExecuteTrade executes a posted trade signal synchronously.
func (h *Handler) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var signal core.TradeSignal
	if err := json.NewDecoder(r.Body).Decode(&signal); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrInvalidSignal, err))
		return
	}

	result, err := h.portfolio.ExecuteTrade(r.Context(), signal)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// ProcessSignals executes all pending signals in the background.
func (h *Handler) ProcessSignals(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, "process_signals", func(ctx context.Context) (any, error) {
		return h.portfolio.ProcessPendingSignals(ctx)
	})
}

// UpdatePositionValues revalues the active book in the background.
func (h *Handler) UpdatePositionValues(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, "update_position_values", func(ctx context.Context) (any, error) {
		updated, err := h.portfolio.UpdatePositionValues(ctx)
		return map[string]any{"positions_updated": updated}, err
	})
}

// PortfolioSummary aggregates the active book.
func (h *Handler) PortfolioSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.portfolio.PortfolioSummary(r.Context())
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, summary)
}

// ActivePositions lists the active book.
func (h *Handler) ActivePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.portfolio.ActivePositions(r.Context())
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

// PositionHistory lists closed positions.
func (h *Handler) PositionHistory(w http.ResponseWriter, r *http.Request) {
	positions, err := h.portfolio.PositionHistory(r.Context())
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"positions": positions,
		"count":     len(positions),
	})
}

// Transactions lists executed trades, newest first.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			response.Error(w, http.StatusBadRequest,
				core.WrapError(core.ErrConfigInvalid, err))
			return
		}
		limit = parsed
	}

	txs, err := h.portfolio.Transactions(r.Context(), limit)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"count":        len(txs),
	})
}

// HoldingsPerformance reports per-position performance.
func (h *Handler) HoldingsPerformance(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.portfolio.HoldingsPerformance(r.Context())
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"holdings": holdings})
}

// GetWatchlist lists watched symbols.
func (h *Handler) GetWatchlist(w http.ResponseWriter, r *http.Request) {
	items, err := h.portfolio.Watchlist(r.Context())
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"watchlist": items,
		"count":     len(items),
	})
}

// AddWatchlist adds or updates a watched symbol.
func (h *Handler) AddWatchlist(w http.ResponseWriter, r *http.Request) {
	var item core.WatchlistItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrConfigInvalid, err))
		return
	}

	added, err := h.portfolio.AddToWatchlist(r.Context(), item)
	if err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusCreated, added)
}

// RemoveWatchlist removes a watched symbol.
func (h *Handler) RemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if err := h.portfolio.RemoveFromWatchlist(r.Context(), symbol); err != nil {
		response.Error(w, response.StatusFor(err), err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"removed": symbol})
}
