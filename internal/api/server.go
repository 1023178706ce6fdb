// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dhumphrey11/moda-trading/internal/api/job"
	"github.com/dhumphrey11/moda-trading/internal/api/middleware"
	"github.com/dhumphrey11/moda-trading/internal/metrics"
	"github.com/dhumphrey11/moda-trading/internal/orchestrator"
	"github.com/dhumphrey11/moda-trading/internal/portfolio"
	"github.com/dhumphrey11/moda-trading/internal/strategy"
)

// Server is the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	MaxJobs     int
	JobTTL      time.Duration
	MetricsPath string // empty disables the metrics endpoint
}

// Deps are the engines the API exposes.
type Deps struct {
	Orchestrator *orchestrator.Engine
	Strategy     *strategy.Engine
	Portfolio    *portfolio.Manager
	Metrics      *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
		mux:    mux,
	}

	s.setupRoutes(cfg, deps)
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Deps) {
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	jobs := job.NewStore(cfg.MaxJobs, cfg.JobTTL)
	h := NewHandler(deps.Orchestrator, deps.Strategy, deps.Portfolio, jobs, deps.Metrics, s.logger)

	apiMux := http.NewServeMux()

	// collection
	apiMux.HandleFunc("POST /api/v1/orchestrate/{stage}", h.Orchestrate)
	apiMux.HandleFunc("GET /api/v1/jobs/{id}", h.GetJob)
	apiMux.HandleFunc("GET /api/v1/status", h.Status)

	// strategy
	apiMux.HandleFunc("POST /api/v1/process-recommendations", h.ProcessRecommendations)
	apiMux.HandleFunc("GET /api/v1/signals/active", h.ActiveSignals)
	apiMux.HandleFunc("POST /api/v1/signals/generate/{symbol}", h.GenerateSignal)

	// portfolio
	apiMux.HandleFunc("POST /api/v1/trades/execute", h.ExecuteTrade)
	apiMux.HandleFunc("POST /api/v1/trades/process-signals", h.ProcessSignals)
	apiMux.HandleFunc("POST /api/v1/positions/update-values", h.UpdatePositionValues)
	apiMux.HandleFunc("GET /api/v1/portfolio/summary", h.PortfolioSummary)
	apiMux.HandleFunc("GET /api/v1/positions/active", h.ActivePositions)
	apiMux.HandleFunc("GET /api/v1/positions/history", h.PositionHistory)
	apiMux.HandleFunc("GET /api/v1/transactions", h.Transactions)
	apiMux.HandleFunc("GET /api/v1/performance/holdings", h.HoldingsPerformance)

	// watchlist
	apiMux.HandleFunc("GET /api/v1/watchlist", h.GetWatchlist)
	apiMux.HandleFunc("POST /api/v1/watchlist", h.AddWatchlist)
	apiMux.HandleFunc("DELETE /api/v1/watchlist/{symbol}", h.RemoveWatchlist)

	var apiHandler http.Handler = apiMux
	apiHandler = middleware.APIKeyAuth(cfg.APIKey)(apiHandler)
	if deps.Metrics != nil {
		apiHandler = metrics.HTTPMiddleware(deps.Metrics)(apiHandler)
	}
	s.mux.Handle("/api/", apiHandler)

	// unauthenticated surface
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if deps.Metrics != nil && cfg.MetricsPath != "" {
		s.mux.Handle("GET "+cfg.MetricsPath,
			promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Handler exposes the routing mux, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
