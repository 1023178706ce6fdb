package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	providerCalls    *prometheus.CounterVec
	rateLimitDenials *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	signalsGenerated *prometheus.CounterVec
	tradesExecuted   *prometheus.CounterVec
	activePositions  prometheus.Gauge
	jobsActive       *prometheus.GaugeVec
	watchlistSymbols prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moda_provider_calls_total",
			Help: "Total number of provider API calls issued",
		},
		[]string{"provider", "stage"},
	)
	r.rateLimitDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moda_rate_limit_denials_total",
			Help: "Total number of calls skipped because the daily budget was exhausted",
		},
		[]string{"provider"},
	)
	r.stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moda_stage_duration_seconds",
			Help:    "Collection stage duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)
	r.signalsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moda_signals_generated_total",
			Help: "Total number of trade signals generated",
		},
		[]string{"action"},
	)
	r.tradesExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moda_trades_executed_total",
			Help: "Total number of trades executed",
		},
		[]string{"action", "status"},
	)
	r.activePositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moda_positions_active",
			Help: "Number of active positions",
		},
	)
	r.jobsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moda_jobs_active",
			Help: "Number of active jobs",
		},
		[]string{"type"},
	)
	r.watchlistSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moda_watchlist_symbols",
			Help: "Number of symbols in watchlist",
		},
	)

	reg.MustRegister(r.providerCalls)
	reg.MustRegister(r.rateLimitDenials)
	reg.MustRegister(r.stageDuration)
	reg.MustRegister(r.signalsGenerated)
	reg.MustRegister(r.tradesExecuted)
	reg.MustRegister(r.activePositions)
	reg.MustRegister(r.jobsActive)
	reg.MustRegister(r.watchlistSymbols)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordProviderCall records one issued provider call.
func (r *Registry) RecordProviderCall(provider, stage string) {
	r.providerCalls.WithLabelValues(provider, stage).Inc()
}

// RecordRateLimitDenial records a call skipped for budget exhaustion.
func (r *Registry) RecordRateLimitDenial(provider string) {
	r.rateLimitDenials.WithLabelValues(provider).Inc()
}

// RecordStage records a collection stage completion.
func (r *Registry) RecordStage(stage string, duration float64) {
	r.stageDuration.WithLabelValues(stage).Observe(duration)
}

// RecordSignal records a generated trade signal.
func (r *Registry) RecordSignal(action string) {
	r.signalsGenerated.WithLabelValues(action).Inc()
}

// RecordTrade records a trade execution attempt.
func (r *Registry) RecordTrade(action, status string) {
	r.tradesExecuted.WithLabelValues(action, status).Inc()
}

// SetActivePositions sets the active position count.
func (r *Registry) SetActivePositions(count int) {
	r.activePositions.Set(float64(count))
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

// SetWatchlistSize sets the watchlist size.
func (r *Registry) SetWatchlistSize(size int) {
	r.watchlistSymbols.Set(float64(size))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
