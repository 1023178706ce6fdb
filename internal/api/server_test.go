// internal/api/server_test.go
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/metrics"
	"github.com/dhumphrey11/moda-trading/internal/orchestrator"
	"github.com/dhumphrey11/moda-trading/internal/portfolio"
	"github.com/dhumphrey11/moda-trading/internal/ratelimit"
	"github.com/dhumphrey11/moda-trading/internal/risk"
	"github.com/dhumphrey11/moda-trading/internal/store"
	"github.com/dhumphrey11/moda-trading/internal/store/memory"
	"github.com/dhumphrey11/moda-trading/internal/strategy"

	"github.com/shopspring/decimal"
)

func newTestServer(t *testing.T, apiKey string) (*Server, store.Store) {
	t.Helper()
	st := memory.New()
	reg := metrics.NewRegistry()
	tracker := ratelimit.New(nil)
	rm := risk.NewManager(st, risk.DefaultPolicy(), nil)

	deps := Deps{
		Orchestrator: orchestrator.NewEngine(st, nil, tracker, reg, nil, orchestrator.DefaultOptions()),
		Strategy:     strategy.NewEngine(st, rm, reg, nil),
		Portfolio:    portfolio.NewManager(st, reg, nil),
		Metrics:      reg,
	}
	srv := NewServer(Config{
		Host:        "127.0.0.1",
		Port:        0,
		APIKey:      apiKey,
		MetricsPath: "/metrics",
	}, deps, nil)
	return srv, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "GET", "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestServer_AuthRequired(t *testing.T) {
	srv, _ := newTestServer(t, "secret")

	w := doJSON(t, srv.Handler(), "GET", "/api/v1/status", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, srv.Handler(), "GET", "/api/v1/status", nil, map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, srv.Handler(), "GET", "/api/v1/status", nil, map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Status(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "GET", "/api/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			RateBudget ratelimit.Snapshot `json:"rate_budget"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 250, resp.Data.RateBudget.Quotas[core.ProviderFinnhub])
}

func TestServer_OrchestrateUnknownStage(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "POST", "/api/v1/orchestrate/minutely", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_OrchestrateReturnsJob(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "POST", "/api/v1/orchestrate/daily", nil, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	jobID, ok := resp.Data["job_id"].(string)
	require.True(t, ok)
	waitForJob(t, srv.Handler(), jobID)
}

func waitForJob(t *testing.T, handler http.Handler, jobID string) string {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		w := doJSON(t, handler, "GET", "/api/v1/jobs/"+jobID, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var jobResp struct {
			Data struct {
				Status string `json:"status"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobResp))
		if jobResp.Data.Status == "complete" || jobResp.Data.Status == "failed" {
			return jobResp.Data.Status
		}
		select {
		case <-deadline:
			t.Fatal("job did not settle")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestServer_MutationEndpointsAreAsync(t *testing.T) {
	paths := []string{
		"/api/v1/process-recommendations",
		"/api/v1/trades/process-signals",
		"/api/v1/positions/update-values",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			srv, _ := newTestServer(t, "")
			w := doJSON(t, srv.Handler(), "POST", path, nil, nil)
			require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

			var resp struct {
				Data map[string]any `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			jobID, ok := resp.Data["job_id"].(string)
			require.True(t, ok)
			assert.Equal(t, "complete", waitForJob(t, srv.Handler(), jobID))
		})
	}
}

func TestServer_JobNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "GET", "/api/v1/jobs/job_unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_WatchlistCRUD(t *testing.T) {
	srv, _ := newTestServer(t, "")

	w := doJSON(t, srv.Handler(), "POST", "/api/v1/watchlist", map[string]any{
		"symbol":   "aapl",
		"added_by": "tester",
		"priority": 1,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, srv.Handler(), "GET", "/api/v1/watchlist", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Data.Count)

	w = doJSON(t, srv.Handler(), "DELETE", "/api/v1/watchlist/AAPL", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv.Handler(), "GET", "/api/v1/watchlist", nil, nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, 0, listResp.Data.Count)
}

func TestServer_WatchlistRejectsBadPriority(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "POST", "/api/v1/watchlist", map[string]any{
		"symbol":   "AAPL",
		"priority": 99,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ExecuteTrade(t *testing.T) {
	srv, st := newTestServer(t, "")

	now := time.Now()
	price := core.PriceRecord{
		Symbol:   "AAPL",
		Date:     now.Add(-24 * time.Hour),
		Close:    decimal.NewFromInt(100),
		Provider: core.ProviderFinnhub,
	}
	require.NoError(t, st.Upsert(t.Context(), store.CollectionPricesDaily, "AAPL_x", price))

	signal := core.TradeSignal{
		Symbol:    "AAPL",
		Kind:      core.TransactionBuy,
		Quantity:  3,
		CreatedAt: now,
		ExpiresAt: now.Add(24 * time.Hour),
	}
	w := doJSON(t, srv.Handler(), "POST", "/api/v1/trades/execute", signal, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, srv.Handler(), "GET", "/api/v1/positions/active", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Count)
}

func TestServer_ExecuteTradeRejectsInvalid(t *testing.T) {
	srv, _ := newTestServer(t, "")
	signal := core.TradeSignal{Symbol: "AAPL", Kind: core.TransactionBuy, Quantity: 0}
	w := doJSON(t, srv.Handler(), "POST", "/api/v1/trades/execute", signal, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_ActiveSignalsEmpty(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "GET", "/api/v1/signals/active", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Data.Count)
}

func TestServer_PortfolioSummaryEmpty(t *testing.T) {
	srv, _ := newTestServer(t, "")
	w := doJSON(t, srv.Handler(), "GET", "/api/v1/portfolio/summary", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
