package alphavantage_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/provider"
	"github.com/dhumphrey11/moda-trading/internal/provider/alphavantage"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *alphavantage.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return alphavantage.New(provider.Config{APIKey: "test-key", BaseURL: srv.URL})
}

func TestClient_Name(t *testing.T) {
	c := alphavantage.New(provider.Config{})
	assert.Equal(t, core.ProviderAlphaVantage, c.Name())
}

func TestClient_FetchDailyPrices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "TIME_SERIES_DAILY_ADJUSTED", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"Time Series (Daily)": {
				"2026-08-21": {
					"1. open": "188.50",
					"2. high": "190.10",
					"3. low": "188.00",
					"4. close": "189.25",
					"5. adjusted close": "189.25",
					"6. volume": "43210000"
				}
			}
		}`))
	})

	records, err := c.FetchDailyPrices(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AAPL", records[0].Symbol)
	assert.True(t, records[0].Close.Equal(decimal.NewFromFloat(189.25)))
	assert.Equal(t, int64(43210000), records[0].Volume)
	require.NotNil(t, records[0].AdjustedClose)
}

func TestClient_FetchDailyPrices_NotePayloadIsRateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	})

	_, err := c.FetchDailyPrices(context.Background(), "AAPL")
	assert.ErrorIs(t, err, core.ErrProviderRateLimited)
}

func TestClient_FetchDailyPrices_EmptySeries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	_, err := c.FetchDailyPrices(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestClient_FetchIntraday(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"Global Quote": {"05. price": "189.25", "06. volume": "1000000"}}`))
	})

	prices, err := c.FetchIntraday(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.True(t, prices[0].Price.Equal(decimal.NewFromFloat(189.25)))
	assert.Equal(t, int64(1000000), prices[0].Volume)
}

func TestClient_FetchFundamentals(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "OVERVIEW", r.URL.Query().Get("function"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"Symbol": "AAPL",
			"MarketCapitalization": "2900000000000",
			"PERatio": "29.5",
			"EPS": "6.42",
			"ReturnOnEquityTTM": "1.47",
			"DebtToEquity": "None"
		}`))
	})

	rec, err := c.FetchFundamentals(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", rec.Symbol)
	require.NotNil(t, rec.PERatio)
	assert.True(t, rec.PERatio.Equal(decimal.NewFromFloat(29.5)))
	assert.Nil(t, rec.DebtToEquity, `"None" fields stay unset`)
}

func TestClient_FetchFundamentals_Missing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	_, err := c.FetchFundamentals(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, core.ErrNoData)
}

func TestClient_FetchNews_Company(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "NEWS_SENTIMENT", r.URL.Query().Get("function"))
		assert.Equal(t, "AAPL", r.URL.Query().Get("tickers"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"feed": [{
				"title": "AAPL beats",
				"url": "https://example.com/a",
				"time_published": "20260821T143000",
				"summary": "s",
				"ticker_sentiment": [{"ticker": "AAPL"}]
			}]
		}`))
	})

	news, err := c.FetchNews(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, news, 1)
	assert.Equal(t, "AAPL beats", news[0].Headline)
	assert.Equal(t, []string{"AAPL"}, news[0].Symbols)
}

func TestClient_HTTPRateLimit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchIntraday(context.Background(), "AAPL")
	assert.ErrorIs(t, err, core.ErrProviderRateLimited)
}
