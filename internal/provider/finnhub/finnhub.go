// Package finnhub implements the provider gateway for Finnhub.
package finnhub

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/provider"
)

const defaultBaseURL = "https://finnhub.io/api/v1"

// Client is the Finnhub adapter.
type Client struct {
	http   *resty.Client
	apiKey string
}

// New creates a Finnhub client.
func New(cfg provider.Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	http := resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second)

	return &Client{http: http, apiKey: cfg.APIKey}
}

func (c *Client) Name() core.Provider {
	return core.ProviderFinnhub
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	params["token"] = c.apiKey
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	if err != nil {
		return core.WrapError(core.ErrProviderFailed, err)
	}
	if resp.IsError() {
		return provider.StatusError(resp.StatusCode())
	}
	return nil
}

// FetchDailyPrices fetches daily candles for the trailing year.
func (c *Client) FetchDailyPrices(ctx context.Context, symbol string) ([]core.PriceRecord, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	now := time.Now()
	var result candleResponse
	err := c.get(ctx, "/stock/candle", map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       fmt.Sprintf("%d", now.AddDate(-1, 0, 0).Unix()),
		"to":         fmt.Sprintf("%d", now.Unix()),
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Status != "ok" || len(result.Timestamps) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no candles for %s", symbol))
	}

	records := make([]core.PriceRecord, 0, len(result.Timestamps))
	for i, ts := range result.Timestamps {
		if i >= len(result.Open) || i >= len(result.High) || i >= len(result.Low) || i >= len(result.Close) {
			return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("misaligned candle arrays for %s", symbol))
		}
		rec := core.PriceRecord{
			Symbol:    symbol,
			Date:      time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Open:      decimal.NewFromFloat(result.Open[i]),
			High:      decimal.NewFromFloat(result.High[i]),
			Low:       decimal.NewFromFloat(result.Low[i]),
			Close:     decimal.NewFromFloat(result.Close[i]),
			Provider:  core.ProviderFinnhub,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if i < len(result.Volume) {
			rec.Volume = result.Volume[i]
		}
		records = append(records, rec)
	}
	return records, nil
}

// FetchIntraday fetches the real-time quote as a single observation.
func (c *Client) FetchIntraday(ctx context.Context, symbol string) ([]core.IntradayPrice, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	var result quoteResponse
	if err := c.get(ctx, "/quote", map[string]string{"symbol": symbol}, &result); err != nil {
		return nil, err
	}
	if result.Current == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no quote for %s", symbol))
	}

	ts := time.Unix(result.Timestamp, 0)
	if result.Timestamp == 0 {
		ts = time.Now()
	}
	return []core.IntradayPrice{{
		Symbol:    symbol,
		Timestamp: ts,
		Price:     decimal.NewFromFloat(result.Current),
		Provider:  core.ProviderFinnhub,
		CreatedAt: time.Now(),
	}}, nil
}

// FetchFundamentals fetches basic company metrics.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*core.FundamentalRecord, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	var result metricResponse
	err := c.get(ctx, "/stock/metric", map[string]string{
		"symbol": symbol,
		"metric": "all",
	}, &result)
	if err != nil {
		return nil, err
	}
	if len(result.Metric) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no metrics for %s", symbol))
	}

	rec := &core.FundamentalRecord{
		Symbol:     symbol,
		FiscalYear: time.Now().Year(),
		EPS:        metricDecimal(result.Metric, "epsTTM"),
		PERatio:    metricDecimal(result.Metric, "peTTM"),
		ROE:        metricDecimal(result.Metric, "roeTTM"),
		MarketCap:  metricDecimal(result.Metric, "marketCapitalization"),
		Provider:   core.ProviderFinnhub,
		CreatedAt:  time.Now(),
	}
	return rec, nil
}

// FetchNews fetches company news for the trailing week, or general
// market news when symbol is empty.
func (c *Client) FetchNews(ctx context.Context, symbol string) ([]core.NewsRecord, error) {
	var items []newsItem
	if symbol == "" {
		if err := c.get(ctx, "/news", map[string]string{"category": "general"}, &items); err != nil {
			return nil, err
		}
	} else {
		if err := provider.ValidateSymbol(symbol); err != nil {
			return nil, core.WrapError(core.ErrProviderFailed, err)
		}
		symbol = provider.NormalizeSymbol(symbol)
		now := time.Now()
		err := c.get(ctx, "/company-news", map[string]string{
			"symbol": symbol,
			"from":   now.AddDate(0, 0, -7).Format("2006-01-02"),
			"to":     now.Format("2006-01-02"),
		}, &items)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	records := make([]core.NewsRecord, 0, len(items))
	for _, item := range items {
		var symbols []string
		if item.Related != "" {
			symbols = strings.Split(item.Related, ",")
		} else if symbol != "" {
			symbols = []string{symbol}
		}
		records = append(records, core.NewsRecord{
			Headline:    item.Headline,
			Summary:     item.Summary,
			URL:         item.URL,
			PublishedAt: time.Unix(item.DateTime, 0),
			Symbols:     symbols,
			Provider:    core.ProviderFinnhub,
			CreatedAt:   now,
		})
	}
	return records, nil
}

func metricDecimal(metrics map[string]any, key string) *decimal.Decimal {
	v, ok := metrics[key]
	if !ok {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	d := decimal.NewFromFloat(f)
	return &d
}

// Finnhub API response types
type candleResponse struct {
	Open       []float64 `json:"o"`
	High       []float64 `json:"h"`
	Low        []float64 `json:"l"`
	Close      []float64 `json:"c"`
	Volume     []int64   `json:"v"`
	Timestamps []int64   `json:"t"`
	Status     string    `json:"s"`
}

type quoteResponse struct {
	Current   float64 `json:"c"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Open      float64 `json:"o"`
	Timestamp int64   `json:"t"`
}

type metricResponse struct {
	Metric map[string]any `json:"metric"`
}

type newsItem struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Related  string `json:"related"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}
