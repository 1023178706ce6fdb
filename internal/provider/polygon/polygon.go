// Package polygon implements the provider gateway for Polygon.io.
package polygon

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/provider"
)

const defaultBaseURL = "https://api.polygon.io"

// Client is the Polygon adapter.
type Client struct {
	http   *resty.Client
	apiKey string
}

// New creates a Polygon client.
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
	return core.ProviderPolygon
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	if params == nil {
		params = map[string]string{}
	}
	params["apiKey"] = c.apiKey
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

// FetchDailyPrices fetches daily aggregates for the trailing year.
func (c *Client) FetchDailyPrices(ctx context.Context, symbol string) ([]core.PriceRecord, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	now := time.Now()
	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s",
		symbol,
		now.AddDate(-1, 0, 0).Format("2006-01-02"),
		now.Format("2006-01-02"),
	)

	var result aggsResponse
	if err := c.get(ctx, path, map[string]string{"adjusted": "true"}, &result); err != nil {
		return nil, err
	}
	if len(result.Results) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no aggregates for %s", symbol))
	}

	records := make([]core.PriceRecord, 0, len(result.Results))
	for _, bar := range result.Results {
		records = append(records, core.PriceRecord{
			Symbol:    symbol,
			Date:      time.UnixMilli(bar.Timestamp).UTC().Truncate(24 * time.Hour),
			Open:      decimal.NewFromFloat(bar.Open),
			High:      decimal.NewFromFloat(bar.High),
			Low:       decimal.NewFromFloat(bar.Low),
			Close:     decimal.NewFromFloat(bar.Close),
			Volume:    int64(bar.Volume),
			Provider:  core.ProviderPolygon,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return records, nil
}

// FetchIntraday fetches the previous-close aggregate as the freshest
// observation available on the free tier.
func (c *Client) FetchIntraday(ctx context.Context, symbol string) ([]core.IntradayPrice, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	var result aggsResponse
	path := fmt.Sprintf("/v2/aggs/ticker/%s/prev", symbol)
	if err := c.get(ctx, path, map[string]string{"adjusted": "true"}, &result); err != nil {
		return nil, err
	}
	if len(result.Results) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no previous close for %s", symbol))
	}

	bar := result.Results[0]
	return []core.IntradayPrice{{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(bar.Timestamp),
		Price:     decimal.NewFromFloat(bar.Close),
		Volume:    int64(bar.Volume),
		Provider:  core.ProviderPolygon,
		CreatedAt: time.Now(),
	}}, nil
}

// FetchFundamentals is not available on the Polygon tier in use; the
// orchestrator's fundamentals stage never selects this provider.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*core.FundamentalRecord, error) {
	return nil, core.WrapError(core.ErrNoData, fmt.Errorf("fundamentals not supported for polygon"))
}

// FetchNews fetches reference news, optionally scoped to a ticker.
func (c *Client) FetchNews(ctx context.Context, symbol string) ([]core.NewsRecord, error) {
	params := map[string]string{"limit": "50"}
	if symbol != "" {
		if err := provider.ValidateSymbol(symbol); err != nil {
			return nil, core.WrapError(core.ErrProviderFailed, err)
		}
		params["ticker"] = provider.NormalizeSymbol(symbol)
	}

	var result newsResponse
	if err := c.get(ctx, "/v2/reference/news", params, &result); err != nil {
		return nil, err
	}

	now := time.Now()
	records := make([]core.NewsRecord, 0, len(result.Results))
	for _, item := range result.Results {
		published, err := time.Parse(time.RFC3339, item.PublishedUTC)
		if err != nil {
			continue
		}
		records = append(records, core.NewsRecord{
			Headline:    item.Title,
			Summary:     item.Description,
			URL:         item.ArticleURL,
			PublishedAt: published,
			Symbols:     item.Tickers,
			Provider:    core.ProviderPolygon,
			CreatedAt:   now,
		})
	}
	return records, nil
}

// Polygon API response types
type aggsResponse struct {
	Results []aggBar `json:"results"`
	Status  string   `json:"status"`
}

type aggBar struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

type newsResponse struct {
	Results []struct {
		Title        string   `json:"title"`
		Description  string   `json:"description"`
		ArticleURL   string   `json:"article_url"`
		PublishedUTC string   `json:"published_utc"`
		Tickers      []string `json:"tickers"`
	} `json:"results"`
}
