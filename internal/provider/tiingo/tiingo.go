// Package tiingo implements the provider gateway for Tiingo.
package tiingo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/provider"
)

const defaultBaseURL = "https://api.tiingo.com"

// Client is the Tiingo adapter.
type Client struct {
	http *resty.Client
}

// New creates a Tiingo client. Tiingo authenticates with a token header
// rather than a query parameter.
func New(cfg provider.Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	http := resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second).
		SetHeader("Authorization", "Token "+cfg.APIKey)

	return &Client{http: http}
}

func (c *Client) Name() core.Provider {
	return core.ProviderTiingo
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
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

// FetchDailyPrices fetches the trailing year of end-of-day prices.
func (c *Client) FetchDailyPrices(ctx context.Context, symbol string) ([]core.PriceRecord, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	now := time.Now()
	var bars []dailyBar
	err := c.get(ctx, fmt.Sprintf("/tiingo/daily/%s/prices", symbol), map[string]string{
		"startDate": now.AddDate(-1, 0, 0).Format("2006-01-02"),
	}, &bars)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no daily prices for %s", symbol))
	}

	records := make([]core.PriceRecord, 0, len(bars))
	for _, bar := range bars {
		date, err := time.Parse(time.RFC3339, bar.Date)
		if err != nil {
			continue
		}
		adj := decimal.NewFromFloat(bar.AdjClose)
		records = append(records, core.PriceRecord{
			Symbol:        symbol,
			Date:          date.UTC().Truncate(24 * time.Hour),
			Open:          decimal.NewFromFloat(bar.Open),
			High:          decimal.NewFromFloat(bar.High),
			Low:           decimal.NewFromFloat(bar.Low),
			Close:         decimal.NewFromFloat(bar.Close),
			AdjustedClose: &adj,
			Volume:        bar.Volume,
			Provider:      core.ProviderTiingo,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return records, nil
}

// FetchIntraday fetches the latest IEX top-of-book observation.
func (c *Client) FetchIntraday(ctx context.Context, symbol string) ([]core.IntradayPrice, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	var quotes []iexQuote
	if err := c.get(ctx, fmt.Sprintf("/iex/%s", symbol), nil, &quotes); err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no iex quote for %s", symbol))
	}

	q := quotes[0]
	ts, err := time.Parse(time.RFC3339, q.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	price := q.Last
	if price == 0 {
		price = q.TngoLast
	}
	return []core.IntradayPrice{{
		Symbol:    symbol,
		Timestamp: ts,
		Price:     decimal.NewFromFloat(price),
		Volume:    q.Volume,
		Provider:  core.ProviderTiingo,
		CreatedAt: time.Now(),
	}}, nil
}

// FetchFundamentals is not available on the Tiingo tier in use; the
// orchestrator's fundamentals stage never selects this provider.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*core.FundamentalRecord, error) {
	return nil, core.WrapError(core.ErrNoData, fmt.Errorf("fundamentals not supported for tiingo"))
}

// FetchNews fetches news, optionally scoped to a ticker.
func (c *Client) FetchNews(ctx context.Context, symbol string) ([]core.NewsRecord, error) {
	params := map[string]string{"limit": "50"}
	if symbol != "" {
		if err := provider.ValidateSymbol(symbol); err != nil {
			return nil, core.WrapError(core.ErrProviderFailed, err)
		}
		params["tickers"] = provider.NormalizeSymbol(symbol)
	}

	var items []newsItem
	if err := c.get(ctx, "/tiingo/news", params, &items); err != nil {
		return nil, err
	}

	now := time.Now()
	records := make([]core.NewsRecord, 0, len(items))
	for _, item := range items {
		published, err := time.Parse(time.RFC3339, item.PublishedDate)
		if err != nil {
			continue
		}
		records = append(records, core.NewsRecord{
			Headline:    item.Title,
			Summary:     item.Description,
			URL:         item.URL,
			PublishedAt: published,
			Symbols:     item.Tickers,
			Provider:    core.ProviderTiingo,
			CreatedAt:   now,
		})
	}
	return records, nil
}

// Tiingo API response types
type dailyBar struct {
	Date     string  `json:"date"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adjClose"`
	Volume   int64   `json:"volume"`
}

type iexQuote struct {
	Timestamp string  `json:"timestamp"`
	Last      float64 `json:"last"`
	TngoLast  float64 `json:"tngoLast"`
	Volume    int64   `json:"volume"`
}

type newsItem struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	URL           string   `json:"url"`
	PublishedDate string   `json:"publishedDate"`
	Tickers       []string `json:"tickers"`
}
