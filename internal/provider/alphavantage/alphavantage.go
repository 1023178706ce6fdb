// Package alphavantage implements the provider gateway for Alpha Vantage.
package alphavantage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/dhumphrey11/moda-trading/internal/core"
	"github.com/dhumphrey11/moda-trading/internal/provider"
)

const defaultBaseURL = "https://www.alphavantage.co"

// Client is the Alpha Vantage adapter.
type Client struct {
	http   *resty.Client
	apiKey string
}

// New creates an Alpha Vantage client.
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
	return core.ProviderAlphaVantage
}

func (c *Client) get(ctx context.Context, params map[string]string, out any) error {
	params["apikey"] = c.apiKey
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get("/query")
	if err != nil {
		return core.WrapError(core.ErrProviderFailed, err)
	}
	if resp.IsError() {
		return provider.StatusError(resp.StatusCode())
	}
	return nil
}

// FetchDailyPrices fetches the daily adjusted time series.
func (c *Client) FetchDailyPrices(ctx context.Context, symbol string) ([]core.PriceRecord, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	var result dailyResponse
	err := c.get(ctx, map[string]string{
		"function": "TIME_SERIES_DAILY_ADJUSTED",
		"symbol":   symbol,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Note != "" {
		// Alpha Vantage signals throttling with a 200 + Note payload.
		return nil, core.WrapError(core.ErrProviderRateLimited, fmt.Errorf("%s", result.Note))
	}
	if len(result.TimeSeries) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no daily series for %s", symbol))
	}

	now := time.Now()
	records := make([]core.PriceRecord, 0, len(result.TimeSeries))
	for day, bar := range result.TimeSeries {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		open, err1 := decimal.NewFromString(bar.Open)
		high, err2 := decimal.NewFromString(bar.High)
		low, err3 := decimal.NewFromString(bar.Low)
		closeP, err4 := decimal.NewFromString(bar.Close)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, core.WrapError(core.ErrProviderFailed, fmt.Errorf("malformed bar for %s on %s", symbol, day))
		}
		rec := core.PriceRecord{
			Symbol:    symbol,
			Date:      date,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closeP,
			Volume:    bar.Volume,
			Provider:  core.ProviderAlphaVantage,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if adj, err := decimal.NewFromString(bar.AdjustedClose); err == nil {
			rec.AdjustedClose = &adj
		}
		records = append(records, rec)
	}
	return records, nil
}

// FetchIntraday fetches the latest quote as a single observation.
func (c *Client) FetchIntraday(ctx context.Context, symbol string) ([]core.IntradayPrice, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	var result quoteResponse
	err := c.get(ctx, map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   symbol,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Quote.Price == "" {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no quote for %s", symbol))
	}

	price, err := decimal.NewFromString(result.Quote.Price)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	return []core.IntradayPrice{{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Price:     price,
		Volume:    result.Quote.Volume,
		Provider:  core.ProviderAlphaVantage,
		CreatedAt: time.Now(),
	}}, nil
}

// FetchFundamentals fetches the company overview.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*core.FundamentalRecord, error) {
	if err := provider.ValidateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrProviderFailed, err)
	}
	symbol = provider.NormalizeSymbol(symbol)

	var result overviewResponse
	err := c.get(ctx, map[string]string{
		"function": "OVERVIEW",
		"symbol":   symbol,
	}, &result)
	if err != nil {
		return nil, err
	}
	if result.Symbol == "" {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no overview for %s", symbol))
	}

	rec := &core.FundamentalRecord{
		Symbol:       symbol,
		FiscalYear:   time.Now().Year(),
		Revenue:      parseOptional(result.RevenueTTM),
		EPS:          parseOptional(result.EPS),
		PERatio:      parseOptional(result.PERatio),
		ROE:          parseOptional(result.ReturnOnEquityTTM),
		MarketCap:    parseOptional(result.MarketCapitalization),
		DebtToEquity: parseOptional(result.DebtToEquity),
		Provider:     core.ProviderAlphaVantage,
		CreatedAt:    time.Now(),
	}
	return rec, nil
}

// FetchNews fetches news and sentiment; an empty symbol returns
// market-wide articles.
func (c *Client) FetchNews(ctx context.Context, symbol string) ([]core.NewsRecord, error) {
	params := map[string]string{"function": "NEWS_SENTIMENT"}
	if symbol != "" {
		if err := provider.ValidateSymbol(symbol); err != nil {
			return nil, core.WrapError(core.ErrProviderFailed, err)
		}
		params["tickers"] = provider.NormalizeSymbol(symbol)
	}

	var result newsResponse
	if err := c.get(ctx, params, &result); err != nil {
		return nil, err
	}

	now := time.Now()
	records := make([]core.NewsRecord, 0, len(result.Feed))
	for _, item := range result.Feed {
		published, err := time.Parse("20060102T150405", item.TimePublished)
		if err != nil {
			continue
		}
		symbols := make([]string, 0, len(item.TickerSentiment))
		for _, ts := range item.TickerSentiment {
			symbols = append(symbols, ts.Ticker)
		}
		records = append(records, core.NewsRecord{
			Headline:    item.Title,
			Summary:     item.Summary,
			URL:         item.URL,
			PublishedAt: published,
			Symbols:     symbols,
			Provider:    core.ProviderAlphaVantage,
			CreatedAt:   now,
		})
	}
	return records, nil
}

func parseOptional(s string) *decimal.Decimal {
	if s == "" || s == "None" || s == "-" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// Alpha Vantage API response types
type dailyResponse struct {
	Note       string              `json:"Note"`
	TimeSeries map[string]dailyBar `json:"Time Series (Daily)"`
}

type dailyBar struct {
	Open          string `json:"1. open"`
	High          string `json:"2. high"`
	Low           string `json:"3. low"`
	Close         string `json:"4. close"`
	AdjustedClose string `json:"5. adjusted close"`
	Volume        int64  `json:"6. volume,string"`
}

type quoteResponse struct {
	Quote struct {
		Price  string `json:"05. price"`
		Volume int64  `json:"06. volume,string"`
	} `json:"Global Quote"`
}

type overviewResponse struct {
	Symbol               string `json:"Symbol"`
	MarketCapitalization string `json:"MarketCapitalization"`
	PERatio              string `json:"PERatio"`
	EPS                  string `json:"EPS"`
	RevenueTTM           string `json:"RevenueTTM"`
	ReturnOnEquityTTM    string `json:"ReturnOnEquityTTM"`
	DebtToEquity         string `json:"DebtToEquity"`
}

type newsResponse struct {
	Feed []struct {
		Title           string `json:"title"`
		URL             string `json:"url"`
		TimePublished   string `json:"time_published"`
		Summary         string `json:"summary"`
		TickerSentiment []struct {
			Ticker string `json:"ticker"`
		} `json:"ticker_sentiment"`
	} `json:"feed"`
}
