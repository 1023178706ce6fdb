// Package provider defines the market data provider gateway. Each external
// vendor gets one adapter implementing the same fetch contract and
// normalizing payloads into the shared data model.
package provider

import (
	"context"

	"github.com/dhumphrey11/moda-trading/internal/core"
)

// Config holds per-provider adapter configuration.
type Config struct {
	APIKey  string
	BaseURL string // override for tests; empty uses the vendor default
}

// Client is the uniform fetch contract over one provider.
// Calls fail with core.ErrProviderRateLimited when the vendor reports a
// rate limit, or core.ErrProviderFailed for transient/network errors;
// there is no partial-result salvage.
type Client interface {
	Name() core.Provider

	FetchDailyPrices(ctx context.Context, symbol string) ([]core.PriceRecord, error)
	FetchIntraday(ctx context.Context, symbol string) ([]core.IntradayPrice, error)
	FetchFundamentals(ctx context.Context, symbol string) (*core.FundamentalRecord, error)
	// FetchNews returns company news for a symbol, or market-wide news
	// when symbol is empty.
	FetchNews(ctx context.Context, symbol string) ([]core.NewsRecord, error)
}
