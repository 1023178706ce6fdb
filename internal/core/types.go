package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies an external market data source.
type Provider string

const (
	ProviderAlphaVantage Provider = "alphavantage"
	ProviderFinnhub      Provider = "finnhub"
	ProviderPolygon      Provider = "polygon"
	ProviderTiingo       Provider = "tiingo"
)

// AllProviders lists every known provider in canonical order.
var AllProviders = []Provider{
	ProviderAlphaVantage,
	ProviderFinnhub,
	ProviderPolygon,
	ProviderTiingo,
}

// RecommendationKind is the action suggested by the ML model.
type RecommendationKind string

const (
	RecommendationBuy  RecommendationKind = "buy"
	RecommendationHold RecommendationKind = "hold"
	RecommendationSell RecommendationKind = "sell"
)

// TransactionKind is the direction of an executed trade.
type TransactionKind string

const (
	TransactionBuy  TransactionKind = "buy"
	TransactionSell TransactionKind = "sell"
)

// PositionStatus is the lifecycle state of a position.
type PositionStatus string

const (
	PositionActive PositionStatus = "active"
	PositionClosed PositionStatus = "closed"
)

// PriceRecord is a daily OHLCV bar for a symbol.
// Keyed by (symbol, date); re-ingestion overwrites.
type PriceRecord struct {
	Symbol        string           `json:"symbol"`
	Date          time.Time        `json:"date"`
	Open          decimal.Decimal  `json:"open_price"`
	High          decimal.Decimal  `json:"high_price"`
	Low           decimal.Decimal  `json:"low_price"`
	Close         decimal.Decimal  `json:"close_price"`
	AdjustedClose *decimal.Decimal `json:"adjusted_close,omitempty"`
	Volume        int64            `json:"volume"`
	Provider      Provider         `json:"provider"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// IntradayPrice is a single intraday price observation.
type IntradayPrice struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Price     decimal.Decimal `json:"price"`
	Volume    int64           `json:"volume"`
	Provider  Provider        `json:"provider"`
	CreatedAt time.Time       `json:"created_at"`
}

// FundamentalRecord holds company fundamentals for a fiscal year.
// Each provider fetch produces a distinct record keyed by fetch date;
// records are not deduplicated across providers.
type FundamentalRecord struct {
	Symbol       string           `json:"symbol"`
	FiscalYear   int              `json:"fiscal_year"`
	Revenue      *decimal.Decimal `json:"revenue,omitempty"`
	NetIncome    *decimal.Decimal `json:"net_income,omitempty"`
	EPS          *decimal.Decimal `json:"eps,omitempty"`
	PERatio      *decimal.Decimal `json:"pe_ratio,omitempty"`
	DebtToEquity *decimal.Decimal `json:"debt_to_equity,omitempty"`
	ROE          *decimal.Decimal `json:"roe,omitempty"`
	MarketCap    *decimal.Decimal `json:"market_cap,omitempty"`
	Provider     Provider         `json:"provider"`
	CreatedAt    time.Time        `json:"created_at"`
}

// NewsRecord is a news article. An empty Symbols slice means market-wide.
type NewsRecord struct {
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Symbols     []string  `json:"symbols"`
	Provider    Provider  `json:"provider"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recommendation is the output of the external ML model.
// Immutable once written.
type Recommendation struct {
	Symbol       string             `json:"symbol"`
	Kind         RecommendationKind `json:"recommendation"`
	Confidence   float64            `json:"confidence_score"` // [0,100]
	PriceTarget  *decimal.Decimal   `json:"price_target,omitempty"`
	ModelVersion string             `json:"model_version"`
	Features     map[string]any     `json:"features_used,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// TradeSignal is a sized, time-bounded proposal to buy or sell.
// Hold recommendations never become signals.
type TradeSignal struct {
	ID         string           `json:"id,omitempty"`
	Symbol     string           `json:"symbol"`
	Kind       TransactionKind  `json:"signal_type"`
	Quantity   int64            `json:"quantity"`
	PriceLimit *decimal.Decimal `json:"price_limit,omitempty"`
	StopLoss   decimal.Decimal  `json:"stop_loss"`
	TakeProfit decimal.Decimal  `json:"take_profit"`
	Confidence float64          `json:"confidence"`
	Reasoning  string           `json:"reasoning"`
	CreatedAt  time.Time        `json:"created_at"`
	ExpiresAt  time.Time        `json:"expires_at"`
}

// Validate checks the signal invariants: a known side, positive
// quantity, and expiry strictly after creation.
func (s TradeSignal) Validate() error {
	if s.Symbol == "" {
		return ErrInvalidSignal
	}
	if s.Kind != TransactionBuy && s.Kind != TransactionSell {
		return ErrInvalidSignal
	}
	if s.Quantity <= 0 {
		return ErrInvalidSignal
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return ErrInvalidSignal
	}
	return nil
}

// Expired reports whether the signal has passed its expiry at the given time.
func (s TradeSignal) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// Transaction records an executed trade. Append-only; never mutated.
type Transaction struct {
	ID          string          `json:"id,omitempty"`
	Symbol      string          `json:"symbol"`
	Kind        TransactionKind `json:"transaction_type"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Fees        decimal.Decimal `json:"fees"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// Position is a holding in a symbol. At most one active position per
// symbol exists at any time; on full close the record moves to the
// history partition with status flipped and closed-at set.
type Position struct {
	ID            string           `json:"id,omitempty"`
	Symbol        string           `json:"symbol"`
	Quantity      int64            `json:"quantity"`
	AverageCost   decimal.Decimal  `json:"average_cost"`
	CurrentPrice  *decimal.Decimal `json:"current_price,omitempty"`
	MarketValue   *decimal.Decimal `json:"market_value,omitempty"`
	UnrealizedPNL *decimal.Decimal `json:"unrealized_pnl,omitempty"`
	Status        PositionStatus   `json:"status"`
	OpenedAt      time.Time        `json:"opened_at"`
	ClosedAt      *time.Time       `json:"closed_at,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// CostBasis returns average cost times quantity.
func (p Position) CostBasis() decimal.Decimal {
	return p.AverageCost.Mul(decimal.NewFromInt(p.Quantity))
}

// WatchlistItem is a symbol monitored for data collection.
// Priority 1 is highest; the watchlist sorts ascending on it.
type WatchlistItem struct {
	ID        string    `json:"id,omitempty"`
	Symbol    string    `json:"symbol"`
	AddedBy   string    `json:"added_by"`
	Notes     string    `json:"notes,omitempty"`
	Priority  int       `json:"priority"` // 1-5
	CreatedAt time.Time `json:"created_at"`
}
