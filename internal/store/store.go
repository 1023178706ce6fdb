// Package store defines the document store gateway consumed by the
// orchestration, strategy and portfolio layers. The backing database is an
// external collaborator; implementations only need per-document atomicity.
package store

import "context"

// Collection names. These are wire-level identifiers shared with the
// ingestion and ML services; preserve exactly.
const (
	CollectionPricesDaily      = "di_prices_daily"
	CollectionPricesIntraday   = "di_prices_intraday"
	CollectionFundamentals     = "di_fundamentals"
	CollectionNews             = "di_news"
	CollectionRecommendations  = "ml_recommendations_log"
	CollectionTradeSignals     = "se_trade_signals"
	CollectionPositionsActive  = "pf_positions_active"
	CollectionPositionsHistory = "pf_positions_history"
	CollectionTransactions     = "pf_transactions"
	CollectionWatchlist        = "pf_watchlist"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "=="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Filter is a single field comparison applied server-side.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query describes a filtered, optionally ordered and limited read.
// Field names refer to the document's serialized (json tag) names.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Store is the typed CRUD + query contract over named collections.
// Get and Query decode into caller-provided destinations: Get takes a
// pointer to a document struct, Query a pointer to a slice of them.
type Store interface {
	Create(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, doc any) error
	Upsert(ctx context.Context, collection, id string, doc any) error
	Get(ctx context.Context, collection, id string, out any) error
	Query(ctx context.Context, collection string, q Query, out any) error
	Delete(ctx context.Context, collection, id string) error
}
