// Package feed holds the static descriptor table for the supported market
// data feeds and the SQL builders that consume it. Feed definitions are
// immutable for the process lifetime.
package feed

import (
	"fmt"
	"strings"
)

// Canonical feed names.
const (
	Kalshi        = "kalshi"
	KrakenFutures = "kraken-futures"
	Polymarket    = "polymarket"
)

// Descriptor captures everything feed-specific: the path prefix inside the
// bucket, schema column names, unit conventions, and presentation ordering.
// One generic aggregation routine and one generic snapshot routine consume
// these instead of branching per feed.
type Descriptor struct {
	Name       string
	PathPrefix string

	TradeFileType    string
	SnapshotFileType string

	TickerColumn string
	PriceColumn  string
	// QuantityColumn is empty when the feed's trade files carry no summable
	// size column; the trade aggregation then omits volume.
	QuantityColumn string
	TimeColumn     string

	// MinorUnits marks feeds whose native prices are integer cents. Trade
	// price aggregates are divided by 100 to report major-unit currency.
	MinorUnits bool

	// EventExpr is a SQL expression grouping tickers into their parent
	// event, in terms of the trade file's columns.
	EventExpr string

	// SnapshotColumns are selected verbatim from the snapshot files, in
	// presentation order, after the ticker column.
	SnapshotColumns []string
	// TieBreakColumn breaks ties between snapshot rows sharing the same
	// event time for a ticker, so row selection is deterministic.
	TieBreakColumn string
	// SnapshotOrder is the final presentation ordering of the snapshot rows.
	SnapshotOrder string
}

var descriptors = map[string]Descriptor{
	Kalshi: {
		Name:             Kalshi,
		PathPrefix:       Kalshi,
		TradeFileType:    "trade",
		SnapshotFileType: "ticker",
		TickerColumn:     "market_ticker",
		PriceColumn:      "price",
		QuantityColumn:   "count",
		TimeColumn:       "ts",
		MinorUnits:       true,
		// Market tickers carry the event ticker plus a trailing strike
		// segment, e.g. KXBTCD-25AUG31-T112000 belongs to KXBTCD-25AUG31.
		EventExpr:       "regexp_replace(market_ticker, '-[^-]*$', '')",
		SnapshotColumns: []string{"yes_bid", "yes_ask", "no_bid", "no_ask", "last_price", "volume", "open_interest"},
		TieBreakColumn:   "last_price",
		SnapshotOrder:    "volume DESC",
	},
	KrakenFutures: {
		Name:             KrakenFutures,
		PathPrefix:       KrakenFutures,
		TradeFileType:    "trade",
		SnapshotFileType: "ticker",
		TickerColumn:     "product_id",
		PriceColumn:      "price",
		QuantityColumn:   "qty",
		TimeColumn:       "ts",
		// Perpetuals have no parent grouping; each instrument is its own
		// event.
		EventExpr:       "product_id",
		SnapshotColumns: []string{"bid", "ask", "last", "funding_rate", "volume", "open_interest"},
		TieBreakColumn:   "last",
		SnapshotOrder:    "volume DESC",
	},
	Polymarket: {
		Name:             Polymarket,
		PathPrefix:       Polymarket,
		TradeFileType:    "trade",
		SnapshotFileType: "ticker",
		TickerColumn:     "asset_id",
		PriceColumn:      "price",
		// Polymarket trade files land size as a decimal string; it is not
		// summable, so the trade aggregation omits volume for this feed.
		QuantityColumn: "",
		TimeColumn:     "timestamp",
		// Trade files carry no condition identifier, so the asset itself is
		// the finest grouping available; condition-level rollup needs the
		// metadata service.
		EventExpr:       "asset_id",
		SnapshotColumns: []string{"best_bid", "best_ask", "spread"},
		TieBreakColumn:  "best_bid",
		SnapshotOrder:   "spread ASC",
	},
}

// Names returns the valid feed names in stable order.
func Names() []string {
	return []string{Kalshi, KrakenFutures, Polymarket}
}

// UnknownFeedError is returned by feed-aware functions for any feed string
// outside the enumerated set. Path construction stays permissive; queries
// do not.
type UnknownFeedError struct {
	Feed string
}

func (e *UnknownFeedError) Error() string {
	return fmt.Sprintf("unknown feed '%s'; valid feeds: %s", e.Feed, strings.Join(Names(), ", "))
}

// Lookup resolves a feed name to its descriptor.
func Lookup(name string) (Descriptor, error) {
	d, ok := descriptors[name]
	if !ok {
		return Descriptor{}, &UnknownFeedError{Feed: name}
	}
	return d, nil
}

// Prefix returns the path prefix for a feed name. Unknown feeds degrade to
// using the name itself as the prefix rather than failing path construction.
func Prefix(name string) string {
	if d, ok := descriptors[name]; ok {
		return d.PathPrefix
	}
	return name
}
