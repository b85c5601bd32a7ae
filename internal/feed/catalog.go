package feed

import (
	"fmt"
	"strings"
)

// PathPlaceholder is the single substitution point every template carries.
// The query dispatcher replaces it with a quoted remote path or a local
// path list literal.
const PathPlaceholder = "{path}"

// DefaultTradeLimit caps trade aggregations when the caller does not
// supply a limit.
const DefaultTradeLimit = 20

// MaxRowLimit is the hard cap applied to caller-supplied limits and to
// freeform queries without an explicit LIMIT clause.
const MaxRowLimit = 1000

// ClampLimit normalizes a caller-supplied row limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTradeLimit
	}
	if limit > MaxRowLimit {
		return MaxRowLimit
	}
	return limit
}

// priceExpr renders an aggregate over the price column, normalizing integer
// minor units to major-unit currency where the feed requires it. The
// conversion is fixed per-feed policy, never inferred from data.
func priceExpr(d Descriptor, agg string) string {
	if d.MinorUnits {
		return fmt.Sprintf("%s(%s) / 100.0", agg, d.PriceColumn)
	}
	return fmt.Sprintf("%s(%s)", agg, d.PriceColumn)
}

// TradeQuery builds the per-ticker trade aggregation template for a feed:
// trade counts, summed quantity when the feed carries one, and the price
// range, ordered by activity.
func TradeQuery(d Descriptor, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(d.TickerColumn)
	b.WriteString(" AS ticker, COUNT(*) AS trade_count")
	if d.QuantityColumn != "" {
		fmt.Fprintf(&b, ", SUM(%s) AS volume", d.QuantityColumn)
	}
	fmt.Fprintf(&b, ", %s AS min_price", priceExpr(d, "MIN"))
	fmt.Fprintf(&b, ", %s AS max_price", priceExpr(d, "MAX"))
	fmt.Fprintf(&b, ", %s AS avg_price", priceExpr(d, "AVG"))
	fmt.Fprintf(&b, " FROM read_parquet(%s)", PathPlaceholder)
	fmt.Fprintf(&b, " GROUP BY %s", d.TickerColumn)
	b.WriteString(" ORDER BY trade_count DESC")
	fmt.Fprintf(&b, " LIMIT %d", ClampLimit(limit))
	return b.String()
}

// SnapshotQuery builds the latest-snapshot template for a feed: the most
// recent row per ticker, selected with a window over event time. Rows
// sharing the identical event time are broken by the feed's tie-break
// column so selection does not depend on scan order.
func SnapshotQuery(d Descriptor) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(d.TickerColumn)
	b.WriteString(" AS ticker")
	for _, col := range d.SnapshotColumns {
		b.WriteString(", ")
		b.WriteString(col)
	}
	fmt.Fprintf(&b, ", %s AS ts FROM (SELECT *, row_number() OVER (PARTITION BY %s ORDER BY %s DESC, %s DESC) AS rn FROM read_parquet(%s)) WHERE rn = 1",
		d.TimeColumn, d.TickerColumn, d.TimeColumn, d.TieBreakColumn, PathPlaceholder)
	fmt.Fprintf(&b, " ORDER BY %s", d.SnapshotOrder)
	return b.String()
}

// EventQuery builds the event-level trade summary template for a feed:
// markets rolled up into their parent event with trade counts, distinct
// market counts, and summed quantity when the feed carries one.
func EventQuery(d Descriptor, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s AS event, COUNT(*) AS trade_count", d.EventExpr)
	fmt.Fprintf(&b, ", COUNT(DISTINCT %s) AS market_count", d.TickerColumn)
	if d.QuantityColumn != "" {
		fmt.Fprintf(&b, ", SUM(%s) AS volume", d.QuantityColumn)
	}
	fmt.Fprintf(&b, " FROM read_parquet(%s)", PathPlaceholder)
	b.WriteString(" GROUP BY event")
	b.WriteString(" ORDER BY trade_count DESC")
	fmt.Fprintf(&b, " LIMIT %d", ClampLimit(limit))
	return b.String()
}

// VolumeQuery builds the per-feed daily activity summary template: trade
// count, summed quantity when present, and the number of active tickers.
func VolumeQuery(d Descriptor) string {
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) AS trade_count")
	if d.QuantityColumn != "" {
		fmt.Fprintf(&b, ", SUM(%s) AS volume", d.QuantityColumn)
	}
	fmt.Fprintf(&b, ", COUNT(DISTINCT %s) AS active_tickers FROM read_parquet(%s)",
		d.TickerColumn, PathPlaceholder)
	return b.String()
}
