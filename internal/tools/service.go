// Package tools implements the query tools exposed over the protocol
// boundary. Every tool returns a JSON-serializable payload; failures are
// reported inside the payload so the boundary never sees a raised error.
package tools

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"time"

	"ssmdquery/internal/api"
	"ssmdquery/internal/engine"
	"ssmdquery/internal/feed"
	"ssmdquery/internal/fresh"
	"ssmdquery/internal/query"
	"ssmdquery/logger"
)

// SessionOpener provisions an engine session for one tool call. Sessions
// are never shared across calls, so a failed secret mutation in one request
// cannot leak into another.
type SessionOpener func(ctx context.Context) (engine.Runner, error)

// Service wires the query layers behind the tool surface. When the REST
// service is configured, the bucket-backed tools delegate to it and the
// local engine is bypassed.
type Service struct {
	Open       SessionOpener
	Dispatcher *query.Dispatcher
	Prober     *fresh.Prober
	API        *api.Client

	now func() time.Time
	log *logger.Log
}

func NewService(open SessionOpener, dispatcher *query.Dispatcher, prober *fresh.Prober, apiClient *api.Client) *Service {
	return &Service{
		Open:       open,
		Dispatcher: dispatcher,
		Prober:     prober,
		API:        apiClient,
		now:        time.Now,
		log:        logger.GetLogger(),
	}
}

func closeSession(r engine.Runner) {
	if c, ok := r.(io.Closer); ok {
		c.Close()
	}
}

func (s *Service) today() string {
	return s.now().UTC().Format("2006-01-02")
}

func errorPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

// proxied wraps a REST response so every delegated tool keeps the local
// envelope shape even when the service returns a bare array.
func proxied(decoded any) map[string]any {
	if obj, ok := decoded.(map[string]any); ok {
		return obj
	}
	return map[string]any{"data": decoded}
}

// QueryTrades aggregates a feed's trades for one date, most active tickers
// first.
func (s *Service) QueryTrades(ctx context.Context, feedName, date string, limit int) map[string]any {
	d, err := feed.Lookup(feedName)
	if err != nil {
		return errorPayload(err)
	}
	if date == "" {
		date = s.today()
	}
	limit = feed.ClampLimit(limit)

	if s.API.Configured() {
		decoded, err := s.API.Get(ctx, "/v1/data/trades", url.Values{
			"feed":  {feedName},
			"date":  {date},
			"limit": {strconv.Itoa(limit)},
		})
		if err != nil {
			return errorPayload(err)
		}
		return proxied(decoded)
	}

	sess, err := s.Open(ctx)
	if err != nil {
		return errorPayload(err)
	}
	defer closeSession(sess)

	rs, err := s.Dispatcher.RunWithFallback(ctx, sess, feedName, date, d.TradeFileType, feed.TradeQuery(d, limit), "")
	if err != nil {
		return errorPayload(err)
	}
	return map[string]any{
		"feed":   feedName,
		"date":   date,
		"count":  len(rs.Rows),
		"trades": rs.Rows,
	}
}

// QueryEvents rolls a feed's trades up to the event level for one date:
// kalshi markets grouped under their event ticker, kraken-futures per
// instrument, polymarket per asset. Most active events first.
func (s *Service) QueryEvents(ctx context.Context, feedName, date string, limit int) map[string]any {
	d, err := feed.Lookup(feedName)
	if err != nil {
		return errorPayload(err)
	}
	if date == "" {
		date = s.today()
	}
	limit = feed.ClampLimit(limit)

	if s.API.Configured() {
		decoded, err := s.API.Get(ctx, "/v1/data/events", url.Values{
			"feed":  {feedName},
			"date":  {date},
			"limit": {strconv.Itoa(limit)},
		})
		if err != nil {
			return errorPayload(err)
		}
		return proxied(decoded)
	}

	sess, err := s.Open(ctx)
	if err != nil {
		return errorPayload(err)
	}
	defer closeSession(sess)

	rs, err := s.Dispatcher.RunWithFallback(ctx, sess, feedName, date, d.TradeFileType, feed.EventQuery(d, limit), "")
	if err != nil {
		return errorPayload(err)
	}
	return map[string]any{
		"feed":   feedName,
		"date":   date,
		"count":  len(rs.Rows),
		"events": rs.Rows,
	}
}

// QueryPrices returns the latest snapshot row per ticker for a feed, from
// one hour file when an hour is given, otherwise across the whole date.
func (s *Service) QueryPrices(ctx context.Context, feedName, date, hour string) map[string]any {
	d, err := feed.Lookup(feedName)
	if err != nil {
		return errorPayload(err)
	}
	if date == "" {
		date = s.today()
	}

	if s.API.Configured() {
		params := url.Values{"feed": {feedName}, "date": {date}}
		if hour != "" {
			params.Set("hour", hour)
		}
		decoded, err := s.API.Get(ctx, "/v1/data/prices", params)
		if err != nil {
			return errorPayload(err)
		}
		return proxied(decoded)
	}

	sess, err := s.Open(ctx)
	if err != nil {
		return errorPayload(err)
	}
	defer closeSession(sess)

	rs, err := s.Dispatcher.RunWithFallback(ctx, sess, feedName, date, d.SnapshotFileType, feed.SnapshotQuery(d), hour)
	if err != nil {
		return errorPayload(err)
	}
	payload := map[string]any{
		"feed":   feedName,
		"date":   date,
		"count":  len(rs.Rows),
		"prices": rs.Rows,
	}
	if hour != "" {
		payload["hour"] = hour
	}
	return payload
}

// RunSQL executes a freeform statement through the macro expander. The
// result always carries the SQL that actually ran.
func (s *Service) RunSQL(ctx context.Context, sqlText string) *query.FreeformResult {
	sess, err := s.Open(ctx)
	if err != nil {
		return &query.FreeformResult{SQL: sqlText, Error: err.Error()}
	}
	defer closeSession(sess)
	return s.Dispatcher.RunFreeform(ctx, sess, sqlText, s.today())
}

// LookupMarket resolves market metadata through the REST service. The
// markets key carries the resolved records as a list; identifiers the
// service does not know are simply absent.
func (s *Service) LookupMarket(ctx context.Context, ids []string, feedName string) map[string]any {
	if feedName != "" {
		if _, err := feed.Lookup(feedName); err != nil {
			return errorPayload(err)
		}
	}
	markets, err := s.API.LookupMarkets(ctx, ids, feedName)
	if err != nil {
		return errorPayload(err)
	}
	return map[string]any{
		"count":   len(markets),
		"markets": markets,
	}
}

// ListFeeds describes the supported feeds and their schema conventions.
func (s *Service) ListFeeds(ctx context.Context) map[string]any {
	if s.API.Configured() {
		decoded, err := s.API.Get(ctx, "/v1/data/feeds", nil)
		if err != nil {
			return errorPayload(err)
		}
		return proxied(decoded)
	}

	feeds := make([]map[string]any, 0, len(feed.Names()))
	for _, name := range feed.Names() {
		d, _ := feed.Lookup(name)
		feeds = append(feeds, map[string]any{
			"name":               d.Name,
			"ticker_column":      d.TickerColumn,
			"trade_file_type":    d.TradeFileType,
			"snapshot_file_type": d.SnapshotFileType,
			"snapshot_columns":   d.SnapshotColumns,
			"prices_in_cents":    d.MinorUnits,
			"has_trade_volume":   d.QuantityColumn != "",
		})
	}
	return map[string]any{
		"count": len(feeds),
		"feeds": feeds,
	}
}

// CheckFreshness probes one feed, or all of them when no feed is given.
func (s *Service) CheckFreshness(ctx context.Context, feedName string) any {
	names := feed.Names()
	if feedName != "" {
		if _, err := feed.Lookup(feedName); err != nil {
			return errorPayload(err)
		}
		names = []string{feedName}
	}

	if s.API.Configured() {
		params := url.Values{}
		if feedName != "" {
			params.Set("feed", feedName)
		}
		decoded, err := s.API.Get(ctx, "/v1/data/freshness", params)
		if err != nil {
			return errorPayload(err)
		}
		return proxied(decoded)
	}

	return s.Prober.Check(ctx, names)
}

// QueryVolume summarizes one date's trade activity per feed: trade count,
// summed quantity in the feed's native units, and active ticker count.
// Quantities are never summed across feeds; the units are not comparable.
func (s *Service) QueryVolume(ctx context.Context, date, feedName string) map[string]any {
	names := feed.Names()
	if feedName != "" {
		if _, err := feed.Lookup(feedName); err != nil {
			return errorPayload(err)
		}
		names = []string{feedName}
	}
	if date == "" {
		date = s.today()
	}

	if s.API.Configured() {
		params := url.Values{"date": {date}}
		if feedName != "" {
			params.Set("feed", feedName)
		}
		decoded, err := s.API.Get(ctx, "/v1/data/volume", params)
		if err != nil {
			return errorPayload(err)
		}
		return proxied(decoded)
	}

	sess, err := s.Open(ctx)
	if err != nil {
		return errorPayload(err)
	}
	defer closeSession(sess)

	summaries := make([]map[string]any, 0, len(names))
	for _, name := range names {
		d, _ := feed.Lookup(name)
		summary := map[string]any{"feed": name}
		rs, err := s.Dispatcher.RunWithFallback(ctx, sess, name, date, d.TradeFileType, feed.VolumeQuery(d), "")
		switch {
		case err != nil:
			summary["error"] = err.Error()
		case len(rs.Rows) == 0:
			summary["trade_count"] = 0
		default:
			for k, v := range rs.Rows[0] {
				summary[k] = v
			}
		}
		summaries = append(summaries, summary)
	}
	return map[string]any{
		"date":  date,
		"count": len(summaries),
		"feeds": summaries,
	}
}
