package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ssmdquery/internal/api"
	"ssmdquery/internal/engine"
	"ssmdquery/internal/feed"
	"ssmdquery/internal/fresh"
	"ssmdquery/internal/gcs"
	"ssmdquery/internal/query"
	"ssmdquery/models"
)

type stubRunner struct {
	rows    []models.Row
	err     error
	queries []string
}

func (r *stubRunner) Query(ctx context.Context, sqlText string) (*models.ResultSet, error) {
	r.queries = append(r.queries, sqlText)
	if r.err != nil {
		return nil, r.err
	}
	return &models.ResultSet{Rows: r.rows}, nil
}

type stubTransport struct {
	lists   int
	fetches int
}

func (t *stubTransport) List(ctx context.Context, remotePath string) ([]string, error) {
	t.lists++
	return nil, nil
}

func (t *stubTransport) Fetch(ctx context.Context, remotePath, localPath string) error {
	t.fetches++
	return errors.New("not available")
}

func (t *stubTransport) Token(ctx context.Context) (string, error) {
	return "", errors.New("not available")
}

func newTestService(t *testing.T, runner *stubRunner, apiURL string) (*Service, *stubTransport) {
	t.Helper()
	transport := &stubTransport{}
	paths := &gcs.Paths{Bucket: "ssmd-data"}
	dispatcher := query.NewDispatcher(paths, &gcs.Cache{Dir: t.TempDir()}, transport)
	prober := fresh.NewProber(paths, transport, 0, 0)
	open := func(ctx context.Context) (engine.Runner, error) { return runner, nil }
	svc := NewService(open, dispatcher, prober, api.NewClient(apiURL, "key", 0))
	svc.now = func() time.Time { return time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) }
	return svc, transport
}

func TestQueryTradesUnknownFeed(t *testing.T) {
	runner := &stubRunner{}
	svc, transport := newTestService(t, runner, "")

	payload := svc.QueryTrades(context.Background(), "nasdaq", "2026-01-15", 20)
	msg, ok := payload["error"].(string)
	if !ok {
		t.Fatalf("expected an error payload, got %v", payload)
	}
	if !strings.Contains(msg, "nasdaq") || !strings.Contains(msg, feed.Kalshi) {
		t.Errorf("error must name the bad feed and the valid ones: %s", msg)
	}
	if len(runner.queries) != 0 || transport.lists != 0 || transport.fetches != 0 {
		t.Error("unknown feed must be rejected before any I/O")
	}
}

func TestQueryTradesEnvelope(t *testing.T) {
	runner := &stubRunner{rows: []models.Row{
		{"ticker": "BTC-YES", "trade_count": int64(10)},
		{"ticker": "ETH-YES", "trade_count": int64(4)},
	}}
	svc, _ := newTestService(t, runner, "")

	payload := svc.QueryTrades(context.Background(), feed.Kalshi, "", 0)
	if payload["feed"] != feed.Kalshi || payload["count"] != 2 {
		t.Errorf("unexpected envelope %v", payload)
	}
	if payload["date"] != "2026-01-15" {
		t.Errorf("omitted date must default to today, got %v", payload["date"])
	}
	if _, ok := payload["trades"].([]models.Row); !ok {
		t.Errorf("expected a trades list, got %T", payload["trades"])
	}
	if !strings.Contains(runner.queries[0], "s3://ssmd-data/kalshi/2026-01-15/trade_*.parquet") {
		t.Errorf("query must address today's trade partition: %s", runner.queries[0])
	}
	if !strings.Contains(runner.queries[0], "LIMIT 20") {
		t.Errorf("omitted limit must default to 20: %s", runner.queries[0])
	}
}

func TestQueryEventsEnvelope(t *testing.T) {
	runner := &stubRunner{rows: []models.Row{
		{"event": "KXBTCD-25AUG31", "trade_count": int64(3), "market_count": int64(2)},
	}}
	svc, _ := newTestService(t, runner, "")

	payload := svc.QueryEvents(context.Background(), feed.Kalshi, "2026-01-15", 0)
	if payload["feed"] != feed.Kalshi || payload["count"] != 1 {
		t.Errorf("unexpected envelope %v", payload)
	}
	if _, ok := payload["events"].([]models.Row); !ok {
		t.Errorf("expected an events list, got %T", payload["events"])
	}
	if !strings.Contains(runner.queries[0], "GROUP BY event") {
		t.Errorf("query must aggregate at the event level: %s", runner.queries[0])
	}
	if !strings.Contains(runner.queries[0], "s3://ssmd-data/kalshi/2026-01-15/trade_*.parquet") {
		t.Errorf("query must address the trade partition: %s", runner.queries[0])
	}
}

func TestLookupMarketReturnsList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"markets": [{"market_ticker": "BTC-YES", "title": "Bitcoin above 100k"}]}`))
	}))
	defer srv.Close()

	svc, _ := newTestService(t, &stubRunner{}, srv.URL)
	payload := svc.LookupMarket(context.Background(), []string{"BTC-YES"}, feed.Kalshi)
	if payload["count"] != 1 {
		t.Fatalf("unexpected envelope %v", payload)
	}
	markets, ok := payload["markets"].([]any)
	if !ok || len(markets) != 1 {
		t.Fatalf("markets must be a list of records, got %T %v", payload["markets"], payload["markets"])
	}
}

func TestQueryPricesHourEnvelope(t *testing.T) {
	runner := &stubRunner{rows: []models.Row{{"ticker": "BTC-YES"}}}
	svc, _ := newTestService(t, runner, "")

	payload := svc.QueryPrices(context.Background(), feed.Kalshi, "2026-01-15", "1400")
	if payload["hour"] != "1400" {
		t.Errorf("hour must be echoed in the envelope, got %v", payload)
	}
	if !strings.Contains(runner.queries[0], "s3://ssmd-data/kalshi/2026-01-15/ticker_1400.parquet") {
		t.Errorf("query must address the single hour file: %s", runner.queries[0])
	}
}

func TestLookupMarketWithoutAPIURL(t *testing.T) {
	svc, _ := newTestService(t, &stubRunner{}, "")

	payload := svc.LookupMarket(context.Background(), []string{"BTC-YES"}, "")
	msg, ok := payload["error"].(string)
	if !ok || !strings.Contains(msg, "SSMD_API_URL not configured") {
		t.Fatalf("expected the not-configured error, got %v", payload)
	}
}

func TestListFeeds(t *testing.T) {
	svc, _ := newTestService(t, &stubRunner{}, "")

	payload := svc.ListFeeds(context.Background())
	feeds, ok := payload["feeds"].([]map[string]any)
	if !ok || len(feeds) != 3 {
		t.Fatalf("expected 3 feed descriptions, got %v", payload)
	}
	byName := map[string]map[string]any{}
	for _, f := range feeds {
		byName[f["name"].(string)] = f
	}
	if byName[feed.Kalshi]["prices_in_cents"] != true {
		t.Error("kalshi prices are in cents")
	}
	if byName[feed.Polymarket]["has_trade_volume"] != false {
		t.Error("polymarket trades carry no summable volume")
	}
}

func TestQueryVolumeAcrossFeeds(t *testing.T) {
	runner := &stubRunner{rows: []models.Row{
		{"trade_count": int64(42), "active_tickers": int64(7)},
	}}
	svc, _ := newTestService(t, runner, "")

	payload := svc.QueryVolume(context.Background(), "2026-01-15", "")
	feeds, ok := payload["feeds"].([]map[string]any)
	if !ok || len(feeds) != 3 {
		t.Fatalf("expected a summary per feed, got %v", payload)
	}
	for _, summary := range feeds {
		if summary["trade_count"] != int64(42) {
			t.Errorf("summary rows must be merged into the envelope: %v", summary)
		}
	}
	if len(runner.queries) != 3 {
		t.Errorf("expected one query per feed, got %d", len(runner.queries))
	}
}

func TestBucketToolsDelegateWhenAPIConfigured(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"feed": "kalshi", "count": 0, "trades": []}`))
	}))
	defer srv.Close()

	runner := &stubRunner{}
	svc, transport := newTestService(t, runner, srv.URL)

	payload := svc.QueryTrades(context.Background(), feed.Kalshi, "2026-01-15", 50)
	if payload["feed"] != "kalshi" {
		t.Fatalf("expected the proxied payload, got %v", payload)
	}
	if len(paths) != 1 || !strings.HasPrefix(paths[0], "/v1/data/trades?") {
		t.Fatalf("expected one request to /v1/data/trades, saw %v", paths)
	}
	for _, param := range []string{"feed=kalshi", "date=2026-01-15", "limit=50"} {
		if !strings.Contains(paths[0], param) {
			t.Errorf("request missing %s: %s", param, paths[0])
		}
	}
	if len(runner.queries) != 0 || transport.lists != 0 {
		t.Error("delegated tools must not touch the local query layer")
	}
}
