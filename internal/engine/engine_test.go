package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"ssmdquery/internal/feed"
	"ssmdquery/internal/testutil"
)

func TestRecoverable(t *testing.T) {
	recoverable := []error{
		errors.New("IO Error: No files found that match the pattern"),
		errors.New("HTTP Error: Unable to connect to URL"),
		errors.New("Catalog Error: Table with name x does not exist"),
		errors.New("HTTP GET error on 403 Forbidden"),
	}
	for _, err := range recoverable {
		if !Recoverable(err) {
			t.Errorf("expected recoverable: %v", err)
		}
	}

	fatal := []error{
		nil,
		errors.New("Parser Error: syntax error at or near SELEC"),
		errors.New("Binder Error: Referenced column nope not found"),
	}
	for _, err := range fatal {
		if Recoverable(err) {
			t.Errorf("expected not recoverable: %v", err)
		}
	}
}

func TestBearerSecretStatement(t *testing.T) {
	stmt := bearerSecretSQL("ya29.tok")
	if !strings.Contains(stmt, "TYPE HTTP") {
		t.Errorf("expected an HTTP typed secret, got %q", stmt)
	}
	if !strings.Contains(stmt, "EXTRA_HTTP_HEADERS MAP {'Authorization': 'Bearer ya29.tok'}") {
		t.Errorf("expected the token in the Authorization header, got %q", stmt)
	}
	if !strings.Contains(stmt, "CREATE OR REPLACE SECRET") {
		t.Errorf("secret must be replaceable on token refresh, got %q", stmt)
	}
}

func writeTradeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trade_1400.parquet")
	testutil.WriteParquet(t, path, new(testutil.TradeRecord), []any{
		testutil.TradeRecord{Ticker: "BTC-YES", Price: 100, Count: 5, Side: "yes", Ts: 1000},
		testutil.TradeRecord{Ticker: "BTC-YES", Price: 150, Count: 3, Side: "no", Ts: 2000},
		testutil.TradeRecord{Ticker: "BTC-YES", Price: 200, Count: 2, Side: "yes", Ts: 3000},
		testutil.TradeRecord{Ticker: "ETH-YES", Price: 50, Count: 1, Side: "yes", Ts: 1500},
	})
	return path
}

func fillPath(template, local string) string {
	return strings.Replace(template, feed.PathPlaceholder, fmt.Sprintf("'%s'", local), 1)
}

func TestSessionQueryLocalParquet(t *testing.T) {
	path := writeTradeFixture(t)

	s, err := OpenLocal()
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	rs, err := s.Query(context.Background(), fmt.Sprintf("SELECT market_ticker, price FROM read_parquet('%s') ORDER BY ts", path))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rs.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rs.Rows))
	}
	if rs.Columns[0] != "market_ticker" || rs.Columns[1] != "price" {
		t.Errorf("unexpected column order: %v", rs.Columns)
	}
	if rs.Rows[0]["market_ticker"] != "BTC-YES" {
		t.Errorf("unexpected first row: %v", rs.Rows[0])
	}
}

func TestTradeAggregationConvertsMinorUnits(t *testing.T) {
	path := writeTradeFixture(t)

	s, err := OpenLocal()
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	kalshi, _ := feed.Lookup(feed.Kalshi)
	rs, err := s.Query(context.Background(), fillPath(feed.TradeQuery(kalshi, 20), path))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("expected 2 tickers, got %d", len(rs.Rows))
	}

	// BTC-YES has the most trades so it sorts first; raw cents 100/150/200
	// must come back as dollars.
	top := rs.Rows[0]
	if top["ticker"] != "BTC-YES" {
		t.Fatalf("expected BTC-YES first, got %v", top["ticker"])
	}
	checks := map[string]float64{"min_price": 1.00, "max_price": 2.00, "avg_price": 1.50}
	for col, want := range checks {
		got, ok := top[col].(float64)
		if !ok {
			t.Fatalf("%s is not a float: %T %v", col, top[col], top[col])
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%s = %v, want %v", col, got, want)
		}
	}
	if fmt.Sprint(top["volume"]) != "10" {
		t.Errorf("volume = %v, want 10", top["volume"])
	}
}

func TestEventAggregationRollsUpMarkets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trade_1400.parquet")
	testutil.WriteParquet(t, path, new(testutil.TradeRecord), []any{
		testutil.TradeRecord{Ticker: "KXBTCD-25AUG31-T112000", Price: 100, Count: 5, Side: "yes", Ts: 1000},
		testutil.TradeRecord{Ticker: "KXBTCD-25AUG31-T113000", Price: 40, Count: 2, Side: "no", Ts: 2000},
		testutil.TradeRecord{Ticker: "KXBTCD-25AUG31-T112000", Price: 110, Count: 1, Side: "yes", Ts: 3000},
		testutil.TradeRecord{Ticker: "KXETHD-25AUG31-T4500", Price: 60, Count: 4, Side: "yes", Ts: 1500},
	})

	s, err := OpenLocal()
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	kalshi, _ := feed.Lookup(feed.Kalshi)
	rs, err := s.Query(context.Background(), fillPath(feed.EventQuery(kalshi, 20), path))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("expected two events, got %d rows", len(rs.Rows))
	}

	// The BTC event has two markets and three trades and sorts first.
	top := rs.Rows[0]
	if top["event"] != "KXBTCD-25AUG31" {
		t.Fatalf("expected the strike segment stripped, got %v", top["event"])
	}
	if fmt.Sprint(top["trade_count"]) != "3" || fmt.Sprint(top["market_count"]) != "2" {
		t.Errorf("unexpected rollup: %v", top)
	}
	if fmt.Sprint(top["volume"]) != "8" {
		t.Errorf("volume = %v, want 8", top["volume"])
	}
}

func TestSnapshotKeepsLatestRowPerTicker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ticker_1400.parquet")
	testutil.WriteParquet(t, path, new(testutil.TickerRecord), []any{
		testutil.TickerRecord{Ticker: "BTC-YES", YesBid: 60, YesAsk: 62, LastPrice: 61, Volume: 10, Ts: 1000},
		testutil.TickerRecord{Ticker: "BTC-YES", YesBid: 65, YesAsk: 67, LastPrice: 66, Volume: 20, Ts: 3000},
		testutil.TickerRecord{Ticker: "BTC-YES", YesBid: 63, YesAsk: 64, LastPrice: 63, Volume: 15, Ts: 2000},
		testutil.TickerRecord{Ticker: "ETH-YES", YesBid: 40, YesAsk: 45, LastPrice: 42, Volume: 99, Ts: 2500},
	})

	s, err := OpenLocal()
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer s.Close()

	kalshi, _ := feed.Lookup(feed.Kalshi)
	rs, err := s.Query(context.Background(), fillPath(feed.SnapshotQuery(kalshi), path))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("expected one row per ticker, got %d", len(rs.Rows))
	}

	// ETH-YES has the larger volume and sorts first.
	if rs.Rows[0]["ticker"] != "ETH-YES" {
		t.Errorf("expected volume-descending order, got %v first", rs.Rows[0]["ticker"])
	}
	for _, row := range rs.Rows {
		if row["ticker"] == "BTC-YES" {
			if fmt.Sprint(row["yes_bid"]) != "65" {
				t.Errorf("expected the latest snapshot (yes_bid=65), got %v", row["yes_bid"])
			}
		}
	}
}
