package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCoerce(t *testing.T) {
	ts := time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)

	cases := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{int64(42), int64(42)},
		{1.5, 1.5},
		{"BTC-YES", "BTC-YES"},
		{[]byte("raw"), "raw"},
		{ts, "2026-01-15T14:00:00Z"},
		{struct{ X int }{1}, "{1}"},
	}
	for _, c := range cases {
		if got := Coerce(c.in); got != c.want {
			t.Errorf("Coerce(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCoerceRow(t *testing.T) {
	r := Row{"ticker": "BTC-YES", "ts": time.Date(2026, 1, 15, 14, 0, 0, 0, time.UTC)}
	out := CoerceRow(r)
	if out["ts"] != "2026-01-15T14:00:00Z" {
		t.Errorf("timestamp not coerced: %v", out["ts"])
	}
	if _, err := json.Marshal(out); err != nil {
		t.Fatalf("coerced row should marshal: %v", err)
	}
}

func TestFreshnessReportJSON(t *testing.T) {
	age := 2.0
	stale := false
	report := FreshnessReport{
		CheckedAt:           "2026-01-15T16:00:00Z",
		StaleThresholdHours: 7,
		Feeds: []FeedFreshness{
			{Feed: "kalshi", Status: FreshnessOK, NewestDate: "2026-01-15", NewestHour: "1400", AgeHours: &age, Stale: &stale, FileCount: 3, ParquetCount: 3},
			{Feed: "polymarket", Status: FreshnessNoData, Stale: boolPtr(true)},
		},
	}
	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	feeds := out["feeds"].([]any)
	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(feeds))
	}
	first := feeds[0].(map[string]any)
	if first["newestHour"] != "1400" {
		t.Errorf("unexpected newestHour: %v", first["newestHour"])
	}
	second := feeds[1].(map[string]any)
	if _, ok := second["ageHours"]; !ok {
		t.Error("ageHours should serialize as explicit null")
	}
	if second["ageHours"] != nil {
		t.Errorf("unknown age should be null, got %v", second["ageHours"])
	}
}

func boolPtr(b bool) *bool { return &b }
