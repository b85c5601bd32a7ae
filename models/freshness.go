package models

// Feed freshness statuses.
const (
	FreshnessOK     = "ok"
	FreshnessNoData = "no_data"
)

// FeedFreshness describes the newest data found for one feed. AgeHours and
// Stale are pointers because age can be unknown when the newest filename
// carries no recognizable hour token and the date fails to parse; in that
// case staleness cannot be asserted either.
type FeedFreshness struct {
	Feed         string   `json:"feed"`
	Status       string   `json:"status"`
	NewestDate   string   `json:"newestDate,omitempty"`
	NewestHour   string   `json:"newestHour,omitempty"`
	AgeHours     *float64 `json:"ageHours"`
	Stale        *bool    `json:"stale"`
	FileCount    int      `json:"fileCount"`
	ParquetCount int      `json:"parquetCount"`
}

// FreshnessReport is the envelope returned by the freshness prober.
type FreshnessReport struct {
	CheckedAt           string          `json:"checkedAt"`
	StaleThresholdHours float64         `json:"staleThresholdHours"`
	Feeds               []FeedFreshness `json:"feeds"`
}
