// Package fresh probes how current each feed's bucket data is by walking
// the newest date partitions and reading the hour token out of the newest
// object name.
package fresh

import (
	"context"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"ssmdquery/internal/gcs"
	"ssmdquery/logger"
	"ssmdquery/models"
)

// DefaultStaleThresholdHours marks a feed stale when its newest file is
// older than this.
const DefaultStaleThresholdHours = 7.0

// DefaultMaxDates bounds how many date partitions the prober walks back.
const DefaultMaxDates = 3

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hourRe = regexp.MustCompile(`^\d{4}$`)
)

// Prober inspects bucket partitions through the transport. It never fails a
// whole report over one feed; listing errors degrade that feed to no_data.
type Prober struct {
	Paths     *gcs.Paths
	Transport gcs.Transport

	// ThresholdHours is the staleness cutoff, DefaultStaleThresholdHours
	// when zero.
	ThresholdHours float64
	// MaxDates bounds the partition walk, DefaultMaxDates when zero.
	MaxDates int

	now func() time.Time
	log *logger.Log
}

func NewProber(paths *gcs.Paths, transport gcs.Transport, thresholdHours float64, maxDates int) *Prober {
	if thresholdHours <= 0 {
		thresholdHours = DefaultStaleThresholdHours
	}
	if maxDates <= 0 {
		maxDates = DefaultMaxDates
	}
	return &Prober{
		Paths:          paths,
		Transport:      transport,
		ThresholdHours: thresholdHours,
		MaxDates:       maxDates,
		now:            time.Now,
		log:            logger.GetLogger(),
	}
}

// Check probes the given feeds and assembles a report. Feed order in the
// report follows the argument order.
func (p *Prober) Check(ctx context.Context, feedNames []string) *models.FreshnessReport {
	report := &models.FreshnessReport{
		CheckedAt:           p.now().UTC().Format(time.RFC3339),
		StaleThresholdHours: p.ThresholdHours,
		Feeds:               make([]models.FeedFreshness, 0, len(feedNames)),
	}
	for _, name := range feedNames {
		report.Feeds = append(report.Feeds, p.checkFeed(ctx, name))
	}
	return report
}

func (p *Prober) checkFeed(ctx context.Context, feedName string) models.FeedFreshness {
	result := models.FeedFreshness{Feed: feedName, Status: models.FreshnessNoData}

	dates := p.listDates(ctx, feedName)
	if len(dates) == 0 {
		stale := true
		result.Stale = &stale
		return result
	}

	// Newest partitions can exist but still be empty while the writer is
	// between hours, so walk back until one has files.
	for _, date := range dates {
		files := p.listFiles(ctx, feedName, date)
		if len(files) == 0 {
			continue
		}

		result.Status = models.FreshnessOK
		result.NewestDate = date
		result.FileCount = len(files)
		for _, f := range files {
			if strings.HasSuffix(f, ".parquet") {
				result.ParquetCount++
			}
		}
		result.NewestHour = newestHour(files)

		if ts, ok := parsePartitionTime(date, result.NewestHour); ok {
			age := p.now().UTC().Sub(ts).Hours()
			stale := age > p.ThresholdHours
			result.AgeHours = &age
			result.Stale = &stale
		}
		return result
	}

	stale := true
	result.Stale = &stale
	return result
}

// listDates returns the newest date partitions of a feed, newest first,
// capped at MaxDates. Date strings sort chronologically, so a plain string
// sort suffices.
func (p *Prober) listDates(ctx context.Context, feedName string) []string {
	entries, err := p.Transport.List(ctx, p.Paths.ListPath(feedName, ""))
	if err != nil {
		p.log.WithComponent("freshness").WithFields(logger.Fields{"feed": feedName}).WithError(err).Warn("feed listing failed")
		return nil
	}

	var dates []string
	for _, entry := range entries {
		token := path.Base(strings.TrimSuffix(entry, "/"))
		if dateRe.MatchString(token) {
			dates = append(dates, token)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > p.MaxDates {
		dates = dates[:p.MaxDates]
	}
	return dates
}

// listFiles returns the data objects of one date partition, ignoring
// anything that is neither parquet nor the raw jsonl capture.
func (p *Prober) listFiles(ctx context.Context, feedName, date string) []string {
	entries, err := p.Transport.List(ctx, p.Paths.ListPath(feedName, date))
	if err != nil {
		p.log.WithComponent("freshness").WithFields(logger.Fields{"feed": feedName, "date": date}).WithError(err).Warn("partition listing failed")
		return nil
	}

	var files []string
	for _, entry := range entries {
		if strings.HasSuffix(entry, ".parquet") || strings.HasSuffix(entry, ".jsonl") {
			files = append(files, entry)
		}
	}
	return files
}

// newestHour extracts the largest four-digit hour token from the file
// names, or "" when none carries one.
func newestHour(files []string) string {
	newest := ""
	for _, f := range files {
		name := path.Base(f)
		name = strings.TrimSuffix(name, path.Ext(name))
		parts := strings.Split(name, "_")
		token := parts[len(parts)-1]
		if hourRe.MatchString(token) && token > newest {
			newest = token
		}
	}
	return newest
}

// parsePartitionTime combines a date partition and an HHMM hour token into
// a UTC timestamp. A missing hour token means the partition time cannot be
// pinned down, and age stays unknown.
func parsePartitionTime(date, hour string) (time.Time, bool) {
	if hour == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse("2006-01-02 1504", date+" "+hour)
	if err != nil {
		return time.Time{}, false
	}
	return ts.UTC(), true
}
