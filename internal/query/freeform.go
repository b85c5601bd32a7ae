package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"ssmdquery/internal/engine"
	"ssmdquery/internal/feed"
	"ssmdquery/models"
)

// FreeformResult carries the outcome of an arbitrary SQL statement. The
// expanded statement is always echoed back so callers can see exactly what
// ran, including on failure.
type FreeformResult struct {
	SQL     string       `json:"sql"`
	Count   int          `json:"count"`
	Columns []string     `json:"columns,omitempty"`
	Rows    []models.Row `json:"rows,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// Failed reports whether the statement produced a structured error instead
// of rows.
func (r *FreeformResult) Failed() bool {
	return r.Error != ""
}

var (
	pathMacroRe = regexp.MustCompile(`ssmd_path\(\s*'([A-Za-z0-9-]+)'\s*(?:,\s*'(\d{4}-\d{2}-\d{2})'\s*)?\)`)
	limitRe     = regexp.MustCompile(`(?i)\blimit\s+\d+`)
)

// ExpandMacros replaces every ssmd_path('<feed>'[, '<date>']) call with a
// quoted parquet glob over that feed's date partition. A macro without a
// date expands against today's partition.
func (d *Dispatcher) ExpandMacros(sqlText, today string) (string, error) {
	expanded := pathMacroRe.ReplaceAllStringFunc(sqlText, func(match string) string {
		parts := pathMacroRe.FindStringSubmatch(match)
		date := parts[2]
		if date == "" {
			date = today
		}
		return quote(d.Paths.PartitionGlob(parts[1], date))
	})
	if idx := strings.Index(expanded, "ssmd_path("); idx >= 0 {
		return "", fmt.Errorf("malformed ssmd_path() call at offset %d: arguments must be quoted, the feed alphanumeric and the date YYYY-MM-DD", idx)
	}
	return expanded, nil
}

// RunFreeform expands path macros, caps unbounded statements at the row
// limit and executes the result. Failures are reported in the payload
// rather than as an error so the caller always gets the expanded SQL back.
func (d *Dispatcher) RunFreeform(ctx context.Context, runner engine.Runner, sqlText, today string) *FreeformResult {
	expanded, err := d.ExpandMacros(sqlText, today)
	if err != nil {
		return &FreeformResult{SQL: sqlText, Error: err.Error()}
	}
	if !limitRe.MatchString(expanded) {
		expanded = strings.TrimRight(expanded, " \t\n;") + fmt.Sprintf(" LIMIT %d", feed.MaxRowLimit)
	}

	rs, err := runner.Query(ctx, expanded)
	if err != nil {
		return &FreeformResult{SQL: expanded, Error: err.Error()}
	}
	return &FreeformResult{
		SQL:     expanded,
		Count:   len(rs.Rows),
		Columns: rs.Columns,
		Rows:    rs.Rows,
	}
}
