// Package query executes feed SQL templates with a two-tier strategy:
// direct remote execution first, then a list/download/re-query fallback
// against the local file cache.
package query

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ssmdquery/internal/engine"
	"ssmdquery/internal/feed"
	"ssmdquery/internal/gcs"
	"ssmdquery/logger"
	"ssmdquery/models"
)

// Dispatcher runs templates against an engine session, falling back to
// locally cached copies of the partition objects when remote execution
// fails. It holds no per-request state.
type Dispatcher struct {
	Paths     *gcs.Paths
	Cache     *gcs.Cache
	Transport gcs.Transport

	log *logger.Log
}

func NewDispatcher(paths *gcs.Paths, cache *gcs.Cache, transport gcs.Transport) *Dispatcher {
	return &Dispatcher{
		Paths:     paths,
		Cache:     cache,
		Transport: transport,
		log:       logger.GetLogger(),
	}
}

func quote(path string) string {
	return "'" + path + "'"
}

func listLiteral(paths []string) string {
	quoted := make([]string, len(paths))
	for i, p := range paths {
		quoted[i] = quote(p)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func fillTemplate(template, pathLiteral string) string {
	return strings.Replace(template, feed.PathPlaceholder, pathLiteral, 1)
}

// RunWithFallback executes a template carrying one path placeholder.
// Remote execution errors that indicate unreachable storage or a missing
// object trigger the local fallback; an exhausted fallback yields an empty
// result, not an error. The second, local execution has no safety net.
func (d *Dispatcher) RunWithFallback(ctx context.Context, runner engine.Runner, feedName, date, fileType, template, hour string) (*models.ResultSet, error) {
	start := time.Now()
	log := d.log.WithComponent("query_dispatcher").WithFields(logger.Fields{
		"feed":      feedName,
		"date":      date,
		"file_type": fileType,
	})

	remote := d.Paths.RemotePath(feedName, date, fileType, hour)
	rs, err := runner.Query(ctx, fillTemplate(template, quote(remote)))
	if err == nil {
		logger.IncrementRemoteQuery()
		logger.LogPerformanceEntry(log, "query_dispatcher", "remote_query", time.Since(start), logger.Fields{"rows": len(rs.Rows)})
		return rs, nil
	}
	if !engine.Recoverable(err) {
		return nil, err
	}

	log.WithError(err).Warn("remote query failed, falling back to local cache")
	logger.IncrementLocalFallback()

	var local string
	if hour == "" {
		locals := d.downloadPartition(ctx, feedName, date, fileType)
		if len(locals) == 0 {
			return models.Empty(), nil
		}
		local = listLiteral(locals)
	} else {
		cached, ok := d.ensureCached(ctx, feedName, date, gcs.ToListScheme(remote))
		if !ok {
			return models.Empty(), nil
		}
		local = quote(cached)
	}

	rs, err = runner.Query(ctx, fillTemplate(template, local))
	if err != nil {
		return nil, fmt.Errorf("local fallback query failed: %w", err)
	}
	logger.LogPerformanceEntry(log, "query_dispatcher", "local_query", time.Since(start), logger.Fields{"rows": len(rs.Rows)})
	return rs, nil
}

// ensureCached downloads one object into the cache unless it is already
// there. The check-then-download is not atomic; concurrent requests may
// both download the same immutable object, which is accepted.
func (d *Dispatcher) ensureCached(ctx context.Context, feedName, date, remote string) (string, bool) {
	local := d.Cache.Path(feedName, date, remote)
	if d.Cache.Has(local) {
		logger.IncrementCacheHit()
		return local, true
	}
	if err := d.Transport.Fetch(ctx, remote, local); err != nil {
		d.log.WithComponent("query_dispatcher").WithFields(logger.Fields{"remote": remote}).WithError(err).Warn("download failed")
		return "", false
	}
	if !d.Cache.Has(local) {
		return "", false
	}
	if info, err := os.Stat(local); err == nil {
		logger.IncrementDownload(info.Size())
	}
	return local, true
}

// downloadPartition lists a date partition and caches every object of the
// requested file type, returning the local paths that ended up available.
func (d *Dispatcher) downloadPartition(ctx context.Context, feedName, date, fileType string) []string {
	entries, err := d.Transport.List(ctx, d.Paths.ListPath(feedName, date))
	if err != nil {
		d.log.WithComponent("query_dispatcher").WithFields(logger.Fields{
			"feed": feedName,
			"date": date,
		}).WithError(err).Warn("partition listing failed")
		return nil
	}

	marker := "/" + fileType + "_"
	var locals []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry, ".parquet") || !strings.Contains(entry, marker) {
			continue
		}
		if local, ok := d.ensureCached(ctx, feedName, date, entry); ok {
			locals = append(locals, local)
		}
	}
	return locals
}
