// Package gcs provides access to the market-data bucket: deterministic path
// construction, a credential resolver with token caching, and a narrow
// transport capability (list, fetch, token) with CLI and SDK backends.
package gcs

import (
	"fmt"
	"path"
	"strings"

	"ssmdquery/internal/feed"
)

// Paths builds remote object paths from the static prefix table. It is pure
// and carries no state beyond configuration.
type Paths struct {
	Bucket string
	// Overrides replaces the default prefix for a feed when the bucket
	// layout diverges from the feed name.
	Overrides map[string]string
}

func (p *Paths) prefix(feedName string) string {
	if v, ok := p.Overrides[feedName]; ok {
		return v
	}
	return feed.Prefix(feedName)
}

// RemotePath returns the engine-facing path for a partition object. With an
// hour it addresses one specific file; without it returns a glob over all
// hours of the (feed, date, fileType) partition.
func (p *Paths) RemotePath(feedName, date, fileType, hour string) string {
	prefix := p.prefix(feedName)
	if hour != "" {
		return fmt.Sprintf("s3://%s/%s/%s/%s_%s.parquet", p.Bucket, prefix, date, fileType, hour)
	}
	return fmt.Sprintf("s3://%s/%s/%s/%s_*.parquet", p.Bucket, prefix, date, fileType)
}

// PartitionGlob returns an engine-facing glob over every parquet object in
// one date partition, regardless of file type.
func (p *Paths) PartitionGlob(feedName, date string) string {
	return fmt.Sprintf("s3://%s/%s/%s/*.parquet", p.Bucket, p.prefix(feedName), date)
}

// ListPath returns the transport-facing path for listing operations: the
// feed prefix, or one date partition when a date is given. Same logical
// objects as RemotePath, different URI scheme.
func (p *Paths) ListPath(feedName, date string) string {
	prefix := p.prefix(feedName)
	if date != "" {
		return fmt.Sprintf("gs://%s/%s/%s/", p.Bucket, prefix, date)
	}
	return fmt.Sprintf("gs://%s/%s/", p.Bucket, prefix)
}

// ToListScheme rewrites an engine-facing s3:// path to the transport's
// gs:// scheme.
func ToListScheme(remote string) string {
	if strings.HasPrefix(remote, "s3://") {
		return "gs://" + strings.TrimPrefix(remote, "s3://")
	}
	return remote
}

// splitObjectURL splits a gs:// or s3:// URL into bucket and key.
func splitObjectURL(url string) (bucket, key string, err error) {
	trimmed := url
	for _, scheme := range []string{"gs://", "s3://"} {
		if strings.HasPrefix(url, scheme) {
			trimmed = strings.TrimPrefix(url, scheme)
			break
		}
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid object url '%s'", url)
	}
	if len(parts) == 1 {
		return parts[0], "", nil
	}
	return parts[0], parts[1], nil
}

// Basename returns the object file name of a remote path.
func Basename(remote string) string {
	return path.Base(strings.TrimSuffix(remote, "/"))
}
