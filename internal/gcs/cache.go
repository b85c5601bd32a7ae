package gcs

import (
	"fmt"
	"os"
	"path/filepath"
)

// Cache names and checks local copies of downloaded objects. File names are
// deterministic in (feed, date, object basename), so repeated requests for
// the same object are idempotent. Presence on disk is treated as already
// downloaded; cached files are never revalidated against the remote copy.
type Cache struct {
	Dir string
}

// Path returns the local cache file path for a remote object.
func (c *Cache) Path(feedName, date, remote string) string {
	dir := c.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("ssmd_%s_%s_%s", feedName, date, Basename(remote))
	return filepath.Join(dir, name)
}

// Has reports whether the cache file already exists on disk.
func (c *Cache) Has(local string) bool {
	info, err := os.Stat(local)
	return err == nil && !info.IsDir()
}
