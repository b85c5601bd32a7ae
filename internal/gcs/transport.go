package gcs

import (
	"context"
	"time"
)

// Subprocess and request deadlines. Timeouts are soft failures: the
// operation reports no data rather than raising.
const (
	ListTimeout  = 30 * time.Second
	FetchTimeout = 60 * time.Second
	TokenTimeout = 10 * time.Second
)

// Transport is the narrow remote-storage capability used by the query
// dispatcher and the freshness prober. Implementations exist for the gsutil
// CLI and for the native SDK; callers never depend on which one is behind
// the interface.
type Transport interface {
	// List returns the object and prefix entries under a gs:// path.
	List(ctx context.Context, remotePath string) ([]string, error)
	// Fetch downloads one object to a local file path.
	Fetch(ctx context.Context, remotePath, localPath string) error
	// Token obtains a short-lived bearer token for the ambient identity.
	Token(ctx context.Context) (string, error)
}
