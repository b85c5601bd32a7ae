// Package engine provisions analytical sessions over the embedded DuckDB
// engine. Every request gets its own session so a failed credential or
// secret mutation cannot leak into a concurrent request.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"

	"ssmdquery/internal/gcs"
	"ssmdquery/logger"
	"ssmdquery/models"
)

// Runner executes SQL and returns rows in execution order. The query
// dispatcher depends on this rather than on a concrete session.
type Runner interface {
	Query(ctx context.Context, sqlText string) (*models.ResultSet, error)
}

// Session is one isolated engine connection. RemoteOK is advisory: it
// reports whether remote storage access was configured, but the dispatcher's
// local fallback is the actual safety net.
type Session struct {
	db       *sql.DB
	RemoteOK bool
}

// Provisioner opens sessions configured for the remote object store.
type Provisioner struct {
	Endpoint string
	Resolver *gcs.Resolver

	log *logger.Log
}

func NewProvisioner(endpoint string, resolver *gcs.Resolver) *Provisioner {
	return &Provisioner{
		Endpoint: endpoint,
		Resolver: resolver,
		log:      logger.GetLogger(),
	}
}

// Open creates a fresh session and attempts to configure remote access.
// A session with RemoteOK=false can still run queries against local paths.
func (p *Provisioner) Open(ctx context.Context) (*Session, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open engine session: %w", err)
	}

	s := &Session{db: db}
	s.RemoteOK = p.configureRemote(ctx, db)
	if !s.RemoteOK {
		p.log.WithComponent("engine").Warn("remote storage not configured; queries will rely on the local fallback")
	}
	return s, nil
}

// OpenLocal opens a session without configuring remote storage. Queries can
// only address local paths.
func OpenLocal() (*Session, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open engine session: %w", err)
	}
	return &Session{db: db}, nil
}

func (p *Provisioner) configureRemote(ctx context.Context, db *sql.DB) bool {
	log := p.log.WithComponent("engine")

	if _, err := db.ExecContext(ctx, "INSTALL httpfs; LOAD httpfs;"); err != nil {
		// Install fails when the extension is already present; loading alone
		// is then sufficient.
		if _, err := db.ExecContext(ctx, "LOAD httpfs;"); err != nil {
			log.WithError(err).Warn("httpfs extension unavailable")
			return false
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET s3_endpoint='%s';", p.Endpoint)); err != nil {
		log.WithError(err).Warn("failed to set storage endpoint")
		return false
	}
	if _, err := db.ExecContext(ctx, "SET s3_url_style='path';"); err != nil {
		log.WithError(err).Warn("failed to set url style")
		return false
	}

	// Ambient credential chain first; installation succeeding is treated as
	// success, verification happens implicitly on the first real query.
	if _, err := db.ExecContext(ctx, "CREATE SECRET IF NOT EXISTS gcs_secret (TYPE GCS, PROVIDER CREDENTIAL_CHAIN);"); err == nil {
		return true
	} else {
		log.WithError(err).Warn("credential chain secret failed, trying bearer token")
	}

	if p.Resolver == nil {
		return false
	}
	token := p.Resolver.Resolve(ctx)
	if token == "" {
		return false
	}

	if _, err := db.ExecContext(ctx, bearerSecretSQL(token)); err != nil {
		log.WithError(err).Warn("bearer token could not be registered")
		return false
	}
	return true
}

// bearerSecretSQL registers a bearer token as an HTTP secret so every
// request to the storage endpoint carries the Authorization header. GCS
// typed secrets only accept HMAC interop keys, which the resolver does not
// mint.
func bearerSecretSQL(token string) string {
	return fmt.Sprintf(
		"CREATE OR REPLACE SECRET gcs_bearer (TYPE HTTP, EXTRA_HTTP_HEADERS MAP {'Authorization': 'Bearer %s'});",
		token)
}

// Query runs one statement and scans every row into a column map. Column
// order follows the engine's result description; row order is whatever the
// statement produced.
func (s *Session) Query(ctx context.Context, sqlText string) (*models.ResultSet, error) {
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result description: %w", err)
	}

	result := &models.ResultSet{Columns: cols, Rows: []models.Row{}}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(models.Row, len(cols))
		for i, col := range cols {
			row[col] = models.Coerce(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	return result, rows.Err()
}

// Close releases the session.
func (s *Session) Close() error {
	return s.db.Close()
}

// recoverableMarkers identify engine errors meaning remote storage was not
// reachable or the object is not there. These trigger the local download
// fallback; anything else propagates.
var recoverableMarkers = []string{
	"IO Error",
	"HTTP Error",
	"Catalog Error",
	"No files found",
	"Unable to connect",
	"401",
	"403",
	"404",
}

// Recoverable reports whether an engine error should trigger the local
// fallback rather than fail the request.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range recoverableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
