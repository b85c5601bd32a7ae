// Package api talks to the ssmd REST service for the lookups that never
// touch the bucket, primarily market metadata.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ssmdquery/logger"
)

const clientVersion = "1.0.0"

// DefaultTimeout bounds every request to the REST service.
const DefaultTimeout = 30 * time.Second

// ErrNotConfigured is returned before any network activity when the service
// URL is absent.
var ErrNotConfigured = errors.New("SSMD_API_URL not configured")

// Client is a thin authenticated wrapper over the REST service. Market
// lookups are cached for the lifetime of the process; market metadata does
// not change within a session.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
	log     *logger.Log

	// markets caches looked-up records keyed "<feed>:<id>".
	mu      sync.Mutex
	markets map[string]any
}

func NewClient(baseURL, key string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		http:    &http.Client{Timeout: timeout},
		log:     logger.GetLogger(),
		markets: make(map[string]any),
	}
}

// Configured reports whether a service URL is present.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Get performs an authenticated GET against the service and decodes the
// JSON response. Non-2xx statuses become errors carrying the response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (any, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("User-Agent", "ssmdquery/"+clientVersion)
	req.Header.Set("X-Client-Type", "mcp")
	req.Header.Set("Accept", "application/json")
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	logger.IncrementAPIProxy()
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}
	c.log.WithComponent("api_client").WithFields(logger.Fields{
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("api request complete")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api returned %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(body)))
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return decoded, nil
}

// LookupMarkets resolves market metadata for the given identifiers, serving
// repeats from the session cache and fetching only the misses in one
// request. Identifiers unknown to the service are absent from the result
// list.
func (c *Client) LookupMarkets(ctx context.Context, ids []string, feedName string) ([]any, error) {
	found := make([]any, 0, len(ids))
	var misses []string

	c.mu.Lock()
	for _, id := range ids {
		if v, ok := c.markets[cacheKey(feedName, id)]; ok {
			found = append(found, v)
		} else {
			misses = append(misses, id)
		}
	}
	c.mu.Unlock()

	if len(misses) == 0 {
		return found, nil
	}

	params := url.Values{"ids": {strings.Join(misses, ",")}}
	if feedName != "" {
		params.Set("feed", feedName)
	}
	decoded, err := c.Get(ctx, "/v1/markets/lookup", params)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, rec := range marketRecords(decoded) {
		found = append(found, rec)
		if id := recordID(rec); id != "" {
			c.markets[cacheKey(feedName, id)] = rec
		}
	}
	c.mu.Unlock()
	return found, nil
}

func cacheKey(feedName, id string) string {
	return feedName + ":" + id
}

// marketRecords normalizes the two response shapes the service produces:
// a bare JSON array of market records, or an array under "markets".
func marketRecords(decoded any) []any {
	switch v := decoded.(type) {
	case []any:
		return v
	case map[string]any:
		if inner, ok := v["markets"].([]any); ok {
			return inner
		}
	}
	return nil
}

// recordID extracts the identifier of a market record. Feeds name the field
// differently; the first populated one wins.
func recordID(rec any) string {
	obj, ok := rec.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"id", "market_ticker", "product_id"} {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
