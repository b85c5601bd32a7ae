package gcs

import (
	"context"
	"sync"
	"time"

	"ssmdquery/logger"
)

// TokenTTL bounds how long a fetched bearer token is reused before a fresh
// one is minted.
const TokenTTL = 30 * time.Minute

// Resolver obtains and caches a short-lived bearer token for the object
// store. It is constructed once per process and safe for concurrent use;
// a refresh may race, but any valid token is acceptable immediately after
// write. Failure to obtain a token is soft: Resolve returns an empty string
// and the caller proceeds with whatever access mode remains.
type Resolver struct {
	mu        sync.Mutex
	token     string
	fetchedAt time.Time

	transport Transport
	now       func() time.Time
	log       *logger.Log
}

// NewResolver builds a resolver that mints tokens through the given
// transport's identity helper.
func NewResolver(t Transport) *Resolver {
	return &Resolver{
		transport: t,
		now:       time.Now,
		log:       logger.GetLogger(),
	}
}

// Resolve returns a bearer token or "" when none can be obtained. A cached
// token under TokenTTL old is reused without invoking the identity helper.
func (r *Resolver) Resolve(ctx context.Context) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && r.now().Sub(r.fetchedAt) < TokenTTL {
		return r.token
	}

	token, err := r.transport.Token(ctx)
	if err != nil {
		r.log.WithComponent("gcs_credentials").WithError(err).Warn("token fetch failed, proceeding without credential")
		return ""
	}

	r.token = token
	r.fetchedAt = r.now()
	r.log.WithComponent("gcs_credentials").Info("bearer token refreshed")
	return token
}

// Invalidate drops the cached token so the next Resolve mints a fresh one.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.token = ""
	r.fetchedAt = time.Time{}
	r.mu.Unlock()
}
