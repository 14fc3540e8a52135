package jwtkit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultKeySetTTL    = time.Hour
	DefaultFetchTimeout = 10 * time.Second

	maxKeySetBytes = 1 << 20
)

// KeySetCache fetches key sets over HTTP and caches each one per URL for a
// fixed TTL. Entries are replaced wholesale, never mutated. Concurrent fetches
// for the same URL are not deduplicated; the last writer wins.
type KeySetCache struct {
	client  *http.Client
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	log     logrus.FieldLogger

	mu      sync.RWMutex
	entries map[string]keySetEntry
}

type keySetEntry struct {
	keys      []JWK
	fetchedAt time.Time
}

// CacheOpt configures a KeySetCache.
type CacheOpt func(*KeySetCache)

// WithHTTPClient sets the client used for key-set requests.
func WithHTTPClient(c *http.Client) CacheOpt {
	return func(k *KeySetCache) {
		if c != nil {
			k.client = c
		}
	}
}

// WithTTL overrides the one hour cache lifetime.
func WithTTL(ttl time.Duration) CacheOpt {
	return func(k *KeySetCache) {
		if ttl > 0 {
			k.ttl = ttl
		}
	}
}

// WithFetchTimeout overrides the ten second bound on a single fetch.
func WithFetchTimeout(d time.Duration) CacheOpt {
	return func(k *KeySetCache) {
		if d > 0 {
			k.timeout = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) CacheOpt {
	return func(k *KeySetCache) {
		if now != nil {
			k.now = now
		}
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l logrus.FieldLogger) CacheOpt {
	return func(k *KeySetCache) {
		if l != nil {
			k.log = l
		}
	}
}

// NewKeySetCache builds an empty cache.
func NewKeySetCache(opts ...CacheOpt) *KeySetCache {
	c := &KeySetCache{
		client:  http.DefaultClient,
		ttl:     DefaultKeySetTTL,
		timeout: DefaultFetchTimeout,
		now:     time.Now,
		log:     logrus.StandardLogger(),
		entries: make(map[string]keySetEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the key set at url, from cache when the entry is younger than
// the TTL. Failures are *FetchError or *FormatError.
func (c *KeySetCache) Fetch(ctx context.Context, url string) ([]JWK, error) {
	c.mu.RLock()
	e, ok := c.entries[url]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return slices.Clone(e.keys), nil
	}
	return c.Refresh(ctx, url)
}

// Refresh fetches url unconditionally and replaces the cached entry on success.
func (c *KeySetCache) Refresh(ctx context.Context, url string) ([]JWK, error) {
	keys, err := c.fetch(ctx, url)
	if err != nil {
		c.log.WithFields(logrus.Fields{"url": url}).WithError(err).Warn("jwks fetch failed")
		return nil, err
	}
	c.mu.Lock()
	c.entries[url] = keySetEntry{keys: keys, fetchedAt: c.now()}
	c.mu.Unlock()
	c.log.WithFields(logrus.Fields{"url": url, "keys": len(keys)}).Debug("jwks fetched")
	return slices.Clone(keys), nil
}

// Invalidate drops every cached entry.
func (c *KeySetCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]keySetEntry)
}

func (c *KeySetCache) fetch(ctx context.Context, url string) ([]JWK, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: url, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return ParseJWKS(body)
}
