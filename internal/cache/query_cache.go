// Package cache provides the TTL cache for search results, keyed by query
// text plus a canonicalized option set.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ReeceHarding/new-scraper-sub001/internal/search"
	"github.com/ReeceHarding/new-scraper-sub001/internal/telemetry"
)

// Options is the canonicalizable option set that participates in the cache
// key. Key insertion order never affects the derived key.
type Options map[string]any

// entry is one cached search outcome.
type entry struct {
	results   []search.Result
	timestamp time.Time
}

// QueryCache caches search results per (query, options) with TTL expiry.
// Expired entries are deleted lazily on read; Cleanup sweeps in bulk.
type QueryCache struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a QueryCache with the given TTL.
func New(ttl time.Duration, logger *zap.Logger) *QueryCache {
	return &QueryCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Key derives the cache key: query + ":" + canonical JSON of the options.
// encoding/json marshals map keys in sorted order, which makes the encoding
// canonical for any nesting of maps and scalars.
func Key(query string, opts Options) (string, error) {
	if opts == nil {
		opts = Options{}
	}
	encoded, err := json.Marshal(opts)
	if err != nil {
		return "", fmt.Errorf("canonicalize cache options: %w", err)
	}
	return query + ":" + string(encoded), nil
}

// Get returns the cached results for (query, opts), or ok=false on a miss or
// an expired entry. Detecting an expired entry deletes it.
func (c *QueryCache) Get(query string, opts Options) ([]search.Result, bool) {
	key, err := Key(query, opts)
	if err != nil {
		c.logger.Warn("cache key derivation failed", zap.String("query", query), zap.Error(err))
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		telemetry.RecordCacheLookup("miss")
		return nil, false
	}
	if c.now().Sub(e.timestamp) > c.ttl {
		delete(c.entries, key)
		telemetry.RecordCacheLookup("expired")
		return nil, false
	}
	telemetry.RecordCacheLookup("hit")
	return e.results, true
}

// Set upserts the results for (query, opts) with a fresh timestamp.
func (c *QueryCache) Set(query string, opts Options, results []search.Result) {
	key, err := Key(query, opts)
	if err != nil {
		c.logger.Warn("cache key derivation failed", zap.String("query", query), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{results: results, timestamp: c.now()}
}

// Cleanup removes every entry older than the TTL and returns the number
// removed. Maintenance only; Get already hides expired entries.
func (c *QueryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	cutoff := c.now().Add(-c.ttl)
	for key, e := range c.entries {
		if e.timestamp.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Debug("query cache cleanup", zap.Int("removed", removed))
	}
	return removed
}

// Len reports the number of live entries, expired or not.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
