package dashboard

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultChartCacheSize bounds how many rendered charts are kept. Every
// distinct filter selection of every view produces its own entry.
const DefaultChartCacheSize = 512

// RenderCache memoizes rendered chart HTML keyed by result content.
type RenderCache interface {
	GetOrRender(key string, render func() (string, error)) (string, error)
}

// ChartCache keeps rendered charts for a TTL, up to a fixed number of
// entries. Concurrent misses on one key render once.
type ChartCache struct {
	ttl   time.Duration
	limit int
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]chartEntry
}

type chartEntry struct {
	html    string
	expires time.Time
}

// NewChartCache builds a cache with the provided TTL and the default size.
// A non-positive TTL disables caching.
func NewChartCache(ttl time.Duration) *ChartCache {
	return NewChartCacheWithLimit(ttl, DefaultChartCacheSize)
}

// NewChartCacheWithLimit builds a cache holding at most limit charts.
func NewChartCacheWithLimit(ttl time.Duration, limit int) *ChartCache {
	if limit <= 0 {
		limit = DefaultChartCacheSize
	}
	return &ChartCache{
		ttl:     ttl,
		limit:   limit,
		now:     time.Now,
		entries: make(map[string]chartEntry),
	}
}

// GetOrRender returns the cached chart for key or renders it. Render errors
// are returned to every waiting caller and never cached.
func (c *ChartCache) GetOrRender(key string, render func() (string, error)) (string, error) {
	if c == nil || c.ttl <= 0 {
		return render()
	}
	if html, ok := c.lookup(key); ok {
		return html, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if html, ok := c.lookup(key); ok {
			return html, nil
		}
		html, err := render()
		if err != nil {
			return "", err
		}
		c.store(key, html)
		return html, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len reports how many charts are cached, expired ones included until they
// are looked up or evicted.
func (c *ChartCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ChartCache) lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return "", false
	}
	return entry.html, true
}

func (c *ChartCache) store(key, html string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.limit {
		c.evictLocked(now)
	}
	c.entries[key] = chartEntry{html: html, expires: now.Add(c.ttl)}
}

// evictLocked drops expired entries, or the one closest to expiry when none
// has expired yet.
func (c *ChartCache) evictLocked(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || entry.expires.Before(oldest) {
			oldestKey, oldest = key, entry.expires
		}
	}
	if len(c.entries) >= c.limit && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// contentHash returns a deterministic hash of a JSON-encodable value.
func contentHash(v any) string {
	if v == nil {
		return "empty"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "invalid"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
