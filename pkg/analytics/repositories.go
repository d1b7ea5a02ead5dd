package analytics

import (
	"context"
	"sync"
	"time"

	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// DefaultCatalogTTL is how long a fetched catalog is reused across mounts.
const DefaultCatalogTTL = 5 * time.Minute

// NewRepositories adapts a client into the dashboard repository set. With a
// positive ttl the catalog is cached so each page mount does not hit /filters.
func NewRepositories(client Client, ttl time.Duration) dashboard.Repositories {
	repos := dashboard.RepositoriesFrom(client)
	if ttl > 0 {
		repos.Catalog = NewCachedCatalog(client, ttl)
	}
	return repos
}

// CachedCatalog reuses a successful catalog for ttl. Failures are never
// cached, so the next mount retries.
type CachedCatalog struct {
	repo dashboard.CatalogRepository
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	catalog dashboard.FilterCatalog
	expires time.Time
}

// NewCachedCatalog wraps repo.
func NewCachedCatalog(repo dashboard.CatalogRepository, ttl time.Duration) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &CachedCatalog{repo: repo, ttl: ttl, now: time.Now}
}

// FetchCatalog implements dashboard.CatalogRepository.
func (c *CachedCatalog) FetchCatalog(ctx context.Context) (dashboard.FilterCatalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.expires.IsZero() && c.now().Before(c.expires) {
		return c.catalog, nil
	}
	catalog, err := c.repo.FetchCatalog(ctx)
	if err != nil {
		return dashboard.FilterCatalog{}, err
	}
	c.catalog = catalog
	c.expires = c.now().Add(c.ttl)
	return catalog, nil
}

// Invalidate drops the cached catalog.
func (c *CachedCatalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expires = time.Time{}
}
