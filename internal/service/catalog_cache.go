package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/metrics"
	"clinic-core/internal/repository"

	"go.uber.org/zap"
)

// CatalogSource hands out the permission catalog of the partition's tenant.
type CatalogSource interface {
	Catalog(ctx context.Context, p *repository.Partition) (*domain.Catalog, error)
}

type catalogEntry struct {
	catalog  *domain.Catalog
	loadedAt time.Time
}

// CatalogCache keeps one immutable catalog snapshot per tenant for ttl.
// Admin writes call Invalidate; other processes learn about them through
// the invalidation bus.
type CatalogCache struct {
	store   repository.CatalogStore
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	entries map[string]catalogEntry
	// Bumped by Invalidate and InvalidateAll. A load only stores its
	// snapshot if no invalidation happened while it ran.
	gens  map[string]uint64
	epoch uint64
}

func NewCatalogCache(store repository.CatalogStore, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *CatalogCache {
	return &CatalogCache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		metrics: m,
		entries: map[string]catalogEntry{},
		gens:    map[string]uint64{},
	}
}

var _ CatalogSource = (*CatalogCache)(nil)

// Catalog returns the cached snapshot or loads a fresh one. Load failures
// wrap ErrCatalogUnavailable and are not cached.
func (c *CatalogCache) Catalog(ctx context.Context, p *repository.Partition) (*domain.Catalog, error) {
	if p == nil || p.Tenant == "" {
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, repository.ErrNoPartition)
	}

	c.mu.RLock()
	e, ok := c.entries[p.Tenant]
	gen, epoch := c.gens[p.Tenant], c.epoch
	c.mu.RUnlock()
	if ok && (c.ttl <= 0 || c.now().Sub(e.loadedAt) < c.ttl) {
		return e.catalog, nil
	}

	catalog, err := c.store.LoadCatalog(ctx, p)
	c.metrics.CatalogLoaded(err)
	if err != nil {
		return nil, fmt.Errorf("tenant %q: %w: %v", p.Tenant, ErrCatalogUnavailable, err)
	}

	c.mu.Lock()
	if c.gens[p.Tenant] == gen && c.epoch == epoch {
		c.entries[p.Tenant] = catalogEntry{catalog: catalog, loadedAt: c.now()}
	}
	c.mu.Unlock()

	c.logger.Debug("permission catalog loaded", zap.String("tenant", p.Tenant))
	return catalog, nil
}

// Invalidate drops the snapshot of tenant.
func (c *CatalogCache) Invalidate(tenant string) {
	c.mu.Lock()
	delete(c.entries, tenant)
	c.gens[tenant]++
	c.mu.Unlock()
}

// InvalidateAll drops every snapshot.
func (c *CatalogCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = map[string]catalogEntry{}
	c.epoch++
	c.mu.Unlock()
}
