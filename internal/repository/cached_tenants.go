package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/store"

	"go.uber.org/zap"
)

// CachedTenantDirectory puts a short-TTL Redis cache in front of another
// directory for slug and hostname lookups. Cache failures are logged and
// bypassed; misses are not cached.
type CachedTenantDirectory struct {
	inner  TenantDirectory
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedTenantDirectory(inner TenantDirectory, kv store.KV, ttl time.Duration, logger *zap.Logger) *CachedTenantDirectory {
	return &CachedTenantDirectory{inner: inner, kv: kv, ttl: ttl, logger: logger}
}

var _ TenantDirectory = (*CachedTenantDirectory)(nil)

func slugKey(slug string) string     { return "tenant:slug:" + slug }
func hostKey(hostname string) string { return "tenant:host:" + hostname }

func (c *CachedTenantDirectory) GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return c.cached(ctx, slugKey(slug), func() (*domain.Tenant, error) {
		return c.inner.GetTenantBySlug(ctx, slug)
	})
}

func (c *CachedTenantDirectory) GetTenantByHostname(ctx context.Context, hostname string) (*domain.Tenant, error) {
	return c.cached(ctx, hostKey(hostname), func() (*domain.Tenant, error) {
		return c.inner.GetTenantByHostname(ctx, hostname)
	})
}

func (c *CachedTenantDirectory) ListTenants(ctx context.Context, status string) ([]*domain.Tenant, error) {
	return c.inner.ListTenants(ctx, status)
}

func (c *CachedTenantDirectory) ListDomains(ctx context.Context, slug string) ([]domain.Domain, error) {
	return c.inner.ListDomains(ctx, slug)
}

// Invalidate drops cached entries for a tenant slug and hostnames.
func (c *CachedTenantDirectory) Invalidate(ctx context.Context, slug string, hostnames ...string) error {
	keys := []string{slugKey(slug)}
	for _, h := range hostnames {
		keys = append(keys, hostKey(h))
	}
	return c.kv.Del(ctx, keys...)
}

func (c *CachedTenantDirectory) cached(ctx context.Context, key string, load func() (*domain.Tenant, error)) (*domain.Tenant, error) {
	raw, err := c.kv.Get(ctx, key)
	switch {
	case err == nil:
		var t domain.Tenant
		if jerr := json.Unmarshal([]byte(raw), &t); jerr == nil {
			return &t, nil
		}
		c.logger.Warn("discarding undecodable tenant cache entry", zap.String("key", key))
	case !errors.Is(err, store.ErrMiss):
		c.logger.Warn("tenant cache read failed", zap.String("key", key), zap.Error(err))
	}

	t, err := load()
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(t); jerr == nil {
		if serr := c.kv.Set(ctx, key, string(b), c.ttl); serr != nil {
			c.logger.Warn("tenant cache write failed", zap.String("key", key), zap.Error(serr))
		}
	}
	return t, nil
}
