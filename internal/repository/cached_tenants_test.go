package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingDirectory counts calls that reach the underlying directory.
type countingDirectory struct {
	TenantDirectory
	bySlug int
	byHost int
}

func (c *countingDirectory) GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	c.bySlug++
	return c.TenantDirectory.GetTenantBySlug(ctx, slug)
}

func (c *countingDirectory) GetTenantByHostname(ctx context.Context, hostname string) (*domain.Tenant, error) {
	c.byHost++
	return c.TenantDirectory.GetTenantByHostname(ctx, hostname)
}

func newCachedFixture(t *testing.T) (*CachedTenantDirectory, *countingDirectory, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mem := NewMemoryTenantDirectory()
	mem.PutTenant(domain.Tenant{Slug: "acme", DisplayName: "Acme"})
	require.NoError(t, mem.AddDomain(domain.Domain{Hostname: "acme.example.com", TenantSlug: "acme", IsPrimary: true}))

	inner := &countingDirectory{TenantDirectory: mem}
	return NewCachedTenantDirectory(inner, store.NewRedisKV(rdb), time.Minute, zap.NewNop()), inner, mr
}

func TestCachedTenantDirectory_HitsCacheAfterFirstLookup(t *testing.T) {
	cached, inner, mr := newCachedFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tenant, err := cached.GetTenantBySlug(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme", tenant.DisplayName)
	}
	assert.Equal(t, 1, inner.bySlug)
	assert.True(t, mr.Exists("tenant:slug:acme"))

	_, err := cached.GetTenantByHostname(ctx, "acme.example.com")
	require.NoError(t, err)
	_, err = cached.GetTenantByHostname(ctx, "acme.example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, inner.byHost)
}

func TestCachedTenantDirectory_MissesAreNotCached(t *testing.T) {
	cached, inner, mr := newCachedFixture(t)
	ctx := context.Background()

	_, err := cached.GetTenantBySlug(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = cached.GetTenantBySlug(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Equal(t, 2, inner.bySlug)
	assert.False(t, mr.Exists("tenant:slug:ghost"))
}

func TestCachedTenantDirectory_ExpiryAndInvalidate(t *testing.T) {
	cached, inner, mr := newCachedFixture(t)
	ctx := context.Background()

	_, err := cached.GetTenantBySlug(ctx, "acme")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = cached.GetTenantBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.bySlug)

	_, err = cached.GetTenantByHostname(ctx, "acme.example.com")
	require.NoError(t, err)
	require.NoError(t, cached.Invalidate(ctx, "acme", "acme.example.com"))
	assert.False(t, mr.Exists("tenant:slug:acme"))
	assert.False(t, mr.Exists("tenant:host:acme.example.com"))
}

func TestCachedTenantDirectory_BypassesBrokenCache(t *testing.T) {
	cached, inner, mr := newCachedFixture(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("tenant:slug:acme", "{not json"))
	tenant, err := cached.GetTenantBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.Slug)
	assert.Equal(t, 1, inner.bySlug)

	mr.Close()
	tenant, err = cached.GetTenantBySlug(ctx, "acme")
	require.NoError(t, err, "redis outage falls through to the directory")
	assert.Equal(t, "acme", tenant.Slug)
	assert.Equal(t, 2, inner.bySlug)
}
