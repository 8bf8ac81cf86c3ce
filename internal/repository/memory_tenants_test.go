package repository

import (
	"context"
	"errors"
	"testing"

	"clinic-core/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTenantDirectory_Lookups(t *testing.T) {
	dir := NewMemoryTenantDirectory()
	dir.PutTenant(domain.Tenant{Slug: "acme", DisplayName: "Acme"})
	require.NoError(t, dir.AddDomain(domain.Domain{Hostname: "ACME.example.com", TenantSlug: "acme", IsPrimary: true}))

	ctx := context.Background()
	tenant, err := dir.GetTenantBySlug(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, domain.TenantStatusActive, tenant.Status)
	assert.False(t, tenant.CreatedAt.IsZero())

	tenant, err = dir.GetTenantByHostname(ctx, "acme.example.com")
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant.Slug)

	_, err = dir.GetTenantByHostname(ctx, "other.example.com")
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = dir.GetTenantBySlug(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryTenantDirectory_DomainConstraints(t *testing.T) {
	dir := NewMemoryTenantDirectory()
	dir.PutTenant(domain.Tenant{Slug: "acme"})
	dir.PutTenant(domain.Tenant{Slug: "beta"})

	require.NoError(t, dir.AddDomain(domain.Domain{Hostname: "acme.example.com", TenantSlug: "acme", IsPrimary: true}))

	err := dir.AddDomain(domain.Domain{Hostname: "acme.example.com", TenantSlug: "beta"})
	assert.Error(t, err, "hostname belongs to one tenant")

	err = dir.AddDomain(domain.Domain{Hostname: "acme2.example.com", TenantSlug: "acme", IsPrimary: true})
	assert.Error(t, err, "one primary domain per tenant")

	err = dir.AddDomain(domain.Domain{Hostname: "x.example.com", TenantSlug: "ghost"})
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, dir.AddDomain(domain.Domain{Hostname: "acme.local", TenantSlug: "acme"}))
	domains, err := dir.ListDomains(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "acme.example.com", domains[0].Hostname)
}

func TestMemoryTenantDirectory_ListTenantsByStatus(t *testing.T) {
	dir := NewMemoryTenantDirectory()
	dir.PutTenant(domain.Tenant{Slug: "beta"})
	dir.PutTenant(domain.Tenant{Slug: "acme"})
	dir.PutTenant(domain.Tenant{Slug: "gone", Status: domain.TenantStatusDeleted})

	all, err := dir.ListTenants(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "acme", all[0].Slug)

	active, err := dir.ListTenants(context.Background(), domain.TenantStatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}
