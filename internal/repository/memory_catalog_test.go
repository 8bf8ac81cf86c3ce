package repository

import (
	"context"
	"errors"
	"testing"

	"clinic-core/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededMemoryCatalog(t *testing.T) *MemoryCatalogStore {
	s := NewMemoryCatalogStore()
	s.PutModule("acme", domain.Module{ID: 1, Name: "Patients", Order: 1, Active: true})
	require.NoError(t, s.PutResource("acme", domain.Resource{ID: 10, ModuleID: 1, Name: "List", RouteID: "core:patient_list", Active: true, RequiresView: true}))
	require.NoError(t, s.PutResource("acme", domain.Resource{ID: 11, ModuleID: 1, Name: "New", RouteID: "core:patient_create", Active: true, RequiresCreate: true}))
	return s
}

func TestMemoryCatalogStore_TenantsAreIsolated(t *testing.T) {
	s := seededMemoryCatalog(t)
	ctx := context.Background()

	acme, err := s.LoadCatalog(ctx, &Partition{Tenant: "acme"})
	require.NoError(t, err)
	_, ok := acme.ActiveResource("core:patient_list")
	assert.True(t, ok)

	beta, err := s.LoadCatalog(ctx, &Partition{Tenant: "beta"})
	require.NoError(t, err)
	_, ok = beta.ActiveResource("core:patient_list")
	assert.False(t, ok)

	_, err = s.LoadCatalog(ctx, nil)
	assert.True(t, errors.Is(err, ErrNoPartition))
}

func TestMemoryCatalogStore_PutResourceNeedsModule(t *testing.T) {
	s := NewMemoryCatalogStore()
	err := s.PutResource("acme", domain.Resource{ID: 1, ModuleID: 42})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryCatalogStore_GrantLifecycle(t *testing.T) {
	s := seededMemoryCatalog(t)
	ctx := context.Background()
	p := &Partition{Tenant: "acme"}

	require.NoError(t, s.SaveRoleGrant(ctx, p, &domain.RoleGrant{RoleCode: "doctor", ResourceID: 10, Level: domain.LevelFull}))
	require.NoError(t, s.SaveRoleGrant(ctx, p, &domain.RoleGrant{RoleCode: "doctor", ResourceID: 11, Level: domain.LevelWrite}))

	err := s.SaveRoleGrant(ctx, p, &domain.RoleGrant{RoleCode: "doctor", ResourceID: 99, Level: domain.LevelRead})
	assert.True(t, errors.Is(err, ErrNotFound))

	catalog, err := s.LoadCatalog(ctx, p)
	require.NoError(t, err)
	g, ok := catalog.Grant("doctor", 10)
	require.True(t, ok)
	assert.True(t, g.CanDelete)

	// Downgrade replaces the previous grant.
	require.NoError(t, s.SaveRoleGrant(ctx, p, &domain.RoleGrant{RoleCode: "doctor", ResourceID: 10, Level: domain.LevelRead}))
	catalog, err = s.LoadCatalog(ctx, p)
	require.NoError(t, err)
	g, _ = catalog.Grant("doctor", 10)
	assert.False(t, g.CanDelete)

	require.NoError(t, s.DeleteRoleGrant(ctx, p, "doctor", 10))
	assert.True(t, errors.Is(s.DeleteRoleGrant(ctx, p, "doctor", 10), ErrNotFound))

	// Deleting a resource cascades to its grants.
	require.NoError(t, s.DeleteResource(ctx, p, 11))
	catalog, err = s.LoadCatalog(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, catalog.GrantsForRole("doctor"))
	assert.True(t, errors.Is(s.DeleteResource(ctx, p, 11), ErrNotFound))
}

func TestMemoryCatalogStore_SetResourceActive(t *testing.T) {
	s := seededMemoryCatalog(t)
	ctx := context.Background()
	p := &Partition{Tenant: "acme"}

	require.NoError(t, s.SetResourceActive(ctx, p, 10, false))
	catalog, err := s.LoadCatalog(ctx, p)
	require.NoError(t, err)
	_, ok := catalog.ActiveResource("core:patient_list")
	assert.False(t, ok)
	_, ok = catalog.Resource(10)
	assert.True(t, ok)

	assert.True(t, errors.Is(s.SetResourceActive(ctx, p, 404, true), ErrNotFound))
}
