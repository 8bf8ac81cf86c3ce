package repository

import (
	"context"
	"fmt"

	"clinic-core/internal/domain"
)

// SeedDemo fills the in-memory stores with the "public" tenant and one
// demo clinic, "acme" (acme.localhost), sharing the same core catalog.
func SeedDemo(dir *MemoryTenantDirectory, catalogs *MemoryCatalogStore) error {
	dir.PutTenant(domain.Tenant{Slug: "public", DisplayName: "Platform", Status: domain.TenantStatusActive})
	dir.PutTenant(domain.Tenant{Slug: "acme", DisplayName: "Acme Dental", Status: domain.TenantStatusActive})
	if err := dir.AddDomain(domain.Domain{Hostname: "acme.localhost", TenantSlug: "acme", IsPrimary: true}); err != nil {
		return err
	}

	for _, slug := range []string{"public", "acme"} {
		if err := seedCoreCatalog(catalogs, slug); err != nil {
			return fmt.Errorf("seed catalog for %q: %w", slug, err)
		}
	}
	return nil
}

func seedCoreCatalog(s *MemoryCatalogStore, slug string) error {
	s.PutModule(slug, domain.Module{ID: 1, Name: "Clinic", Icon: "stethoscope", Order: 1, Active: true})
	s.PutModule(slug, domain.Module{ID: 2, Name: "Administration", Icon: "settings", Order: 2, Active: true})

	resources := []domain.Resource{
		{ID: 1, ModuleID: 1, Name: "Dashboard", RouteID: "core:dashboard", URLPattern: "/", Order: 1, Active: true, RequiresView: true},
		{ID: 2, ModuleID: 1, Name: "Patients", RouteID: "core:patient_list", URLPattern: "/patients/", Order: 2, Active: true,
			RequiresView: true, RequiresCreate: true, RequiresEdit: true, RequiresDelete: true},
		{ID: 3, ModuleID: 2, Name: "Role permissions", RouteID: "core:role_permissions", URLPattern: "/admin/role-permissions/", Order: 1, Active: true,
			RequiresView: true, RequiresEdit: true, RequiresDelete: true},
		{ID: 4, ModuleID: 2, Name: "Access log", RouteID: "core:access_log", URLPattern: "/admin/access-log/", Order: 2, Active: true, RequiresView: true},
	}
	for _, r := range resources {
		if err := s.PutResource(slug, r); err != nil {
			return err
		}
	}

	p := &Partition{Tenant: slug}
	grants := []domain.RoleGrant{
		{RoleCode: "receptionist", ResourceID: 1, Level: domain.LevelRead},
		{RoleCode: "receptionist", ResourceID: 2, Level: domain.LevelWrite},
		{RoleCode: "dentist", ResourceID: 1, Level: domain.LevelRead},
		{RoleCode: "dentist", ResourceID: 2, Level: domain.LevelWrite, OwnRecordsOnly: true},
		{RoleCode: "manager", ResourceID: 1, Level: domain.LevelRead},
		{RoleCode: "manager", ResourceID: 2, Level: domain.LevelFull, CanExport: true},
		{RoleCode: "manager", ResourceID: 3, Level: domain.LevelFull},
		{RoleCode: "manager", ResourceID: 4, Level: domain.LevelRead, CanExport: true},
	}
	for i := range grants {
		if err := s.SaveRoleGrant(context.Background(), p, &grants[i]); err != nil {
			return err
		}
	}
	return nil
}
