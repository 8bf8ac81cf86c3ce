package repository

import (
	"context"

	"clinic-core/internal/domain"
)

// TenantDirectory is the read-only view of the public tenants and domains
// tables used by tenant resolution. Lookups that match nothing return an
// error wrapping ErrNotFound; any other error means the store failed.
type TenantDirectory interface {
	// GetTenantBySlug looks a tenant up by its schema name.
	GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error)

	// GetTenantByHostname follows domains.hostname to its tenant.
	// hostname must already be lower-cased and stripped of any port.
	GetTenantByHostname(ctx context.Context, hostname string) (*domain.Tenant, error)

	// ListTenants lists tenants, optionally filtered by status, ordered by slug.
	ListTenants(ctx context.Context, status string) ([]*domain.Tenant, error)

	// ListDomains lists the domains of one tenant, primary first.
	ListDomains(ctx context.Context, slug string) ([]domain.Domain, error)
}
