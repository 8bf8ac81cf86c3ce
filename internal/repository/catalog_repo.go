package repository

import (
	"context"
	"errors"

	"clinic-core/internal/domain"
)

// ErrNoPartition is returned by tenant-scoped stores called without an
// activated partition.
var ErrNoPartition = errors.New("no active tenant partition")

// CatalogStore reads and edits one tenant's permission catalog (modules,
// resources and role_grants in the tenant schema). Every call is scoped by
// the partition it is given.
type CatalogStore interface {
	// LoadCatalog reads the whole catalog into an immutable snapshot.
	LoadCatalog(ctx context.Context, p *Partition) (*domain.Catalog, error)

	// SetResourceActive toggles a resource. Unknown ids return ErrNotFound.
	SetResourceActive(ctx context.Context, p *Partition, resourceID int64, active bool) error

	// DeleteResource removes a resource together with its grants.
	DeleteResource(ctx context.Context, p *Partition, resourceID int64) error

	// SaveRoleGrant normalizes and upserts g on (RoleCode, ResourceID).
	SaveRoleGrant(ctx context.Context, p *Partition, g *domain.RoleGrant) error

	// DeleteRoleGrant removes one grant. Unknown keys return ErrNotFound.
	DeleteRoleGrant(ctx context.Context, p *Partition, roleCode string, resourceID int64) error
}

func validateGrant(g *domain.RoleGrant) error {
	if g == nil {
		return errors.New("role grant is nil")
	}
	if g.RoleCode == "" {
		return errors.New("role_code is required")
	}
	if g.ResourceID <= 0 {
		return errors.New("resource_id is required")
	}
	if _, err := domain.ParseAccessLevel(string(g.Level)); err != nil {
		return err
	}
	return nil
}
