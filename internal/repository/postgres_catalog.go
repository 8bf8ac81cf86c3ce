package repository

import (
	"context"
	"fmt"
	"time"

	"clinic-core/internal/domain"
)

// PostgresCatalogStore reads the catalog tables through the partition's
// connection, whose search_path already points at the tenant schema.
type PostgresCatalogStore struct{}

func NewPostgresCatalogStore() *PostgresCatalogStore {
	return &PostgresCatalogStore{}
}

var _ CatalogStore = (*PostgresCatalogStore)(nil)

func querierOf(p *Partition) (Querier, error) {
	q := p.Querier()
	if q == nil {
		return nil, ErrNoPartition
	}
	return q, nil
}

func (s *PostgresCatalogStore) LoadCatalog(ctx context.Context, p *Partition) (*domain.Catalog, error) {
	q, err := querierOf(p)
	if err != nil {
		return nil, err
	}

	modules, err := loadModules(ctx, q)
	if err != nil {
		return nil, err
	}
	resources, err := loadResources(ctx, q)
	if err != nil {
		return nil, err
	}
	grants, err := loadGrants(ctx, q)
	if err != nil {
		return nil, err
	}
	return domain.NewCatalog(modules, resources, grants), nil
}

func loadModules(ctx context.Context, q Querier) ([]domain.Module, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, COALESCE(icon, ''), display_order, active FROM modules`)
	if err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	defer rows.Close()

	var out []domain.Module
	for rows.Next() {
		var m domain.Module
		if err := rows.Scan(&m.ID, &m.Name, &m.Icon, &m.Order, &m.Active); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func loadResources(ctx context.Context, q Querier) ([]domain.Resource, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, module_id, name, route_id, COALESCE(url_pattern, ''), COALESCE(icon, ''),
		       display_order, active, requires_view, requires_create, requires_edit, requires_delete
		FROM resources`)
	if err != nil {
		return nil, fmt.Errorf("failed to load resources: %w", err)
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		var r domain.Resource
		if err := rows.Scan(&r.ID, &r.ModuleID, &r.Name, &r.RouteID, &r.URLPattern, &r.Icon,
			&r.Order, &r.Active, &r.RequiresView, &r.RequiresCreate, &r.RequiresEdit, &r.RequiresDelete); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadGrants(ctx context.Context, q Querier) ([]domain.RoleGrant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT role_code, resource_id, level, can_view, can_create, can_edit, can_delete,
		       can_export, own_records_only, updated_at
		FROM role_grants`)
	if err != nil {
		return nil, fmt.Errorf("failed to load role grants: %w", err)
	}
	defer rows.Close()

	var out []domain.RoleGrant
	for rows.Next() {
		var g domain.RoleGrant
		var level string
		if err := rows.Scan(&g.RoleCode, &g.ResourceID, &level, &g.CanView, &g.CanCreate, &g.CanEdit,
			&g.CanDelete, &g.CanExport, &g.OwnRecordsOnly, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role grant: %w", err)
		}
		g.Level = domain.AccessLevel(level)
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *PostgresCatalogStore) SetResourceActive(ctx context.Context, p *Partition, resourceID int64, active bool) error {
	q, err := querierOf(p)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `UPDATE resources SET active = $2 WHERE id = $1`, resourceID, active)
	if err != nil {
		return fmt.Errorf("failed to update resource %d: %w", resourceID, err)
	}
	return expectOneRow(res, fmt.Sprintf("resource %d", resourceID))
}

// DeleteResource relies on role_grants.resource_id ON DELETE CASCADE.
func (s *PostgresCatalogStore) DeleteResource(ctx context.Context, p *Partition, resourceID int64) error {
	q, err := querierOf(p)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `DELETE FROM resources WHERE id = $1`, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete resource %d: %w", resourceID, err)
	}
	return expectOneRow(res, fmt.Sprintf("resource %d", resourceID))
}

func (s *PostgresCatalogStore) SaveRoleGrant(ctx context.Context, p *Partition, g *domain.RoleGrant) error {
	if err := validateGrant(g); err != nil {
		return err
	}
	q, err := querierOf(p)
	if err != nil {
		return err
	}

	g.Normalize()
	g.UpdatedAt = time.Now().UTC()

	_, err = q.ExecContext(ctx, `
		INSERT INTO role_grants (role_code, resource_id, level, can_view, can_create, can_edit,
		                         can_delete, can_export, own_records_only, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (role_code, resource_id) DO UPDATE SET
			level = EXCLUDED.level,
			can_view = EXCLUDED.can_view,
			can_create = EXCLUDED.can_create,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			can_export = EXCLUDED.can_export,
			own_records_only = EXCLUDED.own_records_only,
			updated_at = EXCLUDED.updated_at`,
		g.RoleCode, g.ResourceID, string(g.Level), g.CanView, g.CanCreate, g.CanEdit,
		g.CanDelete, g.CanExport, g.OwnRecordsOnly, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save role grant %s/%d: %w", g.RoleCode, g.ResourceID, err)
	}
	return nil
}

func (s *PostgresCatalogStore) DeleteRoleGrant(ctx context.Context, p *Partition, roleCode string, resourceID int64) error {
	q, err := querierOf(p)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		`DELETE FROM role_grants WHERE role_code = $1 AND resource_id = $2`, roleCode, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete role grant %s/%d: %w", roleCode, resourceID, err)
	}
	return expectOneRow(res, fmt.Sprintf("role grant %s/%d", roleCode, resourceID))
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func expectOneRow(res rowsAffecter, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
