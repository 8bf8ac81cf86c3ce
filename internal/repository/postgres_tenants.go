package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clinic-core/internal/domain"
)

// PostgresTenantDirectory reads public.tenants and public.domains. Queries
// are schema-qualified so they work on any connection, including one whose
// search_path points at a tenant schema.
type PostgresTenantDirectory struct {
	db Querier
}

// NewPostgresTenantDirectory creates the directory.
func NewPostgresTenantDirectory(db Querier) *PostgresTenantDirectory {
	return &PostgresTenantDirectory{db: db}
}

var _ TenantDirectory = (*PostgresTenantDirectory)(nil)

const tenantColumns = `t.slug, t.display_name, COALESCE(t.status, 'active'), t.created_at`

func (r *PostgresTenantDirectory) GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	if slug == "" {
		return nil, fmt.Errorf("slug is required")
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM public.tenants t WHERE t.slug = $1`, slug)
	t, err := scanTenant(row)
	if err != nil {
		return nil, fmt.Errorf("get tenant %q: %w", slug, err)
	}
	return t, nil
}

func (r *PostgresTenantDirectory) GetTenantByHostname(ctx context.Context, hostname string) (*domain.Tenant, error) {
	if hostname == "" {
		return nil, fmt.Errorf("hostname is required")
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+`
		 FROM public.domains d
		 JOIN public.tenants t ON t.slug = d.tenant_slug
		 WHERE d.hostname = $1`, hostname)
	t, err := scanTenant(row)
	if err != nil {
		return nil, fmt.Errorf("get tenant by hostname %q: %w", hostname, err)
	}
	return t, nil
}

func (r *PostgresTenantDirectory) ListTenants(ctx context.Context, status string) ([]*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM public.tenants t`
	var args []any
	if status != "" {
		query += ` WHERE COALESCE(t.status, 'active') = $1`
		args = append(args, status)
	}
	query += ` ORDER BY t.slug`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*domain.Tenant{}
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.Slug, &t.DisplayName, &t.Status, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

func (r *PostgresTenantDirectory) ListDomains(ctx context.Context, slug string) ([]domain.Domain, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT hostname, tenant_slug, is_primary
		 FROM public.domains
		 WHERE tenant_slug = $1
		 ORDER BY is_primary DESC, hostname`, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains of %q: %w", slug, err)
	}
	defer rows.Close()

	var domains []domain.Domain
	for rows.Next() {
		var d domain.Domain
		if err := rows.Scan(&d.Hostname, &d.TenantSlug, &d.IsPrimary); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

func scanTenant(row *sql.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	if err := row.Scan(&t.Slug, &t.DisplayName, &t.Status, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
