package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clinic-core/internal/domain"
)

// MemoryTenantDirectory backs the directory when the database is disabled
// (local development and tests).
type MemoryTenantDirectory struct {
	mu      sync.RWMutex
	tenants map[string]domain.Tenant // slug -> tenant
	domains map[string]domain.Domain // hostname -> domain
}

func NewMemoryTenantDirectory() *MemoryTenantDirectory {
	return &MemoryTenantDirectory{
		tenants: map[string]domain.Tenant{},
		domains: map[string]domain.Domain{},
	}
}

var _ TenantDirectory = (*MemoryTenantDirectory)(nil)

// PutTenant inserts or replaces a tenant.
func (r *MemoryTenantDirectory) PutTenant(t domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.Status == "" {
		t.Status = domain.TenantStatusActive
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r.tenants[t.Slug] = t
}

// AddDomain maps hostname to an existing tenant. A hostname already mapped
// to a different tenant, or a second primary domain, is rejected.
func (r *MemoryTenantDirectory) AddDomain(d domain.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d.Hostname = strings.ToLower(d.Hostname)
	if _, ok := r.tenants[d.TenantSlug]; !ok {
		return fmt.Errorf("tenant %q: %w", d.TenantSlug, ErrNotFound)
	}
	if existing, ok := r.domains[d.Hostname]; ok && existing.TenantSlug != d.TenantSlug {
		return fmt.Errorf("hostname %q already belongs to tenant %q", d.Hostname, existing.TenantSlug)
	}
	if d.IsPrimary {
		for _, other := range r.domains {
			if other.TenantSlug == d.TenantSlug && other.IsPrimary && other.Hostname != d.Hostname {
				return fmt.Errorf("tenant %q already has primary domain %q", d.TenantSlug, other.Hostname)
			}
		}
	}
	r.domains[d.Hostname] = d
	return nil
}

func (r *MemoryTenantDirectory) GetTenantBySlug(_ context.Context, slug string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[slug]
	if !ok {
		return nil, fmt.Errorf("get tenant %q: %w", slug, ErrNotFound)
	}
	return &t, nil
}

func (r *MemoryTenantDirectory) GetTenantByHostname(_ context.Context, hostname string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.domains[hostname]
	if !ok {
		return nil, fmt.Errorf("get tenant by hostname %q: %w", hostname, ErrNotFound)
	}
	t, ok := r.tenants[d.TenantSlug]
	if !ok {
		return nil, fmt.Errorf("get tenant by hostname %q: %w", hostname, ErrNotFound)
	}
	return &t, nil
}

func (r *MemoryTenantDirectory) ListTenants(_ context.Context, status string) ([]*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		if status != "" && t.Status != status {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r *MemoryTenantDirectory) ListDomains(_ context.Context, slug string) ([]domain.Domain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Domain
	for _, d := range r.domains {
		if d.TenantSlug == slug {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].Hostname < out[j].Hostname
	})
	return out, nil
}
