package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinic-core/internal/domain"
)

type memoryCatalog struct {
	modules   map[int64]domain.Module
	resources map[int64]domain.Resource
	grants    map[domain.GrantKey]domain.RoleGrant
}

// MemoryCatalogStore keeps one catalog per tenant slug in process memory.
type MemoryCatalogStore struct {
	mu      sync.RWMutex
	tenants map[string]*memoryCatalog
}

func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{tenants: map[string]*memoryCatalog{}}
}

var _ CatalogStore = (*MemoryCatalogStore)(nil)

func (s *MemoryCatalogStore) tenant(slug string) *memoryCatalog {
	c, ok := s.tenants[slug]
	if !ok {
		c = &memoryCatalog{
			modules:   map[int64]domain.Module{},
			resources: map[int64]domain.Resource{},
			grants:    map[domain.GrantKey]domain.RoleGrant{},
		}
		s.tenants[slug] = c
	}
	return c
}

// PutModule inserts or replaces a module of tenant.
func (s *MemoryCatalogStore) PutModule(tenant string, m domain.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant(tenant).modules[m.ID] = m
}

// PutResource inserts or replaces a resource of tenant.
func (s *MemoryCatalogStore) PutResource(tenant string, r domain.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.tenant(tenant)
	if _, ok := c.modules[r.ModuleID]; !ok {
		return fmt.Errorf("module %d: %w", r.ModuleID, ErrNotFound)
	}
	c.resources[r.ID] = r
	return nil
}

func partitionTenant(p *Partition) (string, error) {
	if p == nil || p.Tenant == "" {
		return "", ErrNoPartition
	}
	return p.Tenant, nil
}

func (s *MemoryCatalogStore) LoadCatalog(_ context.Context, p *Partition) (*domain.Catalog, error) {
	slug, err := partitionTenant(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.tenants[slug]
	if !ok {
		return domain.NewCatalog(nil, nil, nil), nil
	}
	modules := make([]domain.Module, 0, len(c.modules))
	for _, m := range c.modules {
		modules = append(modules, m)
	}
	resources := make([]domain.Resource, 0, len(c.resources))
	for _, r := range c.resources {
		resources = append(resources, r)
	}
	grants := make([]domain.RoleGrant, 0, len(c.grants))
	for _, g := range c.grants {
		grants = append(grants, g)
	}
	return domain.NewCatalog(modules, resources, grants), nil
}

func (s *MemoryCatalogStore) SetResourceActive(_ context.Context, p *Partition, resourceID int64, active bool) error {
	slug, err := partitionTenant(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.tenant(slug)
	r, ok := c.resources[resourceID]
	if !ok {
		return fmt.Errorf("resource %d: %w", resourceID, ErrNotFound)
	}
	r.Active = active
	c.resources[resourceID] = r
	return nil
}

func (s *MemoryCatalogStore) DeleteResource(_ context.Context, p *Partition, resourceID int64) error {
	slug, err := partitionTenant(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.tenant(slug)
	if _, ok := c.resources[resourceID]; !ok {
		return fmt.Errorf("resource %d: %w", resourceID, ErrNotFound)
	}
	delete(c.resources, resourceID)
	for key := range c.grants {
		if key.ResourceID == resourceID {
			delete(c.grants, key)
		}
	}
	return nil
}

func (s *MemoryCatalogStore) SaveRoleGrant(_ context.Context, p *Partition, g *domain.RoleGrant) error {
	if err := validateGrant(g); err != nil {
		return err
	}
	slug, err := partitionTenant(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.tenant(slug)
	if _, ok := c.resources[g.ResourceID]; !ok {
		return fmt.Errorf("resource %d: %w", g.ResourceID, ErrNotFound)
	}
	g.Normalize()
	g.UpdatedAt = time.Now().UTC()
	c.grants[domain.GrantKey{RoleCode: g.RoleCode, ResourceID: g.ResourceID}] = *g
	return nil
}

func (s *MemoryCatalogStore) DeleteRoleGrant(_ context.Context, p *Partition, roleCode string, resourceID int64) error {
	slug, err := partitionTenant(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.tenant(slug)
	key := domain.GrantKey{RoleCode: roleCode, ResourceID: resourceID}
	if _, ok := c.grants[key]; !ok {
		return fmt.Errorf("role grant %s/%d: %w", roleCode, resourceID, ErrNotFound)
	}
	delete(c.grants, key)
	return nil
}
