package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"clinic-core/internal/domain"
	"clinic-core/internal/repository"

	"go.uber.org/zap"
)

// ErrInvalidInput marks request validation failures.
var ErrInvalidInput = errors.New("invalid input")

// CatalogService applies administrator edits to a tenant's catalog and
// invalidates cached snapshots after every successful write.
type CatalogService struct {
	store       repository.CatalogStore
	cache       *CatalogCache
	invalidator CatalogInvalidator
	logger      *zap.Logger
}

// NewCatalogService creates the service. invalidator may be nil when there
// are no peer processes to notify.
func NewCatalogService(store repository.CatalogStore, cache *CatalogCache, invalidator CatalogInvalidator, logger *zap.Logger) *CatalogService {
	return &CatalogService{store: store, cache: cache, invalidator: invalidator, logger: logger}
}

// SaveRoleGrantRequest is the body of a grant upsert. The view, create,
// edit and delete flags always follow Level.
type SaveRoleGrantRequest struct {
	RoleCode       string `json:"role_code"`
	ResourceID     int64  `json:"resource_id"`
	Level          string `json:"level"`
	CanExport      bool   `json:"can_export"`
	OwnRecordsOnly bool   `json:"own_records_only"`
}

func (s *CatalogService) SaveRoleGrant(ctx context.Context, p *repository.Partition, req SaveRoleGrantRequest) (*domain.RoleGrant, error) {
	if req.RoleCode == "" {
		return nil, fmt.Errorf("%w: role_code is required", ErrInvalidInput)
	}
	if req.ResourceID <= 0 {
		return nil, fmt.Errorf("%w: resource_id is required", ErrInvalidInput)
	}
	level, err := domain.ParseAccessLevel(req.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	g := &domain.RoleGrant{
		RoleCode:       req.RoleCode,
		ResourceID:     req.ResourceID,
		Level:          level,
		CanExport:      req.CanExport,
		OwnRecordsOnly: req.OwnRecordsOnly,
	}
	if err := s.store.SaveRoleGrant(ctx, p, g); err != nil {
		return nil, err
	}
	s.changed(p)
	return g, nil
}

// RoleGrantView is one grant of a role together with the resource and
// module it applies to.
type RoleGrantView struct {
	domain.RoleGrant
	RouteID        string `json:"route_id"`
	ResourceName   string `json:"resource_name"`
	ResourceActive bool   `json:"resource_active"`
	ModuleID       int64  `json:"module_id"`
	ModuleName     string `json:"module_name,omitempty"`
}

// RoleGrants lists every grant held by role, ordered like the menu. It
// reads the cached catalog, so it reflects writes made through this
// service immediately.
func (s *CatalogService) RoleGrants(ctx context.Context, p *repository.Partition, role string) ([]RoleGrantView, error) {
	if role == "" {
		return nil, fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	catalog, err := s.cache.Catalog(ctx, p)
	if err != nil {
		return nil, err
	}

	type ordered struct {
		view     RoleGrantView
		modOrder int
		resOrder int
	}
	var rows []ordered
	for _, g := range catalog.GrantsForRole(role) {
		row := ordered{view: RoleGrantView{RoleGrant: *g}}
		if res, ok := catalog.Resource(g.ResourceID); ok {
			row.view.RouteID = res.RouteID
			row.view.ResourceName = res.Name
			row.view.ResourceActive = res.Active
			row.view.ModuleID = res.ModuleID
			row.resOrder = res.Order
			if m, ok := catalog.Module(res.ModuleID); ok {
				row.view.ModuleName = m.Name
				row.modOrder = m.Order
			}
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.modOrder != b.modOrder {
			return a.modOrder < b.modOrder
		}
		if a.resOrder != b.resOrder {
			return a.resOrder < b.resOrder
		}
		return a.view.ResourceID < b.view.ResourceID
	})

	out := make([]RoleGrantView, len(rows))
	for i := range rows {
		out[i] = rows[i].view
	}
	return out, nil
}

func (s *CatalogService) DeleteRoleGrant(ctx context.Context, p *repository.Partition, roleCode string, resourceID int64) error {
	if err := s.store.DeleteRoleGrant(ctx, p, roleCode, resourceID); err != nil {
		return err
	}
	s.changed(p)
	return nil
}

func (s *CatalogService) SetResourceActive(ctx context.Context, p *repository.Partition, resourceID int64, active bool) error {
	if err := s.store.SetResourceActive(ctx, p, resourceID, active); err != nil {
		return err
	}
	s.changed(p)
	return nil
}

func (s *CatalogService) DeleteResource(ctx context.Context, p *repository.Partition, resourceID int64) error {
	if err := s.store.DeleteResource(ctx, p, resourceID); err != nil {
		return err
	}
	s.changed(p)
	return nil
}

func (s *CatalogService) changed(p *repository.Partition) {
	s.cache.Invalidate(p.Tenant)
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.PublishInvalidation(p.Tenant); err != nil {
		s.logger.Warn("catalog invalidation broadcast failed",
			zap.String("tenant", p.Tenant), zap.Error(err))
	}
}
