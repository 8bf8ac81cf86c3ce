package service

import (
	"context"
	"fmt"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/metrics"
	"clinic-core/internal/repository"

	"go.uber.org/zap"
)

// AccessRecorder receives one entry per authorization decision. Record
// must not block and must not fail the caller.
type AccessRecorder interface {
	Record(entry domain.AccessLogEntry)
}

// MenuEntry is one module of the navigation menu with the resources the
// user may see.
type MenuEntry struct {
	Module    domain.Module     `json:"module"`
	Resources []domain.Resource `json:"resources"`
}

// Capabilities is the per-action outcome for one resource.
type Capabilities struct {
	RouteID        string `json:"route_id"`
	Known          bool   `json:"known"`
	View           bool   `json:"can_view"`
	Create         bool   `json:"can_create"`
	Edit           bool   `json:"can_edit"`
	Delete         bool   `json:"can_delete"`
	Export         bool   `json:"can_export"`
	OwnRecordsOnly bool   `json:"own_records_only"`
}

// PermissionEngine answers "may this user do this action on this route"
// against the tenant's catalog found in the request context.
type PermissionEngine struct {
	catalogs CatalogSource
	recorder AccessRecorder
	failOpen bool
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewPermissionEngine(catalogs CatalogSource, recorder AccessRecorder, failOpen bool, logger *zap.Logger, m *metrics.Metrics) *PermissionEngine {
	return &PermissionEngine{
		catalogs: catalogs,
		recorder: recorder,
		failOpen: failOpen,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

func (e *PermissionEngine) openDecision() domain.Decision {
	if e.failOpen {
		return domain.Allow
	}
	return domain.Deny
}

// Authorize decides whether user may perform action on routeID. Superusers
// are allowed without a catalog lookup or log entry. A route the catalog
// does not know, or a catalog that cannot be read, yields the fail-open
// decision. Otherwise the action is allowed when any of the user's roles
// grants it. Every decision past the superuser check is recorded.
func (e *PermissionEngine) Authorize(ctx context.Context, user *domain.User, routeID string, action domain.Action) domain.Decision {
	if user != nil && user.IsSuperuser {
		return domain.Allow
	}

	entry := e.newEntry(ctx, user, routeID, action)
	decision := e.decide(ctx, user, routeID, action, &entry)

	entry.Decision = decision.String()
	e.metrics.Decision(string(action), entry.Decision)
	if e.recorder != nil {
		e.recorder.Record(entry)
	}
	return decision
}

// Check is Authorize reported as an error: nil when allowed, an error
// wrapping ErrPermissionDenied otherwise.
func (e *PermissionEngine) Check(ctx context.Context, user *domain.User, routeID string, action domain.Action) error {
	if e.Authorize(ctx, user, routeID, action) == domain.Allow {
		return nil
	}
	return fmt.Errorf("%s on %q: %w", action, routeID, ErrPermissionDenied)
}

func (e *PermissionEngine) decide(ctx context.Context, user *domain.User, routeID string, action domain.Action, entry *domain.AccessLogEntry) domain.Decision {
	catalog, err := e.catalog(ctx)
	if err != nil {
		e.logger.Warn("authorizing without permission catalog",
			zap.String("tenant", entry.TenantSlug),
			zap.String("route_id", routeID),
			zap.String("action", string(action)),
			zap.Bool("fail_open", e.failOpen),
			zap.Error(err))
		entry.Detail = "catalog unavailable"
		return e.openDecision()
	}

	res, ok := catalog.ActiveResource(routeID)
	if !ok {
		e.logger.Warn("unregistered route",
			zap.String("tenant", entry.TenantSlug),
			zap.String("route_id", routeID),
			zap.String("action", string(action)),
			zap.Bool("fail_open", e.failOpen))
		entry.Detail = "unregistered route"
		return e.openDecision()
	}
	id := res.ID
	entry.ResourceID = &id

	if user == nil {
		return domain.Deny
	}
	for _, role := range user.Roles {
		if g, ok := catalog.Grant(role, res.ID); ok && g.Capability(action) == domain.CapabilityAllow {
			return domain.Allow
		}
	}
	return domain.Deny
}

func (e *PermissionEngine) newEntry(ctx context.Context, user *domain.User, routeID string, action domain.Action) domain.AccessLogEntry {
	meta := RequestMetaFromContext(ctx)
	entry := domain.AccessLogEntry{
		RouteID:   routeID,
		Action:    action,
		IP:        meta.IP,
		UserAgent: domain.TruncateUserAgent(meta.UserAgent),
		At:        e.now().UTC(),
	}
	if tc, ok := TenantFromContext(ctx); ok {
		entry.TenantSlug = tc.Slug()
	}
	if user != nil && user.ID != "" {
		id := user.ID
		entry.UserID = &id
	}
	return entry
}

func (e *PermissionEngine) catalog(ctx context.Context) (*domain.Catalog, error) {
	tc, ok := TenantFromContext(ctx)
	if !ok {
		return nil, ErrCatalogUnavailable
	}
	return e.catalogs.Catalog(ctx, tc.Partition)
}

// BuildMenu lists the modules and resources user may view, in menu order.
// Anonymous users and unreadable catalogs get an empty menu.
func (e *PermissionEngine) BuildMenu(ctx context.Context, user *domain.User) []MenuEntry {
	menu := []MenuEntry{}
	if user == nil {
		return menu
	}
	catalog, err := e.catalog(ctx)
	if err != nil {
		e.logger.Warn("building empty menu without permission catalog", zap.Error(err))
		return menu
	}

	for _, m := range catalog.ActiveModules() {
		var visible []domain.Resource
		for _, r := range catalog.ActiveResourcesOf(m.ID) {
			if user.IsSuperuser || canView(catalog, user.Roles, r.ID) {
				visible = append(visible, *r)
			}
		}
		if len(visible) > 0 {
			menu = append(menu, MenuEntry{Module: *m, Resources: visible})
		}
	}
	return menu
}

func canView(catalog *domain.Catalog, roles []string, resourceID int64) bool {
	for _, role := range roles {
		if g, ok := catalog.Grant(role, resourceID); ok && g.CanView {
			return true
		}
	}
	return false
}

// Can reports every action's outcome for routeID without recording
// anything. It follows the same rules as Authorize, except that actions
// the resource does not declare are reported as unavailable so clients
// never offer them.
func (e *PermissionEngine) Can(ctx context.Context, user *domain.User, routeID string) Capabilities {
	caps := Capabilities{RouteID: routeID}
	all := func(v bool) {
		caps.View, caps.Create, caps.Edit, caps.Delete, caps.Export = v, v, v, v, v
	}

	if user != nil && user.IsSuperuser {
		caps.Known = true
		all(true)
		return caps
	}
	catalog, err := e.catalog(ctx)
	if err != nil {
		all(e.failOpen)
		return caps
	}
	res, ok := catalog.ActiveResource(routeID)
	if !ok {
		all(e.failOpen)
		return caps
	}
	caps.Known = true
	if user == nil {
		return caps
	}

	ownOnly, viewGrants := true, 0
	for _, role := range user.Roles {
		g, ok := catalog.Grant(role, res.ID)
		if !ok {
			continue
		}
		caps.View = caps.View || g.Capability(domain.ActionView) == domain.CapabilityAllow
		caps.Create = caps.Create || g.Capability(domain.ActionCreate) == domain.CapabilityAllow
		caps.Edit = caps.Edit || g.Capability(domain.ActionEdit) == domain.CapabilityAllow
		caps.Delete = caps.Delete || g.Capability(domain.ActionDelete) == domain.CapabilityAllow
		caps.Export = caps.Export || g.Capability(domain.ActionExport) == domain.CapabilityAllow
		if g.CanView {
			viewGrants++
			ownOnly = ownOnly && g.OwnRecordsOnly
		}
	}
	caps.View = caps.View && res.Requires(domain.ActionView)
	caps.Create = caps.Create && res.Requires(domain.ActionCreate)
	caps.Edit = caps.Edit && res.Requires(domain.ActionEdit)
	caps.Delete = caps.Delete && res.Requires(domain.ActionDelete)
	caps.Export = caps.Export && res.Requires(domain.ActionExport)
	// Restricted only when every role that can see the resource is restricted.
	caps.OwnRecordsOnly = viewGrants > 0 && ownOnly
	return caps
}

// PartitionFromContext returns the request's partition, if any.
func PartitionFromContext(ctx context.Context) *repository.Partition {
	if tc, ok := TenantFromContext(ctx); ok {
		return tc.Partition
	}
	return nil
}
