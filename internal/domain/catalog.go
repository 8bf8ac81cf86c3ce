package domain

import "sort"

// Module groups resources in the navigation menu (modules table).
type Module struct {
	ID     int64  `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Icon   string `db:"icon" json:"icon"`
	Order  int    `db:"display_order" json:"order"`
	Active bool   `db:"active" json:"active"`
}

// Resource is the unit permissions attach to: one menu entry, addressed by
// a stable RouteID such as "core:patient_list" (resources table).
type Resource struct {
	ID         int64  `db:"id" json:"id"`
	ModuleID   int64  `db:"module_id" json:"module_id"`
	Name       string `db:"name" json:"name"`
	RouteID    string `db:"route_id" json:"route_id"`
	URLPattern string `db:"url_pattern" json:"url_pattern,omitempty"`
	Icon       string `db:"icon" json:"icon,omitempty"`
	Order      int    `db:"display_order" json:"order"`
	Active     bool   `db:"active" json:"active"`

	// Which actions are meaningful for this resource.
	RequiresView   bool `db:"requires_view" json:"requires_view"`
	RequiresCreate bool `db:"requires_create" json:"requires_create"`
	RequiresEdit   bool `db:"requires_edit" json:"requires_edit"`
	RequiresDelete bool `db:"requires_delete" json:"requires_delete"`
}

// Requires reports whether the resource declares action as meaningful.
// Export is never declared and is always considered meaningful.
func (r *Resource) Requires(a Action) bool {
	switch a {
	case ActionView:
		return r.RequiresView
	case ActionCreate:
		return r.RequiresCreate
	case ActionEdit:
		return r.RequiresEdit
	case ActionDelete:
		return r.RequiresDelete
	case ActionExport:
		return true
	}
	return false
}

// GrantKey identifies a RoleGrant.
type GrantKey struct {
	RoleCode   string
	ResourceID int64
}

// Catalog is an immutable snapshot of one tenant's permission catalog.
// Build it with NewCatalog and never mutate it afterwards: snapshots are
// shared by concurrent requests.
type Catalog struct {
	modules   map[int64]*Module
	resources map[int64]*Resource
	byRoute   map[string]*Resource
	grants    map[GrantKey]*RoleGrant
	byRole    map[string][]*RoleGrant
}

// NewCatalog indexes modules, resources and grants. When several active
// resources share a RouteID the one with the lowest (Order, ID) wins.
func NewCatalog(modules []Module, resources []Resource, grants []RoleGrant) *Catalog {
	c := &Catalog{
		modules:   make(map[int64]*Module, len(modules)),
		resources: make(map[int64]*Resource, len(resources)),
		byRoute:   make(map[string]*Resource, len(resources)),
		grants:    make(map[GrantKey]*RoleGrant, len(grants)),
		byRole:    make(map[string][]*RoleGrant),
	}
	for i := range modules {
		m := modules[i]
		c.modules[m.ID] = &m
	}
	for i := range resources {
		r := resources[i]
		c.resources[r.ID] = &r
		if !r.Active || r.RouteID == "" {
			continue
		}
		if prev, ok := c.byRoute[r.RouteID]; ok {
			if prev.Order < r.Order || (prev.Order == r.Order && prev.ID < r.ID) {
				continue
			}
		}
		c.byRoute[r.RouteID] = c.resources[r.ID]
	}
	for i := range grants {
		g := grants[i]
		key := GrantKey{RoleCode: g.RoleCode, ResourceID: g.ResourceID}
		c.grants[key] = &g
		c.byRole[g.RoleCode] = append(c.byRole[g.RoleCode], &g)
	}
	return c
}

// ActiveResource returns the active resource registered for routeID.
func (c *Catalog) ActiveResource(routeID string) (*Resource, bool) {
	r, ok := c.byRoute[routeID]
	return r, ok
}

// Resource returns a resource by id regardless of its active flag.
func (c *Catalog) Resource(id int64) (*Resource, bool) {
	r, ok := c.resources[id]
	return r, ok
}

// Module returns a module by id.
func (c *Catalog) Module(id int64) (*Module, bool) {
	m, ok := c.modules[id]
	return m, ok
}

// Grant returns the grant for (roleCode, resourceID).
func (c *Catalog) Grant(roleCode string, resourceID int64) (*RoleGrant, bool) {
	g, ok := c.grants[GrantKey{RoleCode: roleCode, ResourceID: resourceID}]
	return g, ok
}

// GrantsForRole returns every grant held by roleCode.
func (c *Catalog) GrantsForRole(roleCode string) []*RoleGrant {
	return c.byRole[roleCode]
}

// ActiveModules returns active modules in menu order.
func (c *Catalog) ActiveModules() []*Module {
	out := make([]*Module, 0, len(c.modules))
	for _, m := range c.modules {
		if m.Active {
			out = append(out, m)
		}
	}
	SortModules(out)
	return out
}

// ActiveResourcesOf returns the active resources of moduleID in menu order.
func (c *Catalog) ActiveResourcesOf(moduleID int64) []*Resource {
	var out []*Resource
	for _, r := range c.resources {
		if r.Active && r.ModuleID == moduleID {
			out = append(out, r)
		}
	}
	SortResources(out)
	return out
}

// SortModules orders by Order, then Name.
func SortModules(ms []*Module) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].Order != ms[j].Order {
			return ms[i].Order < ms[j].Order
		}
		return ms[i].Name < ms[j].Name
	})
}

// SortResources orders by Order, then Name.
func SortResources(rs []*Resource) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Order != rs[j].Order {
			return rs[i].Order < rs[j].Order
		}
		return rs[i].Name < rs[j].Name
	})
}
