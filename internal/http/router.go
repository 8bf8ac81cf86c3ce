package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router uses the standard library http.ServeMux to avoid a third-party
// router dependency. Platform routes live on the root mux; every other
// request goes through the tenant pipeline into the tenant mux.
type Router struct {
	mux    *http.ServeMux
	tenant *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		tenant: http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler registers an http.Handler (promhttp and the like).
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterPlatformRoutes mounts the tenant-less routes. metrics may be nil.
func (r *Router) RegisterPlatformRoutes(p *PlatformHandler, metrics http.Handler) {
	r.Handle("GET /healthz", p.Healthz)
	r.Handle("GET /tenants", p.ListTenants)
	if metrics != nil {
		r.HandleHandler("GET /metrics", metrics)
	}
}

// RegisterTenantRoutes mounts the tenant-scoped API behind the pipeline.
// Paths are matched after a path-based tenant prefix has been stripped.
func (r *Router) RegisterTenantRoutes(pl *Pipeline, h *TenantHandler) {
	r.tenant.HandleFunc("GET /api/v1/context", h.GetContext)
	r.tenant.HandleFunc("GET /api/v1/menu", h.GetMenu)
	r.tenant.HandleFunc("GET /api/v1/permissions/check", h.CheckPermission)

	r.tenant.HandleFunc("GET /api/v1/admin/role-grants",
		pl.Require(RouteRolePermissions, actionView, h.ListRoleGrants))
	r.tenant.HandleFunc("PUT /api/v1/admin/role-grants",
		pl.Require(RouteRolePermissions, actionEdit, h.SaveRoleGrant))
	r.tenant.HandleFunc("DELETE /api/v1/admin/role-grants",
		pl.Require(RouteRolePermissions, actionDelete, h.DeleteRoleGrant))
	r.tenant.HandleFunc("PATCH /api/v1/admin/resources/{id}",
		pl.Require(RouteRolePermissions, actionEdit, h.SetResourceActive))
	r.tenant.HandleFunc("DELETE /api/v1/admin/resources/{id}",
		pl.Require(RouteRolePermissions, actionDelete, h.DeleteResource))

	r.tenant.HandleFunc("GET /api/v1/access-logs/export",
		pl.Require(RouteAccessLog, actionExport, h.ExportAccessLogs))

	r.mux.Handle("/", pl.Wrap(r.tenant))
}
