package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clinic-core/internal/domain"
	"clinic-core/internal/repository"
	"clinic-core/internal/service"

	"go.uber.org/zap"
)

// TenantHandler serves the tenant-scoped API. Every method runs behind the
// pipeline, so the tenant context is always present.
type TenantHandler struct {
	engine   *service.PermissionEngine
	catalog  *service.CatalogService
	exporter *service.AccessLogExporter
	logger   *zap.Logger
}

func NewTenantHandler(engine *service.PermissionEngine, catalog *service.CatalogService,
	exporter *service.AccessLogExporter, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{engine: engine, catalog: catalog, exporter: exporter, logger: logger}
}

type contextView struct {
	Tenant        *domain.Tenant `json:"tenant"`
	Strategy      string         `json:"strategy"`
	Prefix        string         `json:"prefix"`
	RemainingPath string         `json:"remaining_path"`
	User          *domain.User   `json:"user"`
}

// GetContext GET /api/v1/context
func (h *TenantHandler) GetContext(w http.ResponseWriter, r *http.Request) {
	tc, _ := service.TenantFromContext(r.Context())
	writeJSON(w, http.StatusOK, Ok(contextView{
		Tenant:        tc.Tenant,
		Strategy:      string(tc.Strategy),
		Prefix:        tc.Prefix(),
		RemainingPath: tc.RemainingPath,
		User:          UserFromContext(r.Context()),
	}))
}

// GetMenu GET /api/v1/menu
// Anonymous callers get an empty menu.
func (h *TenantHandler) GetMenu(w http.ResponseWriter, r *http.Request) {
	menu := h.engine.BuildMenu(r.Context(), UserFromContext(r.Context()))
	if menu == nil {
		menu = []service.MenuEntry{}
	}
	writeJSON(w, http.StatusOK, Ok(menu))
}

type checkView struct {
	RouteID  string `json:"route_id"`
	Action   string `json:"action"`
	Decision string `json:"decision"`
}

// CheckPermission GET /api/v1/permissions/check?route=&action=
// With an action the check is a logged authorization decision; without
// one it returns the capabilities the user has on the route.
func (h *TenantHandler) CheckPermission(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	routeID := q.Get("route")
	if routeID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("route is required"))
		return
	}
	user := UserFromContext(r.Context())

	if a := q.Get("action"); a != "" {
		action, err := domain.ParseAction(a)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
			return
		}
		d := h.engine.Authorize(r.Context(), user, routeID, action)
		writeJSON(w, http.StatusOK, Ok(checkView{RouteID: routeID, Action: string(action), Decision: d.String()}))
		return
	}
	writeJSON(w, http.StatusOK, Ok(h.engine.Can(r.Context(), user, routeID)))
}

// SaveRoleGrant PUT /api/v1/admin/role-grants
func (h *TenantHandler) SaveRoleGrant(w http.ResponseWriter, r *http.Request) {
	var req service.SaveRoleGrantRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body: "+err.Error()))
		return
	}
	g, err := h.catalog.SaveRoleGrant(r.Context(), service.PartitionFromContext(r.Context()), req)
	if err != nil {
		h.logFailure("save role grant", r, err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(g))
}

// DeleteRoleGrant DELETE /api/v1/admin/role-grants?role=&resource_id=
// ListRoleGrants GET /api/v1/admin/role-grants?role=
func (h *TenantHandler) ListRoleGrants(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		writeJSON(w, http.StatusBadRequest, Fail("role is required"))
		return
	}
	grants, err := h.catalog.RoleGrants(r.Context(), service.PartitionFromContext(r.Context()), role)
	if err != nil {
		h.logFailure("list role grants", r, err)
		writeServiceError(w, err)
		return
	}
	if grants == nil {
		grants = []service.RoleGrantView{}
	}
	writeJSON(w, http.StatusOK, Ok(grants))
}

func (h *TenantHandler) DeleteRoleGrant(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role := q.Get("role")
	id, err := parseInt64(q.Get("resource_id"))
	if role == "" || err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("role and resource_id are required"))
		return
	}
	if err := h.catalog.DeleteRoleGrant(r.Context(), service.PartitionFromContext(r.Context()), role, id); err != nil {
		h.logFailure("delete role grant", r, err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"role_code": role, "resource_id": id}))
}

type resourcePatch struct {
	Active *bool `json:"active"`
}

// SetResourceActive PATCH /api/v1/admin/resources/{id}
func (h *TenantHandler) SetResourceActive(w http.ResponseWriter, r *http.Request) {
	id, err := parseInt64(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("invalid resource id"))
		return
	}
	var body resourcePatch
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil || body.Active == nil {
		writeJSON(w, http.StatusBadRequest, Fail("body must set active"))
		return
	}
	if err := h.catalog.SetResourceActive(r.Context(), service.PartitionFromContext(r.Context()), id, *body.Active); err != nil {
		h.logFailure("set resource active", r, err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id, "active": *body.Active}))
}

// DeleteResource DELETE /api/v1/admin/resources/{id}
// Grants on the resource go with it.
func (h *TenantHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id, err := parseInt64(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("invalid resource id"))
		return
	}
	if err := h.catalog.DeleteResource(r.Context(), service.PartitionFromContext(r.Context()), id); err != nil {
		h.logFailure("delete resource", r, err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
}

// ExportAccessLogs GET /api/v1/access-logs/export?from=&to=&user_id=&route=&limit=
func (h *TenantHandler) ExportAccessLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := accessLogFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}
	tc, _ := service.TenantFromContext(r.Context())
	data, n, err := h.exporter.ExportXLSX(r.Context(), tc.Partition, filter)
	if err != nil {
		h.logFailure("export access log", r, err)
		writeServiceError(w, err)
		return
	}

	name := fmt.Sprintf("access_log_%s_%s.xlsx", tc.Slug(), time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("X-Row-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func accessLogFilter(r *http.Request) (repository.AccessLogFilter, error) {
	q := r.URL.Query()
	var f repository.AccessLogFilter
	var err error
	if f.From, err = parseTime(q.Get("from")); err != nil {
		return f, fmt.Errorf("invalid from: %w", err)
	}
	if f.To, err = parseTime(q.Get("to")); err != nil {
		return f, fmt.Errorf("invalid to: %w", err)
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil {
			return f, fmt.Errorf("invalid limit: %w", err)
		}
	}
	f.UserID = q.Get("user_id")
	f.RouteID = q.Get("route")
	return f, nil
}

func (h *TenantHandler) logFailure(op string, r *http.Request, err error) {
	tc, _ := service.TenantFromContext(r.Context())
	h.logger.Warn(op+" failed",
		zap.String("tenant", tc.Slug()),
		zap.String("request_id", service.RequestMetaFromContext(r.Context()).RequestID),
		zap.Error(err))
}
