// Package router declares every HTTP route together with the pipeline stages
// it runs through.  Stages always run in the same order:
//
//	rate limit -> authenticate -> role -> resolve tenant -> tenant access -> quota -> handler
//
// so reading a Route tells you exactly what a request must pass.
package router

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-booking/internal/auth"
	"github.com/iliyamo/agency-booking/internal/handler"
	"github.com/iliyamo/agency-booking/internal/metrics"
	"github.com/iliyamo/agency-booking/internal/middleware"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
)

// TenantMode says how a route relates to the caller's tenant.
type TenantMode int

const (
	// NoTenant routes do not touch tenant data.
	NoTenant TenantMode = iota
	// TenantResolved loads the tenant without judging its state.
	TenantResolved
	// TenantChecked loads the tenant and requires that it may access the
	// system.
	TenantChecked
	// TenantCheckedUnlessPlatform is TenantChecked for tenant principals;
	// platform admins skip tenant resolution entirely.
	TenantCheckedUnlessPlatform
)

// Route is one entry of the route table.
type Route struct {
	Method      string
	Path        string
	Handler     echo.HandlerFunc
	Public      bool
	RateLimited bool
	// Roles lists the roles admitted besides PLATFORM_ADMIN.  Empty means
	// any authenticated principal.
	Roles  []model.Role
	Tenant TenantMode
	// Quota, when set, reserves one unit of the resource before the handler.
	Quota quota.Kind
}

// Deps carries what the stages need.
type Deps struct {
	Tokens  *auth.Manager
	Tenants middleware.TenantReader
	Gate    *quota.Gate
	Limiter echo.MiddlewareFunc
	Now     func() time.Time
}

var (
	tenantAdmin = []model.Role{model.RoleTenantAdmin}
	tenantStaff = []model.Role{model.RoleTenantAdmin, model.RoleTenantOperator}
	platform    = []model.Role{model.RolePlatformAdmin}
)

// Handlers groups the endpoint implementations.
type Handlers struct {
	Auth   *handler.AuthHandler
	Tenant *handler.TenantHandler
	Plans  *handler.PlanHandler
}

// Routes is the API surface.
func Routes(h Handlers) []Route {
	a, t := h.Auth, h.Tenant
	return []Route{
		{Method: http.MethodGet, Path: "/v1/plans", Handler: h.Plans.List, Public: true},
		{Method: http.MethodPost, Path: "/v1/auth/register", Handler: a.Register, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/v1/auth/login", Handler: a.Login, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/v1/auth/refresh", Handler: a.Refresh, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/v1/auth/verify-email", Handler: a.VerifyEmail, Public: true},
		{Method: http.MethodPost, Path: "/v1/auth/resend-verification", Handler: a.ResendVerification, Public: true, RateLimited: true},
		{Method: http.MethodPost, Path: "/v1/auth/logout", Handler: a.Logout},
		{Method: http.MethodGet, Path: "/v1/me", Handler: a.Me},

		{Method: http.MethodGet, Path: "/v1/tenant", Handler: t.Overview, Tenant: TenantChecked},
		// a lapsed trial must still be able to convert
		{Method: http.MethodPost, Path: "/v1/subscription/activate", Handler: t.ActivateSubscription, Roles: tenantAdmin, Tenant: TenantResolved},
		{Method: http.MethodPost, Path: "/v1/operators", Handler: t.CreateOperator, Roles: tenantAdmin, Tenant: TenantChecked, Quota: quota.Operators},
		{Method: http.MethodPost, Path: "/v1/principals/:id/deactivate", Handler: t.DeactivatePrincipal, Roles: tenantAdmin, Tenant: TenantCheckedUnlessPlatform},
		{Method: http.MethodPost, Path: "/v1/vehicles", Handler: t.Admit, Roles: tenantStaff, Tenant: TenantChecked, Quota: quota.Vehicles},
		// only the booking service, holding a platform credential, removes vehicles
		{Method: http.MethodDelete, Path: "/v1/vehicles/:id", Handler: t.ReleaseVehicle, Roles: platform, Tenant: TenantResolved},
		{Method: http.MethodPost, Path: "/v1/trips", Handler: t.Admit, Roles: tenantStaff, Tenant: TenantChecked, Quota: quota.Trips},

		{Method: http.MethodPatch, Path: "/v1/admin/tenants/:id/status", Handler: t.SetStatus, Roles: platform},
	}
}

// Stages returns the middleware chain for r, outermost first.
func Stages(r Route, d Deps) []echo.MiddlewareFunc {
	var stages []echo.MiddlewareFunc
	if r.RateLimited && d.Limiter != nil {
		stages = append(stages, d.Limiter)
	}
	if r.Public {
		return stages
	}
	stages = append(stages, middleware.Authenticate(d.Tokens))
	if len(r.Roles) > 0 {
		stages = append(stages, middleware.RequireRole(r.Roles...))
	}
	switch r.Tenant {
	case TenantResolved:
		stages = append(stages, middleware.ResolveTenant(d.Tenants))
	case TenantChecked:
		stages = append(stages, middleware.ResolveTenant(d.Tenants), middleware.TenantAccess(d.Now))
	case TenantCheckedUnlessPlatform:
		stages = append(stages, middleware.UnlessPlatformAdmin(
			middleware.ResolveTenant(d.Tenants), middleware.TenantAccess(d.Now)))
	}
	if r.Quota != "" {
		stages = append(stages, middleware.Quota(d.Gate, r.Quota))
	}
	return stages
}

// Register mounts the route table on e.
func Register(e *echo.Echo, routes []Route, d Deps) {
	for _, r := range routes {
		e.Add(r.Method, r.Path, r.Handler, Stages(r, d)...)
	}
}

// RegisterOps mounts the health check and the Prometheus scrape endpoint.
func RegisterOps(e *echo.Echo, checks map[string]handler.Check) {
	e.GET("/healthz", handler.Health(checks))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}
