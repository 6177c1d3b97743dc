package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/logger"
	"github.com/iliyamo/agency-booking/internal/metrics"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/tenant"
)

const (
	tenantKey = "tenant"
	// TenantParam lets a platform admin name the tenant a request targets.
	TenantParam = "tenant_id"
)

// TenantReader loads tenants.
type TenantReader interface {
	GetByID(ctx context.Context, id uint64) (model.Tenant, error)
}

// ResolveTenant loads the tenant the caller operates on and stores it in the
// context.  A tenant_id query parameter is honored only for platform
// admins.  It does not evaluate the tenant's state.
func ResolveTenant(tenants TenantReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return apperr.Respond(c, errMissingBearer)
			}
			var requested uint64
			if raw := c.QueryParam(TenantParam); raw != "" {
				v, err := strconv.ParseUint(raw, 10, 64)
				if err != nil || v == 0 {
					return apperr.Respond(c, apperr.BadRequestf("invalid %s", TenantParam))
				}
				requested = v
			}
			tenantID, err := id.ResolveTenant(requested)
			if err != nil {
				return apperr.Respond(c, err)
			}
			t, err := tenants.GetByID(c.Request().Context(), tenantID)
			if err != nil {
				err = apperr.Wrap(err, "load tenant")
				if apperr.KindOf(err) == apperr.Transient {
					logger.FromEcho(c).Error("tenant lookup failed", zap.Uint64("tenant_id", tenantID), zap.Error(err))
				}
				return apperr.Respond(c, err)
			}
			c.Set(tenantKey, t)
			return next(c)
		}
	}
}

// TenantAccess denies requests for tenants that may not currently use the
// system.  It must run after ResolveTenant.  Platform admins are not
// subject to tenant state.
func TenantAccess(now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			t, ok := TenantFrom(c)
			if !ok {
				return apperr.Respond(c, apperr.Forbiddenf("tenant not resolved"))
			}
			if id, _ := IdentityFrom(c); id.IsPlatformAdmin() {
				return next(c)
			}
			if d := tenant.CanAccess(t, now()); !d.Allowed {
				metrics.AccessDeniedCounter.WithLabelValues(d.Reason).Inc()
				return apperr.Respond(c, apperr.Forbiddenf("%s", d.Reason))
			}
			return next(c)
		}
	}
}

// TenantFrom returns the tenant stored by ResolveTenant.
func TenantFrom(c echo.Context) (model.Tenant, bool) {
	t, ok := c.Get(tenantKey).(model.Tenant)
	return t, ok
}

// UnlessPlatformAdmin runs the stages for everybody except platform admins,
// who skip straight to the handler.  Used where a platform admin acts
// across tenants without naming one.
func UnlessPlatformAdmin(stages ...echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		chained := next
		for i := len(stages) - 1; i >= 0; i-- {
			chained = stages[i](chained)
		}
		return func(c echo.Context) error {
			if id, _ := IdentityFrom(c); id.IsPlatformAdmin() {
				return next(c)
			}
			return chained(c)
		}
	}
}
