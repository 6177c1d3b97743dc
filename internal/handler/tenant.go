package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/middleware"
	"github.com/iliyamo/agency-booking/internal/model"
	"github.com/iliyamo/agency-booking/internal/quota"
	"github.com/iliyamo/agency-booking/internal/service"
	"github.com/iliyamo/agency-booking/internal/tenant"
)

// TenantHandler serves tenant-scoped endpoints.  The tenant itself is
// resolved by the pipeline; handlers never read a tenant id from the body.
type TenantHandler struct {
	Tenants *service.TenantService
}

func NewTenantHandler(s *service.TenantService) *TenantHandler {
	return &TenantHandler{Tenants: s}
}

type overviewResp struct {
	Tenant tenantView      `json:"tenant"`
	Plan   model.Plan      `json:"plan"`
	Access tenant.Decision `json:"access"`
	Usage  []quota.Result  `json:"usage"`
}

// Overview reports the tenant, its plan, whether it may access the system
// right now and its usage against every plan limit.
func (h *TenantHandler) Overview(c echo.Context) error {
	t, _ := middleware.TenantFrom(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	ov, err := h.Tenants.Overview(ctx, t.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, overviewResp{
		Tenant: viewTenant(ov.Tenant),
		Plan:   ov.Plan,
		Access: ov.Access,
		Usage:  ov.Usage,
	})
}

// ActivateSubscription is reachable by tenants whose trial has lapsed so
// they can convert; the service still refuses suspended tenants.
func (h *TenantHandler) ActivateSubscription(c echo.Context) error {
	t, _ := middleware.TenantFrom(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	updated, err := h.Tenants.ActivateSubscription(ctx, t.ID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, viewTenant(updated))
}

type statusReq struct {
	Status model.TenantStatus `json:"status"`
}

// SetStatus is the platform admin override.
func (h *TenantHandler) SetStatus(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return fail(c, errInvalidBody)
	}
	if !req.Status.Valid() {
		return fail(c, apperr.BadRequestf("unknown status %q", req.Status))
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	updated, err := h.Tenants.SetStatus(ctx, id, req.Status)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, viewTenant(updated))
}
