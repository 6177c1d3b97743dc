package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/logger"
	"github.com/iliyamo/agency-booking/internal/middleware"
	"github.com/iliyamo/agency-booking/internal/quota"
)

// Vehicles and trips live in the booking services.  Those services ask this
// one for admission before creating a record; a 201 here means one unit of
// the plan has been claimed for the tenant.

type admissionResp struct {
	TenantID uint64 `json:"tenant_id"`
	quota.Result
}

// Admit reports the reservation the quota stage made.
func (h *TenantHandler) Admit(c echo.Context) error {
	t, _ := middleware.TenantFrom(c)
	res, _ := middleware.QuotaFrom(c)
	return c.JSON(http.StatusCreated, admissionResp{TenantID: t.ID, Result: res})
}

// ReleaseVehicle gives a vehicle slot back after the booking service removed
// the vehicle.  Tenant principals cannot reach it: the booking service owns
// the vehicle records, so it alone knows a slot is really free.
func (h *TenantHandler) ReleaseVehicle(c echo.Context) error {
	vehicleID, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	t, _ := middleware.TenantFrom(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Tenants.ReleaseUsage(ctx, t.ID, quota.Vehicles); err != nil {
		return fail(c, err)
	}
	logger.FromEcho(c).Info("vehicle slot released",
		zap.Uint64("tenant_id", t.ID), zap.Uint64("vehicle_id", vehicleID))
	return c.NoContent(http.StatusNoContent)
}
