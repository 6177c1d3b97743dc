package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-booking/internal/middleware"
	"github.com/iliyamo/agency-booking/internal/service"
)

type operatorReq struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// CreateOperator runs behind the operators quota stage, which has already
// claimed the slot and gives it back if this handler fails.
func (h *TenantHandler) CreateOperator(c echo.Context) error {
	t, _ := middleware.TenantFrom(c)
	var req operatorReq
	if err := c.Bind(&req); err != nil {
		return fail(c, errInvalidBody)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	p, err := h.Tenants.CreateOperator(ctx, t.ID, service.OperatorInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, viewPrincipal(p))
}

func (h *TenantHandler) DeactivatePrincipal(c echo.Context) error {
	target, err := idParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	caller, _ := middleware.IdentityFrom(c)
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.Tenants.DeactivatePrincipal(ctx, caller, target); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
