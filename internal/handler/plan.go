package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/agency-booking/internal/apperr"
	"github.com/iliyamo/agency-booking/internal/model"
)

// PlanLister lists the subscription plans.
type PlanLister interface {
	List(ctx context.Context) ([]model.Plan, error)
}

// PlanHandler lets prospective tenants pick a plan before registering.
type PlanHandler struct {
	Plans PlanLister
}

func NewPlanHandler(p PlanLister) *PlanHandler {
	return &PlanHandler{Plans: p}
}

func (h *PlanHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	plans, err := h.Plans.List(ctx)
	if err != nil {
		return fail(c, apperr.Wrap(err, "list plans"))
	}
	return c.JSON(http.StatusOK, echo.Map{"plans": plans})
}
