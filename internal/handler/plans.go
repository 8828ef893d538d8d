package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// PlanLister lists purchasable plans.
type PlanLister interface {
	ListActivePlans(ctx context.Context) ([]model.Plan, error)
}

type PlanHandler struct {
	Plans PlanLister
}

func NewPlanHandler(plans PlanLister) *PlanHandler { return &PlanHandler{Plans: plans} }

// List handles GET /v1/plans.
func (h *PlanHandler) List(c echo.Context) error {
	plans, err := h.Plans.ListActivePlans(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"plans": plans})
}
