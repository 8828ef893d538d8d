package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trainer-seat-allocation/internal/allocation"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// AllocationService is the part of allocation.Service the handlers call.
type AllocationService interface {
	ValidateStudentCreation(ctx context.Context, trainerID uint64, quantity int) (allocation.Verdict, error)
	AssignResourceToStudent(ctx context.Context, trainerID, studentID uint64) (allocation.AssignmentResult, error)
	ProcessPlanTransition(ctx context.Context, trainerID, newPlanID uint64, opts allocation.TransitionOptions) (allocation.TransitionResult, error)
	ManuallyReactivateStudents(ctx context.Context, trainerID uint64, studentIDs []uint64) (allocation.ReactivationResult, error)
	GetEligibleStudentsForReactivation(ctx context.Context, trainerID uint64) ([]allocation.EligibleStudent, error)
	DeactivateStudent(ctx context.Context, trainerID, studentID uint64, reason model.DeactivationReason) (*model.DeactivationRecord, error)
}

// AllocationHandler serves the trainer-facing allocation endpoints.
type AllocationHandler struct {
	Svc AllocationService
}

func NewAllocationHandler(svc AllocationService) *AllocationHandler {
	if svc == nil {
		panic("nil service passed to NewAllocationHandler")
	}
	return &AllocationHandler{Svc: svc}
}

// Validate handles POST /v1/students/validate.  A negative verdict is
// still a 200: the body says why.
func (h *AllocationHandler) Validate(c echo.Context) error {
	trainerID, err := getTrainerID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}
	if body.Quantity < 0 {
		return badRequest(c, "quantity must be positive")
	}
	v, err := h.Svc.ValidateStudentCreation(c.Request().Context(), trainerID, body.Quantity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

// AssignResource handles POST /v1/students/:id/resource.
func (h *AllocationHandler) AssignResource(c echo.Context) error {
	trainerID, err := getTrainerID(c)
	if err != nil {
		return unauthorized(c)
	}
	studentID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid student id")
	}
	res, err := h.Svc.AssignResourceToStudent(c.Request().Context(), trainerID, studentID)
	if err != nil {
		return writeError(c, err)
	}
	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// Deactivate handles POST /v1/students/:id/deactivate.  The reason
// defaults to manual.
func (h *AllocationHandler) Deactivate(c echo.Context) error {
	trainerID, err := getTrainerID(c)
	if err != nil {
		return unauthorized(c)
	}
	studentID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid student id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	reason := model.ReasonManual
	if r := strings.TrimSpace(body.Reason); r != "" {
		parsed, err := model.ParseDeactivationReason(r)
		if err != nil {
			return badRequest(c, err.Error())
		}
		reason = parsed
	}
	rec, err := h.Svc.DeactivateStudent(c.Request().Context(), trainerID, studentID, reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

// Transition handles POST /v1/plan-transitions.
func (h *AllocationHandler) Transition(c echo.Context) error {
	trainerID, err := getTrainerID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		PlanID           uint64 `json:"plan_id"`
		MaxReactivations int    `json:"max_reactivations"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.PlanID == 0 {
		return badRequest(c, "plan_id is required")
	}
	res, err := h.Svc.ProcessPlanTransition(c.Request().Context(), trainerID, body.PlanID,
		allocation.TransitionOptions{MaxReactivations: body.MaxReactivations})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// ReactivationCandidates handles GET /v1/students/reactivation-candidates.
func (h *AllocationHandler) ReactivationCandidates(c echo.Context) error {
	trainerID, err := getTrainerID(c)
	if err != nil {
		return unauthorized(c)
	}
	list, err := h.Svc.GetEligibleStudentsForReactivation(c.Request().Context(), trainerID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"students": list, "count": len(list)})
}

// Reactivate handles POST /v1/students/reactivate.  A batch refused for
// lack of capacity answers 409 with the result body.
func (h *AllocationHandler) Reactivate(c echo.Context) error {
	trainerID, err := getTrainerID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		StudentIDs []uint64 `json:"student_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(body.StudentIDs) == 0 {
		return badRequest(c, "student_ids is required")
	}
	res, err := h.Svc.ManuallyReactivateStudents(c.Request().Context(), trainerID, body.StudentIDs)
	if err != nil {
		return writeError(c, err)
	}
	if res.Code != "" {
		return c.JSON(statusFor(res.Code), res)
	}
	return c.JSON(http.StatusOK, res)
}
