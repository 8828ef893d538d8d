// Package handler exposes the allocation service over HTTP.  Handlers
// bind and validate input, call the service and map structured error
// codes to status codes.  They hold no business rules.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trainer-seat-allocation/internal/allocation"
	"github.com/iliyamo/trainer-seat-allocation/internal/logging"
	"github.com/iliyamo/trainer-seat-allocation/internal/middleware"
)

var errUnauthorized = errors.New("unauthorized")

// getTrainerID returns the authenticated trainer.
func getTrainerID(c echo.Context) (uint64, error) {
	id, ok := middleware.TrainerID(c)
	if !ok {
		return 0, errUnauthorized
	}
	return id, nil
}

func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func statusFor(code allocation.Code) int {
	switch code {
	case allocation.CodeInsufficientResources, allocation.CodeNoSuitableToken,
		allocation.CodeNoResourcesAvailable, allocation.CodeStudentAlreadyActive,
		allocation.CodeStudentNotActive, allocation.CodeTransitionInProgress:
		return http.StatusConflict
	case allocation.CodePlanNotFound, allocation.CodeStudentNotFound:
		return http.StatusNotFound
	case allocation.CodeStudentNotOwned:
		return http.StatusForbidden
	case allocation.CodeInvalidRequest:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"error": ..., "code": ...}.  Internal
// failures are logged and answered with a generic message.
func writeError(c echo.Context, err error) error {
	code := allocation.CodeOf(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.JSON(status, echo.Map{"error": "internal error", "code": allocation.CodeInternal})
	}
	msg := err.Error()
	var ae *allocation.Error
	if errors.As(err, &ae) && ae.Err != nil {
		msg = ae.Err.Error()
	}
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": allocation.CodeInvalidRequest})
}
