package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// TrainerID returns the authenticated trainer, if any.
func TrainerID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxTrainerID).(uint64)
	return id, ok && id != 0
}

// Role returns the authenticated role or "".
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// subject identifies the caller in rate limit keys.
func subject(c echo.Context) string {
	if id, ok := TrainerID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
