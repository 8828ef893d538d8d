package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/trainer-seat-allocation/internal/logging"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

// RequestLogger tags the request context with a request ID, taken from
// the incoming header when present, and logs one line per request.
func RequestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx, id := logging.WithRequestID(req.Context(), req.Header.Get(HeaderRequestID))
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(HeaderRequestID, id)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			ev := logging.FromContext(ctx).Info()
			if status := c.Response().Status; status >= 500 {
				ev = logging.FromContext(ctx).Error()
			}
			ev.Str("method", req.Method).
				Str("path", c.Path()).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Msg("request")
			return nil
		}
	}
}
