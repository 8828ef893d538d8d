// Package router registers HTTP routes.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/trainer-seat-allocation/internal/handler"
	"github.com/iliyamo/trainer-seat-allocation/internal/middleware"
	"github.com/iliyamo/trainer-seat-allocation/internal/utils"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPlans exposes the plan catalog.  cache wraps the listing,
// which changes rarely.
func RegisterPlans(e *echo.Echo, p *handler.PlanHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/plans", p.List, cache)
}

// RegisterAllocation registers the trainer-only allocation endpoints
// behind JWT auth, the TRAINER role check and the rate limiter.
func RegisterAllocation(e *echo.Echo, h *handler.AllocationHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(utils.RoleTrainer))
	g.Use(limiter)

	g.POST("/students/validate", h.Validate)
	g.GET("/students/reactivation-candidates", h.ReactivationCandidates)
	g.POST("/students/reactivate", h.Reactivate)
	g.POST("/students/:id/resource", h.AssignResource)
	g.POST("/students/:id/deactivate", h.Deactivate)
	g.POST("/plan-transitions", h.Transition)
}
