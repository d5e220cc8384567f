package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/ledgerchat/internal/healthcheck"
)

type HealthHandler struct {
	checkers []healthcheck.Checker
}

func NewHealthHandler(checkers ...healthcheck.Checker) *HealthHandler {
	return &HealthHandler{checkers: checkers}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Health)
}

// Health reports readiness. Warnings still answer 200.
func (h *HealthHandler) Health(c echo.Context) error {
	results := healthcheck.Run(c.Request().Context(), h.checkers...)
	status := healthcheck.Overall(results)
	code := http.StatusOK
	if status == healthcheck.StatusError {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, map[string]any{
		"status": status,
		"checks": results,
	})
}
