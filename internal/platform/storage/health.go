package storage

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports whether drafts are being mirrored durably.
func HealthHandler(h *Handle) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := map[string]interface{}{
			"backend":  h.Backend,
			"durable":  h.Durable(),
			"degraded": h.Degraded(),
		}

		if err := h.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}

		body["status"] = "healthy"
		if !h.Durable() || h.Degraded() {
			body["status"] = "degraded"
		}
		return c.JSON(http.StatusOK, body)
	}
}
