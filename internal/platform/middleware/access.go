package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// DraftAccess records every touch of a patient's consult draft: which
// patient and encounter, the action, and the outcome. Requests without a
// patientId route parameter are not recorded.
func DraftAccess(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			patientID := c.Param("patientId")
			if patientID == "" {
				return err
			}

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			logger.Info().
				Str("type", "draft_access").
				Str("request_id", requestID(c)).
				Str("patient_id", patientID).
				Str("encounter_id", c.Param("encounterId")).
				Str("action", methodAction(c.Request().Method)).
				Str("route", c.Path()).
				Str("remote_ip", c.RealIP()).
				Int("status", status).
				Time("at", time.Now().UTC()).
				Msg("draft access")

			return err
		}
	}
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}
