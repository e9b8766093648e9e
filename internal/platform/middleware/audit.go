package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehq/care/internal/platform/auth"
)

func actionOf(method string) string {
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

// Audit logs an access record for every request through the group it is
// attached to: who, which route, which patient, and the outcome.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			req := c.Request()
			status := c.Response().Status
			if err != nil {
				status, _ = StatusOf(err)
			}

			evt := logger.Info().
				Str("type", "patient_access").
				Time("at", time.Now().UTC()).
				Str("action", actionOf(req.Method)).
				Str("route", c.Path()).
				Str("method", req.Method).
				Int("status", status).
				Str("remote_ip", c.RealIP())
			if rid, ok := c.Get("request_id").(string); ok {
				evt = evt.Str("request_id", rid)
			}
			if p := auth.PrincipalFromContext(req.Context()); p != nil {
				evt = evt.Int64("user_id", p.ID).Str("username", p.Username)
			}
			for _, name := range []string{"patient_external_id", "external_id"} {
				if v := c.Param(name); v != "" {
					evt = evt.Str(name, v)
				}
			}
			evt.Msg("audit")

			return err
		}
	}
}
