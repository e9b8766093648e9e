package auth

import (
	"github.com/labstack/echo/v4"
)

// RequireSuperuser rejects requests whose principal is not a superuser.
func RequireSuperuser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if p == nil || !p.IsSuperuser {
				return ErrPermissionDenied
			}
			return next(c)
		}
	}
}
