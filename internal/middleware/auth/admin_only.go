package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireAdmin layers a role check over RequireAuth. The role claim in
// the access token is the single source of admin authorization.
func (m *Middleware) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return m.RequireAuth(func(c echo.Context) error {
		if Role(c) != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	})
}
