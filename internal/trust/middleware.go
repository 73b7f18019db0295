package trust

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Middleware gates every request on the Origin header. Requests without an
// Origin header (server-to-server calls, channel webhooks) pass through.
func Middleware(cache *Cache) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get(echo.HeaderOrigin)
			if !cache.IsAllowed(c.Request().Context(), origin) {
				return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
			}
			if origin != "" {
				c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, origin)
				c.Response().Header().Set(echo.HeaderVary, echo.HeaderOrigin)
			}
			return next(c)
		}
	}
}
