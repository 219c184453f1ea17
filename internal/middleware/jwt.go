package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/utils"
)

// JWTAuth validates a Bearer access token and stores its subject under
// "user_id" (uint64) and its role under "role" (string).
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			uid, role, err := utils.ParseAccessToken(secret, strings.TrimSpace(raw))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set("user_id", uid)
			c.Set("role", role)
			return next(c)
		}
	}
}
