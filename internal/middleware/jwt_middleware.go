// internal/middleware/jwt_middleware.go
package middleware

import (
	"net/http"
	"strings"

	"mangwale-chat/internal/service"

	"github.com/labstack/echo/v4"
)

// OptionalJWT extracts user claims when a bearer token is present. Requests
// without an Authorization header continue as guests; a bad token is rejected.
func OptionalJWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return next(c)
			}

			// Check Bearer prefix
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Invalid authorization header format",
					"error": map[string]string{
						"code": "INVALID_AUTH_HEADER",
					},
				})
			}

			claims, err := service.ValidateAccessToken(parts[1])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"message": "Invalid or expired token",
					"error": map[string]string{
						"code": "INVALID_TOKEN",
					},
				})
			}

			c.Set("user_claims", claims)
			c.Set("user_id", claims.UserID)
			c.Set("username", claims.Username)

			return next(c)
		}
	}
}
