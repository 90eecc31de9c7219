package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"
)

// CronGuard restricts settlement endpoints to callers presenting the shared
// scheduler secret.
func CronGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret := os.Getenv("CRON_SECRET")
		if secret == "" {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "cron endpoints disabled"})
		}

		token, ok := strings.CutPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "cron access only"})
		}
		return next(c)
	}
}
