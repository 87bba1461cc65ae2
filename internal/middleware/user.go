package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// UserIDHeader carries the caller identity set by the upstream auth layer.
	UserIDHeader = "X-User-ID"

	userIDKey = "userID"
)

// UserID rejects requests without a caller identity and stores it in the context.
func UserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := strings.TrimSpace(c.Request().Header.Get(UserIDHeader))
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+UserIDHeader+" header")
			}
			c.Set(userIDKey, userID)
			return next(c)
		}
	}
}

// UserIDFrom returns the identity stored by UserID, or "" outside the middleware.
func UserIDFrom(c echo.Context) string {
	userID, _ := c.Get(userIDKey).(string)
	return userID
}
