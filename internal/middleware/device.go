package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DeviceKeyHeader carries the shared secret of sensor devices.
const DeviceKeyHeader = "X-Device-Key"

// DeviceKey guards the sensor report route.  An empty key disables the
// check, which is how local setups run.
func DeviceKey(key string) echo.MiddlewareFunc {
	want := []byte(key)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if len(want) == 0 {
			return next
		}
		return func(c echo.Context) error {
			got := []byte(c.Request().Header.Get(DeviceKeyHeader))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid device key"})
			}
			return next(c)
		}
	}
}
