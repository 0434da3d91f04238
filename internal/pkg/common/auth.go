package common

import (
	"crypto/hmac"

	"github.com/labstack/echo/v4"
)

const OperatorKeyHeader = "X-Operator-Key"

// OperatorAuth guards operator-only routes. The key is compared in
// constant time so the header can't be probed byte by byte.
func OperatorAuth(operatorKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			provided := c.Request().Header.Get(OperatorKeyHeader)

			if len(operatorKey) == 0 ||
				!hmac.Equal([]byte(provided), []byte(operatorKey)) {
				return HTTPError(ErrUnauthorized)
			}

			return next(c)
		}
	}
}
