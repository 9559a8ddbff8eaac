package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader is the header a caller may supply to correlate a request
// across client retries; one is generated when absent.
const RequestIDHeader = "X-Request-Id"

// RequestID stamps every request with a correlation ID, propagating it
// into the Go context (so handlers and the zap logger can attach it to
// every log line) and echoing it back on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Request().Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}

			ctx := WithRequestID(c.Request().Context(), id)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set(RequestIDHeader, id)
			return next(c)
		}
	}
}
