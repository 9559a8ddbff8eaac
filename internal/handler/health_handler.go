package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RegisterHealth mounts GET /healthz, a liveness probe with no
// dependencies — it never touches the session store or the tracer, so a
// 200 here only means the HTTP server itself is accepting connections.
func RegisterHealth(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
