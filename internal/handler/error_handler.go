package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/codetrace/internal/apierr"
)

// NewHTTPErrorHandler builds an echo.HTTPErrorHandler that maps
// *apierr.Error to its StatusCode/Message envelope (spec.md §4.8) and
// falls back to echo's default handling for anything else (e.g. echo's own
// binding/routing errors).
func NewHTTPErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *apierr.Error
		if ok := asAPIError(err, &apiErr); ok {
			if werr := c.JSON(apiErr.StatusCode, map[string]string{"error": apiErr.Message}); werr != nil {
				logger.Error("failed to write error response", zap.Error(werr))
			}
			return
		}

		if he, ok := err.(*echo.HTTPError); ok {
			if werr := c.JSON(he.Code, map[string]any{"error": he.Message}); werr != nil {
				logger.Error("failed to write error response", zap.Error(werr))
			}
			return
		}

		logger.Error("unhandled request error", zap.Error(err))
		_ = c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func asAPIError(err error, target **apierr.Error) bool {
	if e, ok := err.(*apierr.Error); ok {
		*target = e
		return true
	}
	return false
}
