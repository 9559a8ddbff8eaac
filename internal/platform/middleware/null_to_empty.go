package middleware

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
)

// NullToEmptyArray rewrites JSON `null` response bodies to `[]`, since a
// nil slice marshals to `null` and clients expect `[]` for an empty list.
//
// Only applies to successful (2xx) JSON responses with a body of exactly
// `null`. A `null` field inside a JSON object (such as the execution
// endpoint's `events`) is left unchanged.
func NullToEmptyArray() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rec := &bodyInterceptor{
				ResponseWriter: c.Response().Writer,
				buf:            &bytes.Buffer{},
			}
			c.Response().Writer = rec

			if err := next(c); err != nil {
				return err
			}

			body := rec.buf.Bytes()

			ct := c.Response().Header().Get(echo.HeaderContentType)
			isJSON := len(ct) >= 16 && ct[:16] == "application/json"
			statusOK := c.Response().Status >= 200 && c.Response().Status < 300

			if isJSON && statusOK && bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
				body = []byte("[]")
				c.Response().Header().Set("Content-Length", "2")
			}

			rec.ResponseWriter.WriteHeader(c.Response().Status)
			_, writeErr := rec.ResponseWriter.Write(body)
			return writeErr
		}
	}
}

// bodyInterceptor captures the response body without writing to the client.
type bodyInterceptor struct {
	http.ResponseWriter
	buf *bytes.Buffer
}

func (b *bodyInterceptor) Write(data []byte) (int, error) {
	return b.buf.Write(data)
}

func (b *bodyInterceptor) WriteHeader(_ int) {
	// Suppress — the outer handler writes the header after inspection.
}
