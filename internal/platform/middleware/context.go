// Package middleware holds ambient echo middleware shared across the
// core's handlers: request-scoped context propagation and response body
// normalization, adapted from the platform's go-core middleware package.
package middleware

import "context"

type contextKey string

// RequestIDKey is the context key for the per-request correlation ID
// stamped by RequestID and threaded into zap log fields.
const RequestIDKey contextKey = "request_id"

// WithRequestID returns a new context carrying the given request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// GetRequestID extracts the request ID from the context, if present.
func GetRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(RequestIDKey).(string)
	return v, ok
}
