// Package context carries the correlation id that ties an emission request
// to every log line it produces, from the HTTP layer down to the SEFAZ call.
package context

import "context"

type contextKey string

// CorrelationIDKey is the context key for correlation IDs.
const CorrelationIDKey contextKey = "correlation_id"

// WithCorrelationID plants a correlation ID in the context. The request
// logger sets it from the inbound request id; anything touching the same
// document downstream logs under the same id.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// GetCorrelationID returns the correlation ID, or "" when the context never
// passed through the request logger.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}
