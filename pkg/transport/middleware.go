package transport

import "context"

// Filter wraps a Handler to add cross-cutting behavior. A filter may
// short-circuit by returning a response without calling next.
type Filter func(next Handler) Handler

// Chain composes multiple filters into a single filter.
// Filters are applied in order: Chain(a, b, c) produces a(b(c(handler))),
// so the first filter executes first on the way in and last on the way out.
func Chain(filters ...Filter) Filter {
	return func(next Handler) Handler {
		for i := len(filters) - 1; i >= 0; i-- {
			if filters[i] != nil {
				next = filters[i](next)
			}
		}
		return next
	}
}

// requestIDKeyType is the context key type for request IDs.
type requestIDKeyType struct{}

// requestIDKey is the context key for storing and retrieving request IDs.
var requestIDKey = requestIDKeyType{}

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
