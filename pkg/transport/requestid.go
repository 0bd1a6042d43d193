package transport

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/rhuss/sense/pkg/api"
)

// RequestIDHeader carries the request ID on requests and responses.
const RequestIDHeader = "X-Request-ID"

// RequestID returns a filter that assigns a unique request ID to each
// request. If the incoming context already carries a request ID (set by
// the HTTP adapter from the X-Request-ID header), that value is used.
// Otherwise a new ID is generated. The ID is echoed on the response.
func RequestID() Filter {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
			id := RequestIDFromContext(ctx)
			if id == "" {
				id = generateRequestID()
				ctx = ContextWithRequestID(ctx, id)
			}
			resp := next.Process(ctx, req)
			if resp != nil && resp.Header != nil && resp.Header.Get(RequestIDHeader) == "" {
				resp.Header.Set(RequestIDHeader, id)
			}
			return resp
		})
	}
}

// generateRequestID creates a new unique request ID.
func generateRequestID() string {
	return uuid.Must(uuid.NewV4()).String()
}
