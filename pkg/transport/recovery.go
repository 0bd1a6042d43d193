package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/sense/pkg/api"
)

// Recovery returns a filter that catches panics in the wrapped handler
// and converts them to server error responses. The server continues to
// accept new requests after a panic is recovered.
func Recovery(logger *slog.Logger) Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) (resp *api.Response) {
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("panic: %v", r)
					logger.Error("recovered from panic",
						"request_id", RequestIDFromContext(ctx),
						"path", req.Path(),
						"error", err,
					)
					resp = api.ServerError(err)
				}
			}()
			return next.Process(ctx, req)
		})
	}
}
