package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/sense/pkg/api"
)

// Logging returns a filter that emits one structured access log entry
// per request: method, path, target, status, duration and request ID.
// Server errors are logged at ERROR, everything else at INFO.
func Logging(logger *slog.Logger) Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, req *api.Request) *api.Response {
			start := time.Now()

			resp := next.Process(ctx, req)

			status := 0
			if resp != nil {
				status = resp.Status
			}
			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("method", req.Method),
				slog.String("path", req.Path()),
				slog.String("target", req.Target().String()),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			}

			if status >= 500 {
				if detail := resp.ErrorDetail(); detail != nil && detail.Detail != "" {
					attrs = append(attrs, slog.String("error", detail.Detail))
				}
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			}

			return resp
		})
	}
}
