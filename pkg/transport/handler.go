package transport

import (
	"context"

	"github.com/rhuss/sense/pkg/api"
)

// Handler processes a classified request and returns its response.
// Handlers never return nil; failures are reported as error responses.
type Handler interface {
	Process(ctx context.Context, req *api.Request) *api.Response
}

// HandlerFunc is an adapter that allows using an ordinary function as a
// Handler.
type HandlerFunc func(ctx context.Context, req *api.Request) *api.Response

// Process calls f(ctx, req).
func (f HandlerFunc) Process(ctx context.Context, req *api.Request) *api.Response {
	return f(ctx, req)
}
