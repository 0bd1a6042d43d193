// Package processor contains the per-target-kind request processors and
// the registry the dispatcher looks them up in.
//
// A [Processor] turns one classified request into a response by calling
// the collection adapter. Returning a nil response with a nil error
// means the processor did not recognize the operation; the dispatcher
// then offers the request to the adapter's extension hook.
package processor

import (
	"context"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/collection"
	"github.com/rhuss/sense/pkg/workspace"
)

// Processor handles requests of one target kind.
type Processor interface {
	Process(ctx context.Context, req *api.Request, wm workspace.Manager, adapter collection.Adapter) (*api.Response, error)
}

// ProcessorFunc is an adapter to allow the use of ordinary functions as
// processors.
type ProcessorFunc func(ctx context.Context, req *api.Request, wm workspace.Manager, adapter collection.Adapter) (*api.Response, error)

// Process calls f(ctx, req, wm, adapter).
func (f ProcessorFunc) Process(ctx context.Context, req *api.Request, wm workspace.Manager, adapter collection.Adapter) (*api.Response, error) {
	return f(ctx, req, wm, adapter)
}

// Defaults returns the standard table with one processor per
// dispatchable target kind.
func Defaults() Table {
	return Table{
		api.TypeService:    ServiceProcessor{},
		api.TypeCategories: CategoriesProcessor{},
		api.TypeCollection: CollectionProcessor{},
		api.TypeEntry:      EntryProcessor{},
		api.TypeMedia:      MediaProcessor{},
	}
}
