// Package workspace resolves requests to targets and collection adapters.
//
// A [Manager] is the dispatcher's view of the server layout: it classifies
// request paths, renders URLs for targets, looks up the adapter serving a
// request, and describes the workspaces for the service document.
// [Static] is the configuration-driven implementation.
package workspace

import (
	"fmt"
	"slices"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/collection"
)

// Manager provides target resolution and adapter lookup.
type Manager interface {
	// ResolveTarget classifies the request. It never returns an error;
	// unmatched requests get a not_found target.
	ResolveTarget(req *api.Request) *api.Target

	// URLFor renders the URL of a target kind. The result is absolute
	// when the request carries scheme and host, otherwise path-only.
	// Returns "" when the kind has no URL or a parameter is missing.
	URLFor(req *api.Request, kind api.TargetType, params map[string]string) string

	// CollectionAdapter returns the adapter serving the request's
	// collection. Requests without a collection parameter (the service
	// document) get a nil adapter and no error.
	CollectionAdapter(req *api.Request) (collection.Adapter, error)

	// Workspaces describes the served workspaces for the service document.
	Workspaces(req *api.Request) []api.Workspace
}

// Collection is a collection entry in a static workspace.
type Collection struct {
	Title   string
	Accept  []string
	Adapter collection.Adapter
}

// Workspace groups collections under a title.
type Workspace struct {
	Title       string
	Collections []Collection
}

// Static is a Manager over a fixed set of workspaces. It is immutable
// after construction and safe for concurrent use.
type Static struct {
	resolver   *Resolver
	workspaces []Workspace
	adapters   map[string]collection.Adapter
}

var _ Manager = (*Static)(nil)

// NewStatic creates a manager serving the given workspaces under basePath.
// Collection names (Adapter.Name) must be unique across all workspaces.
func NewStatic(basePath string, workspaces ...Workspace) (*Static, error) {
	s := &Static{
		workspaces: slices.Clone(workspaces),
		adapters:   make(map[string]collection.Adapter),
	}
	for _, ws := range workspaces {
		for _, c := range ws.Collections {
			if c.Adapter == nil {
				return nil, fmt.Errorf("workspace %q: collection %q has no adapter", ws.Title, c.Title)
			}
			name := c.Adapter.Name()
			if name == "" {
				return nil, fmt.Errorf("workspace %q: collection %q has an empty name", ws.Title, c.Title)
			}
			if _, dup := s.adapters[name]; dup {
				return nil, fmt.Errorf("duplicate collection %q", name)
			}
			s.adapters[name] = c.Adapter
		}
	}
	s.resolver = NewResolver(basePath, func(name string) bool {
		_, ok := s.adapters[name]
		return ok
	})
	return s, nil
}

// ResolveTarget classifies the request path.
func (s *Static) ResolveTarget(req *api.Request) *api.Target {
	if req == nil {
		return api.NotFoundTarget()
	}
	return s.resolver.Resolve(req.Path())
}

// URLFor renders the URL of a target kind.
func (s *Static) URLFor(req *api.Request, kind api.TargetType, params map[string]string) string {
	path, err := s.resolver.Path(kind, params)
	if err != nil {
		return ""
	}
	if req == nil {
		return path
	}
	base := req.BaseURL()
	if base.Host == "" {
		return path
	}
	return base.String() + path
}

// CollectionAdapter returns the adapter named by the request target.
func (s *Static) CollectionAdapter(req *api.Request) (collection.Adapter, error) {
	name := req.Target().Param(api.ParamCollection)
	if name == "" {
		return nil, nil
	}
	adapter, ok := s.adapters[name]
	if !ok {
		return nil, api.NewNotFoundError(fmt.Sprintf("collection %q not found", name))
	}
	return adapter, nil
}

// Adapter returns the adapter for a collection name.
func (s *Static) Adapter(name string) (collection.Adapter, bool) {
	a, ok := s.adapters[name]
	return a, ok
}

// Workspaces describes the configured workspaces with hrefs relative to
// the request.
func (s *Static) Workspaces(req *api.Request) []api.Workspace {
	out := make([]api.Workspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		w := api.Workspace{Title: ws.Title}
		for _, c := range ws.Collections {
			name := c.Adapter.Name()
			title := c.Title
			if title == "" {
				title = name
			}
			w.Collections = append(w.Collections, api.CollectionInfo{
				Href:   s.URLFor(req, api.TypeCollection, map[string]string{api.ParamCollection: name}),
				Title:  title,
				Accept: slices.Clone(c.Accept),
			})
		}
		out = append(out, w)
	}
	return out
}
