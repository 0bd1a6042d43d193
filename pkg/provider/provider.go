// Package provider implements the sense request dispatcher.
//
// A [Provider] is the single entry point for classified AtomPub requests.
// It looks up the processor registered for the request's target kind,
// resolves the collection adapter, brackets the processor call with the
// adapter's optional transactional lifecycle, falls back to the adapter's
// extension hook for unrecognized operations, and converts errors into
// well-formed responses.
//
// Processors and filters can be replaced or extended at runtime; readers
// never block on writers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/auth"
	"github.com/rhuss/sense/pkg/collection"
	"github.com/rhuss/sense/pkg/debug"
	"github.com/rhuss/sense/pkg/observability"
	"github.com/rhuss/sense/pkg/processor"
	"github.com/rhuss/sense/pkg/transaction"
	"github.com/rhuss/sense/pkg/transport"
	"github.com/rhuss/sense/pkg/workspace"
)

// SubjectResolver determines the authenticated subject of a request.
type SubjectResolver func(ctx context.Context, req *api.Request) *auth.Identity

// ErrorResponder builds the response for a failed request. status is the
// already-classified HTTP status (4xx from the error, 500 otherwise).
type ErrorResponder func(ctx context.Context, req *api.Request, status int, err error) *api.Response

// Provider dispatches requests to processors. It is safe for concurrent use.
type Provider struct {
	wm         workspace.Manager
	registry   *processor.Registry
	filters    atomic.Pointer[[]transport.Filter]
	filtersMu  sync.Mutex
	properties map[string]string
	subjects   SubjectResolver
	onError    ErrorResponder
	logger     *slog.Logger
}

var _ transport.Handler = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the logger for dispatch errors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProcessors merges t over the default processor table.
func WithProcessors(t processor.Table) Option {
	return func(p *Provider) {
		p.registry.Merge(t)
	}
}

// WithFilters appends filters to the filter list.
func WithFilters(filters ...transport.Filter) Option {
	return func(p *Provider) {
		p.AddFilters(filters...)
	}
}

// WithProperties sets the initialization properties. The map is copied.
func WithProperties(props map[string]string) Option {
	return func(p *Provider) {
		p.properties = maps.Clone(props)
	}
}

// WithSubjectResolver overrides how the request subject is resolved.
func WithSubjectResolver(r SubjectResolver) Option {
	return func(p *Provider) {
		if r != nil {
			p.subjects = r
		}
	}
}

// WithErrorResponder overrides construction of error responses.
func WithErrorResponder(r ErrorResponder) Option {
	return func(p *Provider) {
		if r != nil {
			p.onError = r
		}
	}
}

// New creates a Provider serving the layout of wm with the default processors.
func New(wm workspace.Manager, opts ...Option) *Provider {
	p := &Provider{
		wm:         wm,
		registry:   processor.NewRegistry(processor.Defaults()),
		properties: map[string]string{},
		subjects:   contextSubject,
		onError:    defaultErrorResponse,
		logger:     slog.Default(),
	}
	p.filters.Store(&[]transport.Filter{})
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process dispatches a request whose target has already been resolved.
// It never returns nil.
func (p *Provider) Process(ctx context.Context, req *api.Request) *api.Response {
	kind := req.Target().Type()
	if kind == api.TypeNotFound {
		observability.DispatchTotal.WithLabelValues(string(kind), "not_found").Inc()
		return api.NotFound()
	}

	proc, ok := p.registry.Get(kind)
	if !ok {
		observability.DispatchTotal.WithLabelValues(string(kind), "not_found").Inc()
		return api.NotFound()
	}

	debug.Log("dispatch", "processing request", "kind", kind, "method", req.Method, "target", req.Target().String())
	resp, unhandled, err := p.dispatch(ctx, req, proc)
	if err != nil {
		return p.errorResponse(ctx, req, err)
	}

	result := "ok"
	if unhandled {
		result = "unhandled"
	}
	observability.DispatchTotal.WithLabelValues(string(kind), result).Inc()
	return resp
}

// dispatch runs the processor inside the adapter's transaction guard.
// unhandled reports that neither the processor nor the extension hook
// produced a response.
func (p *Provider) dispatch(ctx context.Context, req *api.Request, proc processor.Processor) (resp *api.Response, unhandled bool, err error) {
	adapter, err := p.wm.CollectionAdapter(req)
	if err != nil {
		return nil, false, fmt.Errorf("resolving collection adapter: %w", err)
	}

	var guard *transaction.Guard
	if tx, ok := adapter.(transaction.Transactional); ok {
		guard = transaction.NewGuard(tx, transaction.WithLogger(p.logger))
	} else {
		guard = transaction.NewGuard(nil)
	}

	resp, err = guard.Run(ctx, req, func(ctx context.Context) (*api.Response, error) {
		resp, err := proc.Process(ctx, req, p.wm, adapter)
		if err != nil || resp != nil {
			return resp, err
		}
		if resp, err = extension(ctx, req, adapter); err != nil || resp != nil {
			return resp, err
		}
		unhandled = true
		return api.BadRequest(), nil
	})
	return resp, unhandled, err
}

func extension(ctx context.Context, req *api.Request, adapter collection.Adapter) (*api.Response, error) {
	if adapter == nil {
		return nil, nil
	}
	return adapter.ExtensionRequest(ctx, req)
}

// errorResponse classifies err, logs it once and builds the response.
func (p *Provider) errorResponse(ctx context.Context, req *api.Request, err error) *api.Response {
	kind := string(req.Target().Type())
	attrs := []any{
		"request_id", transport.RequestIDFromContext(ctx),
		"method", req.Method,
		"target", req.Target().String(),
		"error", err,
	}

	status, ok := api.StatusOf(err)
	if ok && api.IsClientError(status) {
		p.logger.Info("request rejected", append(attrs, "status", status)...)
		observability.DispatchTotal.WithLabelValues(kind, "client_error").Inc()
	} else {
		status = http.StatusInternalServerError
		p.logger.Error("request failed", attrs...)
		observability.DispatchTotal.WithLabelValues(kind, "server_error").Inc()
	}

	if resp := p.onError(ctx, req, status, err); resp != nil {
		return resp
	}
	return defaultErrorResponse(ctx, req, status, err)
}

func defaultErrorResponse(_ context.Context, _ *api.Request, status int, err error) *api.Response {
	if !api.IsClientError(status) {
		return api.ServerError(err)
	}
	var message string
	var se *api.StatusError
	if errors.As(err, &se) {
		message = se.Message
	}
	return api.NewErrorResponse(status, message)
}

// ResolveTarget classifies req through the workspace manager.
func (p *Provider) ResolveTarget(req *api.Request) *api.Target {
	return p.wm.ResolveTarget(req)
}

// URLFor renders the URL of a target kind relative to req.
func (p *Provider) URLFor(req *api.Request, kind api.TargetType, params map[string]string) string {
	return p.wm.URLFor(req, kind, params)
}

// ResolveSubject returns the authenticated subject of req, or nil.
func (p *Provider) ResolveSubject(ctx context.Context, req *api.Request) *auth.Identity {
	return p.subjects(ctx, req)
}

// WorkspaceManager returns the workspace manager the provider serves.
func (p *Provider) WorkspaceManager() workspace.Manager {
	return p.wm
}

// SetProcessors replaces the processor table.
func (p *Provider) SetProcessors(t processor.Table) {
	p.registry.Replace(t)
}

// AddProcessors merges t into the processor table.
func (p *Provider) AddProcessors(t processor.Table) {
	p.registry.Merge(t)
}

// Processors returns a copy of the processor table.
func (p *Provider) Processors() processor.Table {
	return p.registry.Snapshot()
}

// SetFilters replaces the filter list.
func (p *Provider) SetFilters(filters ...transport.Filter) {
	p.filtersMu.Lock()
	defer p.filtersMu.Unlock()
	next := compactFilters(nil, filters)
	p.filters.Store(&next)
}

// AddFilters appends filters to the filter list.
func (p *Provider) AddFilters(filters ...transport.Filter) {
	p.filtersMu.Lock()
	defer p.filtersMu.Unlock()
	next := compactFilters(*p.filters.Load(), filters)
	p.filters.Store(&next)
}

// Filters returns the filters that apply to req, in order. The returned
// slice is a copy.
func (p *Provider) Filters(_ *api.Request) []transport.Filter {
	return slices.Clone(*p.filters.Load())
}

// Handler returns the provider wrapped in the filters that apply to req.
func (p *Provider) Handler(req *api.Request) transport.Handler {
	return transport.Chain(p.Filters(req)...)(p)
}

// Property returns an initialization property.
func (p *Provider) Property(name string) (string, bool) {
	v, ok := p.properties[name]
	return v, ok
}

// PropertyNames returns the names of all initialization properties, sorted.
func (p *Provider) PropertyNames() []string {
	return slices.Sorted(maps.Keys(p.properties))
}

func compactFilters(base, add []transport.Filter) []transport.Filter {
	out := make([]transport.Filter, 0, len(base)+len(add))
	out = append(out, base...)
	for _, f := range add {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

func contextSubject(ctx context.Context, _ *api.Request) *auth.Identity {
	return auth.IdentityFromContext(ctx)
}
