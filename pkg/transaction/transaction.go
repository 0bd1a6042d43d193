// Package transaction brackets request processing with the optional
// per-request lifecycle of a collection adapter.
//
// An adapter opts in by implementing [Transactional]. The dispatcher
// resolves the capability once per request and hands it to a [Guard],
// which guarantees the lifecycle contract:
//
//   - Start runs before the processor. If Start fails the processor never
//     runs and neither Compensate nor End is called.
//   - When the processor fails, Compensate runs with the failure, followed
//     by End with a nil response, whatever Compensate returned.
//   - When the processor succeeds, End runs with its response. If End
//     fails the response is discarded and the End failure is returned.
//
// End therefore runs exactly once for every successful Start.
package transaction

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/sense/pkg/api"
	"github.com/rhuss/sense/pkg/observability"
)

// Transactional is implemented by adapters that want a per-request
// transactional boundary.
type Transactional interface {
	// Start opens the boundary before the processor runs.
	Start(ctx context.Context, req *api.Request) error

	// End closes the boundary. resp is nil when the request failed.
	End(ctx context.Context, req *api.Request, resp *api.Response) error

	// Compensate undoes the work of a failed request. It is always
	// followed by End.
	Compensate(ctx context.Context, req *api.Request, cause error) error
}

// State is the lifecycle state of a Guard.
type State int

const (
	StateIdle State = iota
	StateActive
	StateCompensating
	StateCompleted
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:         "idle",
	StateActive:       "active",
	StateCompensating: "compensating",
	StateCompleted:    "completed",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Func is the unit of work bracketed by a Guard.
type Func func(ctx context.Context) (*api.Response, error)

// Guard runs one request's work inside the lifecycle of a Transactional
// adapter. A Guard is used for a single request and is not safe for
// concurrent use.
type Guard struct {
	tx     Transactional
	logger *slog.Logger
	state  State
}

// Option configures a Guard.
type Option func(*Guard)

// WithLogger sets the logger used for absorbed hook failures.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard creates a guard. A nil tx yields a pass-through guard that
// runs the work without any lifecycle calls.
func NewGuard(tx Transactional, opts ...Option) *Guard {
	g := &Guard{
		tx:     tx,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Transactional reports whether the guard brackets a transactional adapter.
func (g *Guard) Transactional() bool {
	return g.tx != nil
}

// State returns the current lifecycle state.
func (g *Guard) State() State {
	return g.state
}

// Run executes fn inside the lifecycle. The returned error is the Start
// failure, the failure of fn, or the End failure after a successful fn.
// Compensate and End failures on the failure path are logged and absorbed
// so the original failure is reported. A panic in fn is recovered and
// treated as a failure.
func (g *Guard) Run(ctx context.Context, req *api.Request, fn Func) (*api.Response, error) {
	if g.tx == nil {
		return call(ctx, fn)
	}
	if g.state != StateIdle {
		return nil, fmt.Errorf("transaction guard already used (state %s)", g.state)
	}

	if err := g.tx.Start(ctx, req); err != nil {
		g.state = StateFailed
		observability.TransactionsTotal.WithLabelValues(observability.OutcomeStartFailed).Inc()
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	g.state = StateActive

	resp, err := call(ctx, fn)
	if err != nil {
		g.state = StateCompensating
		if cerr := g.tx.Compensate(ctx, req, err); cerr != nil {
			observability.TransactionHookFailuresTotal.WithLabelValues("compensate").Inc()
			g.logger.Warn("transaction compensation failed",
				"target", req.Target().String(),
				"error", cerr,
				"cause", err,
			)
		}
		if eerr := g.tx.End(ctx, req, nil); eerr != nil {
			observability.TransactionHookFailuresTotal.WithLabelValues("end").Inc()
			g.logger.Warn("transaction end failed",
				"target", req.Target().String(),
				"error", eerr,
				"cause", err,
			)
		}
		g.state = StateFailed
		observability.TransactionsTotal.WithLabelValues(observability.OutcomeCompensated).Inc()
		return nil, err
	}

	if err := g.tx.End(ctx, req, resp); err != nil {
		g.state = StateFailed
		observability.TransactionsTotal.WithLabelValues(observability.OutcomeEndFailed).Inc()
		return nil, fmt.Errorf("ending transaction: %w", err)
	}
	g.state = StateCompleted
	observability.TransactionsTotal.WithLabelValues(observability.OutcomeCommitted).Inc()
	return resp, nil
}

// call runs fn, converting a panic into an error.
func call(ctx context.Context, fn Func) (resp *api.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = fmt.Errorf("panic during request processing: %v", r)
		}
	}()
	return fn(ctx)
}
