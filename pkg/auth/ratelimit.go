package auth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// RequestClass separates requests that only read collections from those
// that modify them. Each class has its own budget.
type RequestClass string

const (
	ClassRead  RequestClass = "read"
	ClassWrite RequestClass = "write"
)

// ClassOf classifies an HTTP method. GET, HEAD and OPTIONS read; every
// other method (POST, PUT, DELETE and extension methods) writes.
func ClassOf(method string) RequestClass {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}

// RateLimiter decides whether a subject may issue another request of the
// given class.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity, class RequestClass) error
}

// Budget is the number of requests per minute allowed for each class.
// A zero field inherits the limiter's default for that class.
type Budget struct {
	Reads  int
	Writes int
}

func (b Budget) forClass(class RequestClass) int {
	if class == ClassRead {
		return b.Reads
	}
	return b.Writes
}

// LimitError reports a rejected request. It matches ErrTooManyRequests
// with errors.Is.
type LimitError struct {
	Class      RequestClass
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %d %s requests per minute", ErrTooManyRequests, e.Limit, e.Class)
}

func (e *LimitError) Is(target error) bool {
	return target == ErrTooManyRequests
}

// window counts requests of one subject and class in a fixed minute.
type window struct {
	opened time.Time
	count  int
}

type windowKey struct {
	subject string
	class   RequestClass
}

// sweepEvery bounds how many windows open between sweeps of expired ones.
const sweepEvery = 1024

// InProcessLimiter counts requests in fixed one-minute windows held in
// memory. Reads and writes of a subject are counted separately, so a
// burst of feed polling never starves the subject's writes.
type InProcessLimiter struct {
	defaults Budget
	tiers    map[string]Budget
	now      func() time.Time

	mu      sync.Mutex
	windows map[windowKey]*window
	opened  int
}

// NewInProcessLimiter creates a limiter. tiers overrides defaults for
// identities whose ServiceTier matches; a non-positive budget disables
// limiting for that class.
func NewInProcessLimiter(defaults Budget, tiers map[string]Budget) *InProcessLimiter {
	return &InProcessLimiter{
		defaults: defaults,
		tiers:    tiers,
		now:      time.Now,
		windows:  make(map[windowKey]*window),
	}
}

// Limit returns the per-minute budget that applies to tier and class.
func (l *InProcessLimiter) Limit(tier string, class RequestClass) int {
	limit := l.defaults.forClass(class)
	if b, ok := l.tiers[tier]; ok {
		if n := b.forClass(class); n != 0 {
			limit = n
		}
	}
	return limit
}

// Allow counts the request against the subject's window for class.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity, class RequestClass) error {
	limit := l.Limit(identity.ServiceTier, class)
	if limit <= 0 {
		return nil
	}

	key := windowKey{subject: identity.Subject, class: class}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.opened) >= time.Minute {
		l.open(key, now)
		return nil
	}
	if w.count >= limit {
		return &LimitError{Class: class, Limit: limit, RetryAfter: w.opened.Add(time.Minute).Sub(now)}
	}
	w.count++
	return nil
}

// open starts a new window for key. Must be called with l.mu held.
func (l *InProcessLimiter) open(key windowKey, now time.Time) {
	l.windows[key] = &window{opened: now, count: 1}
	l.opened++
	if l.opened < sweepEvery {
		return
	}
	l.opened = 0
	for k, w := range l.windows {
		if now.Sub(w.opened) >= time.Minute {
			delete(l.windows, k)
		}
	}
}
