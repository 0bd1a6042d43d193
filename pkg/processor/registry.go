package processor

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/rhuss/sense/pkg/api"
)

// Table maps target kinds to processors.
type Table map[api.TargetType]Processor

// Registry holds the processor table. Reads are lock-free against an
// immutable snapshot; writers copy the table, modify the copy and swap it
// in, serialized by a mutex. Nil processors are never stored.
type Registry struct {
	table atomic.Pointer[Table]
	mu    sync.Mutex
}

// NewRegistry creates a registry holding the non-nil entries of initial.
func NewRegistry(initial Table) *Registry {
	r := &Registry{}
	t := compact(nil, initial)
	r.table.Store(&t)
	return r
}

// Get returns the processor registered for kind.
func (r *Registry) Get(kind api.TargetType) (Processor, bool) {
	t := r.table.Load()
	if t == nil {
		return nil, false
	}
	p, ok := (*t)[kind]
	return p, ok
}

// Replace discards the current table and installs the non-nil entries of t.
func (r *Registry) Replace(t Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := compact(nil, t)
	r.table.Store(&next)
}

// Merge adds or overwrites the non-nil entries of t. Merging an empty or
// nil table leaves the registry unchanged.
func (r *Registry) Merge(t Table) {
	if len(t) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var current Table
	if cur := r.table.Load(); cur != nil {
		current = *cur
	}
	next := compact(current, t)
	r.table.Store(&next)
}

// Snapshot returns a copy of the current table.
func (r *Registry) Snapshot() Table {
	t := r.table.Load()
	if t == nil {
		return Table{}
	}
	return maps.Clone(*t)
}

// compact copies base and then the non-nil entries of add into a new table.
func compact(base, add Table) Table {
	out := make(Table, len(base)+len(add))
	maps.Copy(out, base)
	for kind, p := range add {
		if !isNil(p) {
			out[kind] = p
		}
	}
	return out
}

func isNil(p Processor) bool {
	if p == nil {
		return true
	}
	f, ok := p.(ProcessorFunc)
	return ok && f == nil
}
