package api

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// TargetType is the resource kind a request was classified into.
type TargetType string

const (
	TypeService    TargetType = "service"
	TypeCategories TargetType = "categories"
	TypeCollection TargetType = "collection"
	TypeEntry      TargetType = "entry"
	TypeMedia      TargetType = "media"
	TypeNotFound   TargetType = "not_found"
)

// Parameter names set by the target resolver.
const (
	ParamCollection = "collection"
	ParamEntry      = "entry"
)

// TargetTypes lists the dispatchable kinds (everything except TypeNotFound).
var TargetTypes = []TargetType{
	TypeService,
	TypeCategories,
	TypeCollection,
	TypeEntry,
	TypeMedia,
}

// Valid reports whether t is one of the known kinds, including TypeNotFound.
func (t TargetType) Valid() bool {
	return t == TypeNotFound || slices.Contains(TargetTypes, t)
}

// Target is the classification of a request. It is immutable once created.
// A nil *Target behaves like a TypeNotFound target.
type Target struct {
	kind   TargetType
	params map[string]string
}

// NewTarget creates a target of the given kind. The params map is copied.
func NewTarget(kind TargetType, params map[string]string) *Target {
	return &Target{kind: kind, params: maps.Clone(params)}
}

// NotFoundTarget returns a target for requests that match no known resource shape.
func NotFoundTarget() *Target {
	return &Target{kind: TypeNotFound}
}

// Type returns the target kind.
func (t *Target) Type() TargetType {
	if t == nil || t.kind == "" {
		return TypeNotFound
	}
	return t.kind
}

// Param returns a kind-specific parameter, or "" when unset.
func (t *Target) Param(name string) string {
	if t == nil {
		return ""
	}
	return t.params[name]
}

// Params returns a copy of all parameters.
func (t *Target) Params() map[string]string {
	if t == nil {
		return map[string]string{}
	}
	out := maps.Clone(t.params)
	if out == nil {
		out = map[string]string{}
	}
	return out
}

// String renders the target for logs, e.g. "entry(collection=notes,entry=42)".
func (t *Target) String() string {
	kind := t.Type()
	if t == nil || len(t.params) == 0 {
		return string(kind)
	}
	keys := slices.Sorted(maps.Keys(t.params))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, t.params[k]))
	}
	return fmt.Sprintf("%s(%s)", kind, strings.Join(parts, ","))
}
