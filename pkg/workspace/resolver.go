package workspace

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rhuss/sense/pkg/api"
)

// route maps one path shape onto a target kind.
type route struct {
	kind    api.TargetType
	pattern *regexp.Regexp
	// template renders the path back, with {collection} and {entry} placeholders.
	template string
}

const segment = `([^/;]+)`

var routes = []route{
	{api.TypeService, regexp.MustCompile(`^/?$`), "/"},
	{api.TypeCategories, regexp.MustCompile(`^/` + segment + `;categories$`), "/{collection};categories"},
	{api.TypeCollection, regexp.MustCompile(`^/` + segment + `/?$`), "/{collection}"},
	{api.TypeMedia, regexp.MustCompile(`^/` + segment + `/` + segment + `;media$`), "/{collection}/{entry};media"},
	{api.TypeEntry, regexp.MustCompile(`^/` + segment + `/` + segment + `$`), "/{collection}/{entry}"},
}

// Resolver classifies request paths relative to a base path. It is
// immutable and safe for concurrent use.
type Resolver struct {
	basePath string
	known    func(collection string) bool
}

// NewResolver creates a resolver for paths under basePath. known reports
// whether a collection name is served; a nil known accepts every name.
func NewResolver(basePath string, known func(string) bool) *Resolver {
	return &Resolver{basePath: normalizeBase(basePath), known: known}
}

// BasePath returns the normalized base path ("" for the root).
func (r *Resolver) BasePath() string {
	return r.basePath
}

// Resolve classifies a request path. It never fails: paths that match no
// shape, lie outside the base path, or name an unknown collection resolve
// to a not_found target.
func (r *Resolver) Resolve(path string) *api.Target {
	rel, ok := r.relative(path)
	if !ok {
		return api.NotFoundTarget()
	}
	for _, rt := range routes {
		m := rt.pattern.FindStringSubmatch(rel)
		if m == nil {
			continue
		}
		params := map[string]string{}
		if len(m) > 1 {
			params[api.ParamCollection] = m[1]
			if r.known != nil && !r.known(m[1]) {
				return api.NotFoundTarget()
			}
		}
		if len(m) > 2 {
			params[api.ParamEntry] = m[2]
		}
		return api.NewTarget(rt.kind, params)
	}
	return api.NotFoundTarget()
}

// Path renders the path of a target kind with the given parameters.
func (r *Resolver) Path(kind api.TargetType, params map[string]string) (string, error) {
	for _, rt := range routes {
		if rt.kind != kind {
			continue
		}
		path := rt.template
		for _, name := range []string{api.ParamCollection, api.ParamEntry} {
			placeholder := "{" + name + "}"
			if !strings.Contains(path, placeholder) {
				continue
			}
			value := params[name]
			if value == "" {
				return "", fmt.Errorf("missing %q parameter for %s", name, kind)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
		}
		if r.basePath != "" && path == "/" {
			return r.basePath, nil
		}
		return r.basePath + path, nil
	}
	return "", fmt.Errorf("no path template for %s", kind)
}

func (r *Resolver) relative(path string) (string, bool) {
	if r.basePath == "" {
		return path, true
	}
	if path == r.basePath {
		return "/", true
	}
	rel, ok := strings.CutPrefix(path, r.basePath+"/")
	if !ok {
		return "", false
	}
	return "/" + rel, true
}

func normalizeBase(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return base
}
