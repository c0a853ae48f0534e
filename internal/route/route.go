// Package route compiles a project's stored Route rows into a matcher the
// gateway can test an incoming request against. The outer HTTP surface is
// registered once at startup and can use a static router, but a project's
// own route table is data loaded at request time, so it needs a small
// hand-written compiler instead of a router library's one-time route tree.
//
// Grounded on original_source/backend/app/routers/gateway.py's
// _path_pattern_to_regex and _match_route.
package route

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/clowdy-platform/engine/internal/metadata"
)

// compiledRoute pairs a metadata.Route with its compiled matcher.
type compiledRoute struct {
	route         *metadata.Route
	regex         *regexp.Regexp
	paramNames    []string
	literalCount  int // number of non-parameter path segments, used as a tie-break
}

// Table is a compiled, ready-to-match route set for one project.
type Table struct {
	projectID string
	version   int64
	compiled  []compiledRoute
}

// Match is a successful route resolution.
type Match struct {
	Route  *metadata.Route
	Params map[string]string
}

// ComputeVersion derives a cheap version number from a route set: the count
// of routes combined with the most recent update timestamp, so any add,
// remove, or edit changes the version without needing a separate counter
// column in the metadata schema.
func ComputeVersion(routes []*metadata.Route) int64 {
	var latest int64
	for _, r := range routes {
		if u := r.UpdatedAt.Unix(); u > latest {
			latest = u
		}
	}
	return latest*1000 + int64(len(routes))
}

// Compile builds a Table from routes, in the priority order matches will be
// tried: exact HTTP method before ANY, then more literal path segments
// before fewer, then the order routes were created in (the order already
// returned by metadata.Store.ListRoutesByProject).
func Compile(projectID string, version int64, routes []*metadata.Route) (*Table, error) {
	compiled := make([]compiledRoute, 0, len(routes))
	for _, r := range routes {
		regex, params, literalCount, err := patternToRegex(r.PathPattern)
		if err != nil {
			return nil, fmt.Errorf("route: compiling pattern %q: %w", r.PathPattern, err)
		}
		compiled = append(compiled, compiledRoute{
			route:        r,
			regex:        regex,
			paramNames:   params,
			literalCount: literalCount,
		})
	}

	stableSortByPriority(compiled)

	return &Table{projectID: projectID, version: version, compiled: compiled}, nil
}

// Version reports the route-set version this Table was compiled from, so
// callers can cache a Table and recompile only when the underlying rows
// change.
func (t *Table) Version() int64 { return t.version }

// Match finds the first route matching method and path, trying every
// route with an exact method match before any route bound to ANY.
func (t *Table) Match(method, path string) (*Match, bool) {
	method = strings.ToUpper(method)
	path = normalizePath(path)

	for _, candidateMethod := range []string{method, string(metadata.MethodAny)} {
		for _, cr := range t.compiled {
			if string(cr.route.Method) != candidateMethod {
				continue
			}
			groups := cr.regex.FindStringSubmatch(path)
			if groups == nil {
				continue
			}
			params := make(map[string]string, len(cr.paramNames))
			for i, name := range cr.paramNames {
				params[name] = groups[i+1]
			}
			return &Match{Route: cr.route, Params: params}, true
		}
	}
	return nil, false
}

// patternToRegex converts a pattern like "/users/:id/posts/:postId" into a
// compiled regex with one capture group per :name segment, the list of
// param names in order, and a count of literal (non-parameter) segments.
func patternToRegex(pattern string) (*regexp.Regexp, []string, int, error) {
	var params []string
	var parts []string
	literalCount := 0

	for _, segment := range strings.Split(pattern, "/") {
		if segment == "" {
			continue
		}
		if strings.HasPrefix(segment, ":") {
			name := segment[1:]
			params = append(params, name)
			parts = append(parts, `([^/]+)`)
			continue
		}
		literalCount++
		parts = append(parts, regexp.QuoteMeta(segment))
	}

	regexStr := "^/" + strings.Join(parts, "/") + "$"
	re, err := regexp.Compile(regexStr)
	if err != nil {
		return nil, nil, 0, err
	}
	return re, params, literalCount, nil
}

// normalizePath ensures a leading slash and strips a single trailing
// slash, matching the original gateway's request-path normalization.
func normalizePath(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

// stableSortByPriority orders routes by literal-segment-count descending
// (more specific patterns are tried first), preserving the input's
// relative order among ties, which is already insertion order since
// metadata.Store.ListRoutesByProject orders by created_at ASC.
func stableSortByPriority(routes []compiledRoute) {
	for i := 1; i < len(routes); i++ {
		j := i
		for j > 0 && routes[j-1].literalCount < routes[j].literalCount {
			routes[j-1], routes[j] = routes[j], routes[j-1]
			j--
		}
	}
}
