// Package router holds an ordered collection of (pattern, action) entries and
// resolves a concrete invoke path to the first matching entry, extracting
// named parameters and wildcard splats.
//
// Patterns use ":name" for a named segment and a trailing "*" for a wildcard
// splat, e.g. "/hello/:who/*". Matching is delegated to gorilla/mux, which
// already solves segment matching correctly and efficiently; patterns are
// translated once at registration time and never touch a hand-rolled matcher.
package router

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
)

// Action is whatever a registered route resolves to. nydusserver stores a
// composed middleware.Handler here; router itself is agnostic to the type.
type Action any

// Match is the result of a successful Router.Match call.
type Match struct {
	Pattern string
	Params  map[string]string
	Splats  []string
	Action  Action
}

type entry struct {
	pattern string
	route   *mux.Route
	action  Action
}

// Router is not safe for concurrent mutation; nydusserver.Server serializes
// all RegisterRoute calls on its single logical thread (see spec.md §5).
type Router struct {
	mux     *mux.Router
	entries []*entry
}

// New returns an empty router.
func New() *Router {
	return &Router{mux: mux.NewRouter()}
}

var splatSegment = regexp.MustCompile(`/\*$`)

// Register appends a (pattern, action) entry. Registration order is
// resolution order: the first entry whose pattern matches wins.
func (r *Router) Register(pattern string, action Action) error {
	if pattern == "" || !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("router: pattern must start with \"/\", got %q", pattern)
	}

	compiled := compilePattern(pattern)
	route := r.mux.NewRoute().Path(compiled)

	e := &entry{pattern: pattern, route: route, action: action}
	r.entries = append(r.entries, e)
	return nil
}

// compilePattern rewrites ":name" segments to mux's "{name}" and a trailing
// "*" segment to a catch-all "{nydusSplat:.*}" capture.
func compilePattern(pattern string) string {
	if splatSegment.MatchString(pattern) {
		pattern = strings.TrimSuffix(pattern, "*") + "{nydusSplat:.*}"
	}
	segs := strings.Split(pattern, "/")
	for i, seg := range segs {
		if strings.HasPrefix(seg, ":") {
			segs[i] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segs, "/")
}

// Match resolves path against the registered entries in registration order.
// path is assumed already length-bounded and percent-decoded by the frame
// codec.
func (r *Router) Match(path string) (*Match, bool) {
	// Built directly rather than via http.NewRequest/url.Parse: an
	// already-decoded path may contain characters (spaces, etc.) that are
	// legal in the spec's path grammar but awkward to round-trip through a
	// full URL parse.
	req := &http.Request{Method: http.MethodGet, URL: &url.URL{Path: path}}

	for _, e := range r.entries {
		var rm mux.RouteMatch
		if e.route.Match(req, &rm) {
			params := map[string]string{}
			var splats []string
			for k, v := range rm.Vars {
				if k == "nydusSplat" {
					if v != "" {
						splats = strings.Split(v, "/")
					}
					continue
				}
				params[k] = v
			}
			return &Match{Pattern: e.pattern, Params: params, Splats: splats, Action: e.action}, true
		}
	}
	return nil, false
}
