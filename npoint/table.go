package npoint

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/mux"
	"github.com/muir/nrpc"
	"github.com/pkg/errors"
)

// route is a procedure reachable by method and path template.
type route struct {
	path      []string
	procedure *nrpc.Procedure
}

// routeTable matches a method and a path against the path templates of
// procedure contracts.  Templates use {name} placeholders.  When more
// than one template matches, the most specific one wins.
type routeTable interface {
	add(method, template string, rt route) error
	lookup(r *http.Request, path string) (route, map[string]string, bool)
}

func newTable(serverless bool) routeTable {
	if serverless {
		return &lineTable{}
	}
	return newRadixTable()
}

var standardMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodConnect: true,
	http.MethodOptions: true,
	http.MethodTrace:   true,
}

// radixTable is built on chi's radix tree.  Matching never invokes the
// registered handlers; the matched template identifies the route.
type radixTable struct {
	mux    *chi.Mux
	routes map[string]route
}

func newRadixTable() *radixTable {
	return &radixTable{
		mux:    chi.NewMux(),
		routes: make(map[string]route),
	}
}

func routeKey(method, template string) string {
	return method + " " + template
}

func (t *radixTable) add(method, template string, rt route) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("cannot route %s %s: %v", method, template, r)
		}
	}()
	if !standardMethods[method] {
		chi.RegisterMethod(method)
	}
	key := routeKey(method, template)
	if existing, ok := t.routes[key]; ok {
		return errors.Errorf("%s %s is used by both %s and %s", method, template,
			strings.Join(existing.path, "."), strings.Join(rt.path, "."))
	}
	t.mux.MethodFunc(method, template, http.NotFound)
	t.routes[key] = rt
	return nil
}

func (t *radixTable) lookup(r *http.Request, path string) (route, map[string]string, bool) {
	rctx := chi.NewRouteContext()
	if !t.mux.Match(rctx, r.Method, path) {
		return route{}, nil, false
	}
	rt, ok := t.routes[routeKey(r.Method, rctx.RoutePattern())]
	if !ok {
		return route{}, nil, false
	}
	var params map[string]string
	for i, k := range rctx.URLParams.Keys {
		if k == "*" {
			continue
		}
		if params == nil {
			params = make(map[string]string)
		}
		params[k] = rctx.URLParams.Values[i]
	}
	return rt, params, true
}

// lineTable is a gorilla/mux router.  Routes are scanned in order, so
// they are kept sorted most specific first.  Building it is cheaper
// than building a radix tree, which suits short lived processes.
type lineTable struct {
	mu      sync.Mutex
	pending []pendingRoute
	router  *mux.Router
	routes  map[*mux.Route]route
}

type pendingRoute struct {
	method   string
	template string
	rt       route
}

func (t *lineTable) add(method, template string, rt route) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pending {
		if p.method == method && p.template == template {
			return errors.Errorf("%s %s is used by both %s and %s", method, template,
				strings.Join(p.rt.path, "."), strings.Join(rt.path, "."))
		}
	}
	t.pending = append(t.pending, pendingRoute{method: method, template: template, rt: rt})
	t.router = nil
	return nil
}

// specificity orders templates: more static segments first, then
// fewer parameters, then longer templates.
func specificity(template string) (static int, params int) {
	for _, seg := range strings.Split(strings.Trim(template, "/"), "/") {
		if strings.Contains(seg, "{") {
			params++
		} else {
			static++
		}
	}
	return static, params
}

func (t *lineTable) build() (*mux.Router, map[*mux.Route]route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.router != nil {
		return t.router, t.routes
	}
	sorted := append([]pendingRoute(nil), t.pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, pi := specificity(sorted[i].template)
		sj, pj := specificity(sorted[j].template)
		if si != sj {
			return si > sj
		}
		if pi != pj {
			return pi < pj
		}
		return len(sorted[i].template) > len(sorted[j].template)
	})
	router := mux.NewRouter().SkipClean(true)
	routes := make(map[*mux.Route]route, len(sorted))
	for _, p := range sorted {
		mr := router.NewRoute().Path(p.template).Methods(p.method).Handler(http.NotFoundHandler())
		routes[mr] = p.rt
	}
	t.router = router
	t.routes = routes
	return router, routes
}

func (t *lineTable) lookup(r *http.Request, path string) (route, map[string]string, bool) {
	router, routes := t.build()
	u := *r.URL
	u.Path = path
	u.RawPath = ""
	req := &http.Request{
		Method: r.Method,
		URL:    &u,
		Header: r.Header,
		Host:   r.Host,
	}
	var match mux.RouteMatch
	if !router.Match(req, &match) || match.Route == nil {
		return route{}, nil, false
	}
	rt, ok := routes[match.Route]
	if !ok {
		return route{}, nil, false
	}
	if len(match.Vars) == 0 {
		return rt, nil, true
	}
	return rt, match.Vars, true
}

// segments splits a URL path for segment lookup.
func segments(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
