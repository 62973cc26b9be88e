package npoint

import (
	"net/http"

	"github.com/gorilla/mux"
)

// GorillaBinder binds to a gorilla mux.Router.  Each mount becomes a
// path prefix route, and mods are applied to every route, for example
// to restrict the host.
func GorillaBinder(router *mux.Router, mods ...func(*mux.Route) *mux.Route) EndpointBinder {
	return func(prefix string, h http.Handler) {
		var route *mux.Route
		if prefix == "" {
			route = router.PathPrefix("/")
		} else {
			route = router.PathPrefix(prefix)
		}
		for _, mod := range mods {
			route = mod(route)
		}
		route.Handler(h)
	}
}

// RegisterServiceWithMux creates a service bound to router and starts
// it immediately.
func RegisterServiceWithMux(name string, router *mux.Router, opts ...HandlerOpt) *Service {
	return RegisterService(name, GorillaBinder(router), opts...)
}
