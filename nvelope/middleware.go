package nvelope

import (
	"net/http"

	"github.com/muir/nject"
)

// Middleware is the standard wrapping middleware signature used by
// most Go HTTP packages, including chi's middleware package.
type Middleware func(http.Handler) http.Handler

// MiddlewareBaseWriter converts existing middleware functions so that
// they're compatible with nject.  The middleware runs before the
// DeferredWriter is injected so that it sees, and may wrap, the real
// http.ResponseWriter.  Middleware that does not call the next handler
// stops the request.
//
// The first middleware is the outermost.
func MiddlewareBaseWriter(m ...Middleware) nject.Provider {
	combined := combineMiddleware(m)

	return nject.Required(nject.Provide("wrapped-middleware-base",
		func(inner func(w http.ResponseWriter, r *http.Request), w http.ResponseWriter, r *http.Request) {
			combined(http.HandlerFunc(inner)).ServeHTTP(w, r)
		}))
}

func combineMiddleware(m []Middleware) Middleware {
	switch len(m) {
	case 0:
		return func(h http.Handler) http.Handler {
			return h
		}
	case 1:
		return m[0]
	default:
		combined := m[len(m)-1]
		for i := len(m) - 2; i >= 0; i-- {
			f := m[i]
			c := combined
			combined = func(h http.Handler) http.Handler {
				return f(c(h))
			}
		}
		return combined
	}
}
