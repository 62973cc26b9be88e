package npoint

import (
	"net/http"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/prometheus/client_golang/prometheus"
)

// HandlerOpt are functional arguments for NewHandler
type HandlerOpt func(*Handler)

// WithPrefix sets a path prefix that is stripped before routing.
// Requests outside the prefix are NOT_FOUND.
func WithPrefix(prefix string) HandlerOpt {
	return func(h *Handler) {
		h.prefix = nrpc.StandardizePath(prefix)
		if h.prefix == "/" {
			h.prefix = ""
		}
	}
}

// WithServerless selects a routing table that is cheap to build and
// scans its routes in order.  It suits processes that handle few
// requests before they exit.  The default is a radix tree.
func WithServerless() HandlerOpt {
	return func(h *Handler) {
		h.serverless = true
	}
}

// WithLogger sets the logger.  Each request logs through it with the
// request id attached.  The default discards everything.
func WithLogger(log nvelope.BasicLogger) HandlerOpt {
	return func(h *Handler) {
		h.log = log
	}
}

// WithContext provides the initial context for each call from the
// request.  An error fails the request.
func WithContext(fn func(r *http.Request) (nrpc.Context, error)) HandlerOpt {
	return func(h *Handler) {
		h.contextFn = fn
	}
}

// WithOnRequest is called for every call, before the procedure's
// input is validated, so that it can register lifecycle hooks.
func WithOnRequest(fn func(r *http.Request, hooks *nrpc.Hooks)) HandlerOpt {
	return func(h *Handler) {
		h.onRequest = append(h.onRequest, fn)
	}
}

// WithMaxBodyBytes limits the size of request bodies.  Larger bodies
// are PAYLOAD_TOO_LARGE.
func WithMaxBodyBytes(n int64) HandlerOpt {
	return func(h *Handler) {
		h.maxBodyBytes = n
	}
}

// WithMetrics registers request metrics with reg.
func WithMetrics(reg prometheus.Registerer) HandlerOpt {
	return func(h *Handler) {
		h.registerer = reg
	}
}

// WithCallerOpts adds options to every procedure call.
func WithCallerOpts(opts ...nrpc.CallerOpt) HandlerOpt {
	return func(h *Handler) {
		h.callerOpts = append(h.callerOpts, opts...)
	}
}

// WithHTTPMiddleware runs standard HTTP middleware around every
// request.  The first middleware is the outermost.
func WithHTTPMiddleware(m ...nvelope.Middleware) HandlerOpt {
	return func(h *Handler) {
		h.middleware = append(h.middleware, m...)
	}
}

// WithOpenAPI replaces the codec used for requests that do not use
// the internal protocol.
func WithOpenAPI(codec nvelope.Codec) HandlerOpt {
	return func(h *Handler) {
		h.openapi = codec
	}
}

// WithDebugChain logs the providers of the handler's injection chain,
// at debug level, on every request.
func WithDebugChain() HandlerOpt {
	return func(h *Handler) {
		h.debugChain = true
	}
}
