/*
Package npoint serves nrpc routers over HTTP.

# Protocols

Each request is served with one of two protocols.  Requests that
carry the header

	X-Nrpc-Protocol: nrpc

use the internal protocol: the body is an nvelope.RPC envelope and
the path names the procedure by its segments, so /planet/find calls
router["planet"]["find"].

Every other request uses the OpenAPI protocol.  Procedures whose
contract has a Path are routed by method and path template:

	nrpc.NewBuilder().
		Route(nrpc.RouteOptions{Method: "GET", Path: "/users/{id}"}).
		Handler(getUser)

Path parameters are merged into the decoded input.  Keys already in
the input win.  When no template matches, the path segments are used
as with the internal protocol.

# Lazy routers

Lazy subtrees are not loaded to build the route table.  A lazy with a
prefix (see nrpc.LazyPrefix) is loaded by the first request under that
prefix.  A lazy without one is loaded by the first request that nothing
loaded so far could route.

# Chain

The handler is an nject chain:

	request id and logger
	HTTP middleware (WithHTTPMiddleware)
	codec selection
	nvelope.DeferredWriter
	metrics (WithMetrics)
	nvelope.EncodeResponse
	nvelope.CatchPanic
	dispatch

so errors from any point after the middleware, including panics, are
written with the request's codec and status.

# Services

A Service mounts several routers under different prefixes.
Pre-registered services build nothing until they are started.
*/
package npoint
