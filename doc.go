/*
Package nrpc is a typed remote procedure call runtime.  It exposes a tree
of named procedures, resolves a request path to a single procedure, runs
that procedure through an ordered chain of middleware, validates input and
output against schemas, and hands the result back to a transport.

The HTTP transport lives in npoint.  The wire formats live in nvelope.  A
client that speaks the internal wire format lives in nclient.

# Procedures

A Procedure is a Contract (routing metadata plus input and output
schemas), a list of Middleware, and a Handler.  Procedures are usually
created with a Builder:

	var os = nrpc.NewBuilder()

	var ping = os.
		Route(nrpc.RouteOptions{Method: "GET", Path: "/ping"}).
		Input(pingSchema).
		Handler(func(ctx context.Context, input any, c nrpc.Context, meta nrpc.Meta) (any, error) {
			return "pong", nil
		})

# Routers

A Router is a map from names to Procedures, nested Routers, or Lazy
references to either.  Lazy references are not loaded until a request
actually needs them:

	var router = nrpc.Router{
		"ping": ping,
		"planet": nrpc.LazyFunc(func(ctx context.Context) (any, error) {
			return planetRouter, nil
		}),
	}

RouterBuilder applies a path prefix, tags, and middleware to every
procedure in a router.  Concrete procedures are rewritten immediately.
Lazy subtrees are rewritten when they are loaded.

# Middleware

Middleware wraps the rest of the chain.  It receives a Next function.
Calling Next runs the remaining middleware and then the handler.  The
context passed to Next is merged into the running context so that later
middleware and the handler see it.  Middleware that does not call Next
short-circuits the chain.

	func auth(ctx context.Context, input any, c nrpc.Context, meta nrpc.Meta, next nrpc.Next) (nrpc.Result, error) {
		user, ok := c["user"]
		if !ok {
			return nrpc.Result{}, nrpc.NewError(nrpc.Unauthorized)
		}
		return next(ctx, nrpc.Context{"userID": user})
	}

# Callers

NewCaller turns a procedure (or a lazy procedure) into a plain function.
The caller loads the procedure, resolves the context, validates input,
runs the middleware chain, validates output, and fires lifecycle hooks.

# Errors

Every client visible failure is an *Error with a Code and an HTTP status.
Anything else that escapes a handler is converted to
INTERNAL_SERVER_ERROR by the transport.  Input validation failures are
BAD_REQUEST.  Output validation failures are INTERNAL_SERVER_ERROR
because an output that violates its own contract is a server bug.
*/
package nrpc
