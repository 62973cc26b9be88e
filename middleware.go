package nrpc

import (
	"context"
)

// Result is what a middleware chain produces.  Context is the context
// contributed by the inner part of the chain; the handler contributes
// none.
type Result struct {
	Output  any
	Context Context
}

// Next runs the remainder of the chain.  extra is merged into the
// running context before the next middleware (or the handler) sees it.
type Next func(ctx context.Context, extra Context) (Result, error)

// Middleware intercepts a call.  Code before next runs on the way in and
// code after next runs on the way out.  Middleware that returns without
// calling next short-circuits the rest of the chain.
type Middleware func(ctx context.Context, input any, c Context, meta Meta, next Next) (Result, error)

// Execute runs mws in order and then the handler.  Errors propagate
// unmodified.
func Execute(ctx context.Context, mws []Middleware, handler Handler, input any, c Context, meta Meta) (Result, error) {
	return chainFrom(mws, handler, 0, input, meta)(ctx, c)
}

// chainFrom returns the continuation that runs mws[i:] and then the
// handler.  The continuation takes the context accumulated so far.
// Each call to the continuation re-runs the remainder.
func chainFrom(mws []Middleware, handler Handler, i int, input any, meta Meta) func(context.Context, Context) (Result, error) {
	if i >= len(mws) {
		return func(ctx context.Context, c Context) (Result, error) {
			out, err := handler(ctx, input, c, meta)
			if err != nil {
				return Result{}, err
			}
			return Result{Output: out}, nil
		}
	}
	return func(ctx context.Context, c Context) (Result, error) {
		rest := chainFrom(mws, handler, i+1, input, meta)
		next := func(ctx context.Context, extra Context) (Result, error) {
			return rest(ctx, MergeContext(c, extra))
		}
		return mws[i](ctx, input, c, meta, next)
	}
}

// MapInput adapts a middleware so that it sees fn(input) rather than
// the procedure input.  The rest of the chain still receives the
// original input.
func MapInput(m Middleware, fn func(input any) any) Middleware {
	return func(ctx context.Context, input any, c Context, meta Meta, next Next) (Result, error) {
		return m(ctx, fn(input), c, meta, next)
	}
}

// Concat combines two middleware into one that runs a and then b.
// Context added by a is visible to b.
func Concat(a, b Middleware) Middleware {
	return func(ctx context.Context, input any, c Context, meta Meta, next Next) (Result, error) {
		return a(ctx, input, c, meta, func(ctx context.Context, extra Context) (Result, error) {
			merged := MergeContext(c, extra)
			return b(ctx, input, merged, meta, func(ctx context.Context, extra2 Context) (Result, error) {
				return next(ctx, MergeContext(extra, extra2))
			})
		})
	}
}
