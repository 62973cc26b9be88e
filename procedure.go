package nrpc

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// Handler is the final element of a procedure's middleware chain.  The
// input has already been validated against the input schema.
type Handler func(ctx context.Context, input any, c Context, meta Meta) (any, error)

// Meta describes the call in progress.  It is created once per call and
// must not be retained after the call completes.  Cancellation travels
// in the context.Context rather than in Meta.
type Meta struct {
	// Path is the sequence of router keys from the root to the
	// procedure.  It is empty when a procedure is called directly.
	Path []string

	// Procedure is the procedure being executed.
	Procedure *Procedure

	// Hooks are the lifecycle hooks of this call.  Middleware may
	// register additional hooks.
	Hooks *Hooks
}

// Procedure is an immutable combination of a Contract, an ordered list
// of Middleware, and a Handler.  Decorator methods return new
// procedures and never modify the receiver.
type Procedure struct {
	contract    Contract
	middlewares []*middlewareRef
	handler     Handler
}

// middlewareRef gives a Middleware an identity so that middleware
// shared between a Builder and the procedures it made can be
// recognized when a router built from the same Builder applies it again.
type middlewareRef struct {
	fn Middleware
}

func refMiddleware(mws []Middleware) []*middlewareRef {
	if len(mws) == 0 {
		return nil
	}
	refs := make([]*middlewareRef, len(mws))
	for i, m := range mws {
		refs[i] = &middlewareRef{fn: m}
	}
	return refs
}

func copyRefs(refs []*middlewareRef) []*middlewareRef {
	if len(refs) == 0 {
		return nil
	}
	return append([]*middlewareRef(nil), refs...)
}

// mergeRefs puts outer in front of inner.  Leading middleware that
// inner already shares with outer is not repeated.
func mergeRefs(outer, inner []*middlewareRef) []*middlewareRef {
	shared := 0
	for shared < len(outer) && shared < len(inner) && outer[shared] == inner[shared] {
		shared++
	}
	merged := make([]*middlewareRef, 0, len(outer)+len(inner)-shared)
	merged = append(merged, outer...)
	return append(merged, inner[shared:]...)
}

// NewProcedure creates a procedure.  NewProcedure panics if handler is
// nil.
func NewProcedure(contract Contract, handler Handler, mws ...Middleware) *Procedure {
	if handler == nil {
		panic("nrpc: a procedure requires a handler")
	}
	return &Procedure{
		contract:    contract,
		middlewares: refMiddleware(mws),
		handler:     handler,
	}
}

// IsProcedure reports whether v is a *Procedure.
func IsProcedure(v any) bool {
	p, ok := v.(*Procedure)
	return ok && p != nil
}

func (p *Procedure) Contract() Contract { return p.contract }
func (p *Procedure) Handler() Handler   { return p.handler }

// Middleware returns a copy of the procedure's middleware list.
func (p *Procedure) Middleware() []Middleware {
	if len(p.middlewares) == 0 {
		return nil
	}
	mws := make([]Middleware, len(p.middlewares))
	for i, ref := range p.middlewares {
		mws[i] = ref.fn
	}
	return mws
}

// Use returns a procedure with mws appended to the middleware list.
func (p *Procedure) Use(mws ...Middleware) *Procedure {
	if len(mws) == 0 {
		return p
	}
	n := p.clone()
	n.middlewares = append(n.middlewares, refMiddleware(mws)...)
	return n
}

// UnshiftMiddleware returns a procedure with mws placed in front of the
// existing middleware.
func (p *Procedure) UnshiftMiddleware(mws ...Middleware) *Procedure {
	if len(mws) == 0 {
		return p
	}
	return p.unshiftRefs(refMiddleware(mws))
}

func (p *Procedure) unshiftRefs(refs []*middlewareRef) *Procedure {
	if len(refs) == 0 {
		return p
	}
	n := p.clone()
	n.middlewares = mergeRefs(refs, p.middlewares)
	return n
}

// Prefix returns a procedure whose contract path is prefixed.  Procedures
// without a path are returned as-is.
func (p *Procedure) Prefix(prefix string) *Procedure {
	if p.contract.Path == "" || prefix == "" {
		return p
	}
	n := p.clone()
	n.contract = p.contract.Prefix(prefix)
	return n
}

// UnshiftTags returns a procedure with tags placed in front of the
// existing tags.
func (p *Procedure) UnshiftTags(tags ...string) *Procedure {
	if len(tags) == 0 {
		return p
	}
	n := p.clone()
	n.contract = p.contract.UnshiftTags(tags...)
	return n
}

// Route returns a procedure with new routing metadata.
func (p *Procedure) Route(opts RouteOptions) *Procedure {
	n := p.clone()
	n.contract = p.contract.Route(opts)
	return n
}

func (p *Procedure) clone() *Procedure {
	return &Procedure{
		contract:    p.contract,
		middlewares: copyRefs(p.middlewares),
		handler:     p.handler,
	}
}

// Typed adapts a handler written against concrete types.  The erased
// input is converted to I: values that already have type I are used
// directly, anything else is converted by a JSON round trip.  A
// conversion failure is BAD_REQUEST.
func Typed[I any, O any](fn func(ctx context.Context, input I, c Context, meta Meta) (O, error)) Handler {
	return func(ctx context.Context, input any, c Context, meta Meta) (any, error) {
		in, err := convertTo[I](input)
		if err != nil {
			return nil, NewError(BadRequest, WithMessage("Input could not be converted"), WithCause(err))
		}
		return fn(ctx, in, c, meta)
	}
}

func convertTo[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var t T
	if v == nil {
		return t, nil
	}
	enc, err := json.Marshal(v)
	if err != nil {
		return t, errors.Wrapf(err, "encode %T", v)
	}
	if err := json.Unmarshal(enc, &t); err != nil {
		return t, errors.Wrapf(err, "decode into %T", t)
	}
	return t, nil
}
