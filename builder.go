package nrpc

import (
	"context"
	"strings"
)

// Builder is the starting point for procedures and routers.  It carries
// middleware that every procedure and router made from it will use.
// Builder methods return new values and never modify the receiver.
type Builder struct {
	middlewares []*middlewareRef
}

// NewBuilder returns a Builder with no middleware.
func NewBuilder() *Builder {
	return &Builder{}
}

// Use returns a Builder with m added.  If mapInput is provided, m sees
// mapInput(input) instead of the procedure input.
func (b *Builder) Use(m Middleware, mapInput ...func(input any) any) *Builder {
	if len(mapInput) > 0 && mapInput[0] != nil {
		m = MapInput(m, mapInput[0])
	}
	return &Builder{
		middlewares: append(copyRefs(b.middlewares), &middlewareRef{fn: m}),
	}
}

// Middleware is an identity function that helps declare middleware with
// the right type.
func (b *Builder) Middleware(m Middleware) Middleware {
	return m
}

// Route starts a procedure with routing metadata.
func (b *Builder) Route(opts RouteOptions) *ProcedureBuilder {
	return b.procedure(Contract{}.Route(opts))
}

// Input starts a procedure with an input schema.
func (b *Builder) Input(schema Schema, example ...any) *ProcedureBuilder {
	return b.procedure(Contract{}.Input(schema, example...))
}

// Output starts a procedure with an output schema.
func (b *Builder) Output(schema Schema, example ...any) *ProcedureBuilder {
	return b.procedure(Contract{}.Output(schema, example...))
}

// Handler creates a procedure with an empty contract.
func (b *Builder) Handler(h Handler) *Procedure {
	return b.procedure(Contract{}).Handler(h)
}

// Contract starts a procedure that implements an existing contract.
func (b *Builder) Contract(c Contract) *ProcedureBuilder {
	return b.procedure(c)
}

func (b *Builder) procedure(c Contract) *ProcedureBuilder {
	return &ProcedureBuilder{
		contract:    c,
		middlewares: copyRefs(b.middlewares),
	}
}

// Prefix starts a RouterBuilder with a path prefix.
func (b *Builder) Prefix(prefix string) *RouterBuilder {
	return b.routerBuilder().Prefix(prefix)
}

// Tag starts a RouterBuilder with tags.
func (b *Builder) Tag(tags ...string) *RouterBuilder {
	return b.routerBuilder().Tag(tags...)
}

// Router applies the builder middleware to every procedure in r.
// Procedures that were made by this builder already have it and do not
// get it twice.
func (b *Builder) Router(r Router) Router {
	return b.routerBuilder().Router(r)
}

// Lazy wraps a loader of a router or procedure so that the builder
// middleware is applied when it is loaded.
func (b *Builder) Lazy(loader func(ctx context.Context) (any, error)) Lazy {
	return b.routerBuilder().Lazy(LazyFunc(loader))
}

func (b *Builder) routerBuilder() *RouterBuilder {
	return &RouterBuilder{middlewares: copyRefs(b.middlewares)}
}

// ProcedureBuilder accumulates a contract and middleware until Handler
// is called.
type ProcedureBuilder struct {
	contract    Contract
	middlewares []*middlewareRef
}

func (pb *ProcedureBuilder) with(c Contract, refs []*middlewareRef) *ProcedureBuilder {
	return &ProcedureBuilder{contract: c, middlewares: refs}
}

// Route replaces the routing metadata.
func (pb *ProcedureBuilder) Route(opts RouteOptions) *ProcedureBuilder {
	return pb.with(pb.contract.Route(opts), pb.middlewares)
}

// Input sets the input schema.
func (pb *ProcedureBuilder) Input(schema Schema, example ...any) *ProcedureBuilder {
	return pb.with(pb.contract.Input(schema, example...), pb.middlewares)
}

// Output sets the output schema.
func (pb *ProcedureBuilder) Output(schema Schema, example ...any) *ProcedureBuilder {
	return pb.with(pb.contract.Output(schema, example...), pb.middlewares)
}

// Use adds middleware that runs after the middleware already present.
func (pb *ProcedureBuilder) Use(m Middleware, mapInput ...func(input any) any) *ProcedureBuilder {
	if len(mapInput) > 0 && mapInput[0] != nil {
		m = MapInput(m, mapInput[0])
	}
	return pb.with(pb.contract, append(copyRefs(pb.middlewares), &middlewareRef{fn: m}))
}

// Handler finishes the procedure.
func (pb *ProcedureBuilder) Handler(h Handler) *Procedure {
	if h == nil {
		panic("nrpc: a procedure requires a handler")
	}
	return &Procedure{
		contract:    pb.contract,
		middlewares: copyRefs(pb.middlewares),
		handler:     h,
	}
}

// RouterBuilder applies a prefix, tags, and middleware to every
// procedure of a router.  Concrete procedures are rewritten when Router
// is called.  Lazy nodes are rewritten when they are loaded.
type RouterBuilder struct {
	prefix      string
	tags        []string
	middlewares []*middlewareRef
}

func (rb *RouterBuilder) clone() *RouterBuilder {
	return &RouterBuilder{
		prefix:      rb.prefix,
		tags:        append([]string(nil), rb.tags...),
		middlewares: copyRefs(rb.middlewares),
	}
}

// Prefix adds to the path prefix.  Prefixes may not contain path
// parameters: Prefix panics if prefix contains "{".
func (rb *RouterBuilder) Prefix(prefix string) *RouterBuilder {
	if strings.Contains(prefix, "{") {
		panic("nrpc: router prefix " + prefix + " must not contain path parameters")
	}
	n := rb.clone()
	if n.prefix == "" {
		n.prefix = StandardizePath(prefix)
	} else {
		n.prefix = PrefixPath(n.prefix, prefix)
	}
	return n
}

// Tag adds tags.
func (rb *RouterBuilder) Tag(tags ...string) *RouterBuilder {
	n := rb.clone()
	n.tags = append(n.tags, tags...)
	return n
}

// Use adds middleware.
func (rb *RouterBuilder) Use(m Middleware, mapInput ...func(input any) any) *RouterBuilder {
	if len(mapInput) > 0 && mapInput[0] != nil {
		m = MapInput(m, mapInput[0])
	}
	n := rb.clone()
	n.middlewares = append(n.middlewares, &middlewareRef{fn: m})
	return n
}

// Router returns a copy of r with the builder settings applied.  r is
// not modified.
func (rb *RouterBuilder) Router(r Router) Router {
	return rb.adaptRouter(r)
}

// Lazy returns a Lazy that applies the builder settings to whatever l
// loads.  The prefix is remembered and reported by LazyPrefix so that
// HTTP routing can mount the subtree before it is loaded.
func (rb *RouterBuilder) Lazy(l Lazy) Lazy {
	return rb.adaptLazy(l)
}

func (rb *RouterBuilder) adaptRouter(r Router) Router {
	out := make(Router, len(r))
	for k, v := range r {
		out[k] = rb.adapt(v)
	}
	return out
}

func (rb *RouterBuilder) adapt(v any) any {
	if p, ok := v.(*Procedure); ok {
		return rb.adaptProcedure(p)
	}
	if l, ok := v.(Lazy); ok {
		return rb.adaptLazy(l)
	}
	if r, ok := asRouter(v); ok {
		return rb.adaptRouter(r)
	}
	return v
}

func (rb *RouterBuilder) adaptProcedure(p *Procedure) *Procedure {
	if p == nil {
		return nil
	}
	p = p.unshiftRefs(rb.middlewares)
	p = p.UnshiftTags(rb.tags...)
	if rb.prefix != "" {
		p = p.Prefix(rb.prefix)
	}
	return p
}

func (rb *RouterBuilder) adaptLazy(l Lazy) Lazy {
	return &adaptedLazy{
		inner:   l,
		builder: rb.clone(),
		prefix:  PrefixPath(rb.prefixOrRoot(), orRoot(LazyPrefix(l))),
	}
}

func (rb *RouterBuilder) prefixOrRoot() string {
	return orRoot(rb.prefix)
}

func orRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

type adaptedLazy struct {
	inner   Lazy
	builder *RouterBuilder
	prefix  string
}

func (a *adaptedLazy) Load(ctx context.Context) (any, error) {
	v, err := forceAll(ctx, a.inner)
	if err != nil {
		return nil, err
	}
	return a.builder.adapt(v), nil
}

func (a *adaptedLazy) LazyPrefix() string {
	if a.prefix == "/" {
		return ""
	}
	return a.prefix
}
