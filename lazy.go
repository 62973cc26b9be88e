package nrpc

import (
	"context"
	"sync"
)

// Lazy is a deferred loader for a Procedure, a Router, or another Lazy.
// Anything with a Load method is a Lazy.
//
// Loading is not memoized unless the Lazy is wrapped with Memoize.  Load
// may be called concurrently.
type Lazy interface {
	Load(ctx context.Context) (any, error)
}

// LazyFunc adapts a function into a Lazy.
type LazyFunc func(ctx context.Context) (any, error)

func (f LazyFunc) Load(ctx context.Context) (any, error) {
	return f(ctx)
}

// IsLazy reports whether v can be loaded.
func IsLazy(v any) bool {
	_, ok := v.(Lazy)
	return ok
}

// Force loads l once.  The result may itself be a Lazy.
func Force(ctx context.Context, l Lazy) (any, error) {
	return l.Load(ctx)
}

// Flatten collapses a chain of lazies into one: the returned Lazy keeps
// loading until the value is no longer lazy.
func Flatten(l Lazy) Lazy {
	if _, ok := l.(flattened); ok {
		return l
	}
	return flattened{inner: l}
}

type flattened struct {
	inner Lazy
}

func (f flattened) Load(ctx context.Context) (any, error) {
	return forceAll(ctx, f.inner)
}

func (f flattened) LazyPrefix() string {
	return LazyPrefix(f.inner)
}

func forceAll(ctx context.Context, v any) (any, error) {
	for {
		l, ok := v.(Lazy)
		if !ok {
			return v, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, NewError(Timeout, WithMessage("loading stopped"), WithCause(err))
		}
		var err error
		v, err = l.Load(ctx)
		if err != nil {
			return nil, err
		}
	}
}

// Child derives a Lazy for key inside the router that l loads.  Nothing
// is loaded until the child itself is loaded.  Lazies found along the way
// are forced so that a chain of lazies behaves like a single hop.
//
// Loading fails with NOT_FOUND (cause ErrReachedEnd) if key is not
// present, and with NOT_FOUND (cause ErrNotProcedure) if the value found
// is neither a Procedure nor a Router.
func Child(l Lazy, key string) Lazy {
	return LazyFunc(func(ctx context.Context) (any, error) {
		parent, err := forceAll(ctx, l)
		if err != nil {
			return nil, err
		}
		return childOf(ctx, parent, key)
	})
}

// ChildPath is Child applied once per key.
func ChildPath(l Lazy, keys ...string) Lazy {
	for _, key := range keys {
		l = Child(l, key)
	}
	return l
}

func childOf(ctx context.Context, parent any, key string) (any, error) {
	router, ok := asRouter(parent)
	if !ok {
		return nil, notFound(ErrReachedEnd)
	}
	next, ok := router[key]
	if !ok || next == nil {
		return nil, notFound(ErrReachedEnd)
	}
	next, err := forceAll(ctx, next)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, notFound(ErrReachedEnd)
	}
	if _, ok := next.(*Procedure); ok {
		return next, nil
	}
	if r, ok := asRouter(next); ok {
		return r, nil
	}
	return nil, notFound(ErrNotProcedure)
}

// Memoize caches the first successful load of l.  Failed loads are not
// cached and will be retried.
func Memoize(l Lazy) Lazy {
	return &memoized{inner: l}
}

type memoized struct {
	inner  Lazy
	lock   sync.Mutex
	loaded bool
	value  any
}

func (m *memoized) Load(ctx context.Context) (any, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.loaded {
		return m.value, nil
	}
	v, err := m.inner.Load(ctx)
	if err != nil {
		return nil, err
	}
	m.value = v
	m.loaded = true
	return v, nil
}

func (m *memoized) LazyPrefix() string {
	return LazyPrefix(m.inner)
}

type prefixedLazy interface {
	LazyPrefix() string
}

// LazyPrefix returns the HTTP path prefix that a RouterBuilder attached
// to a lazy subtree, or "" if there is none.
func LazyPrefix(l Lazy) string {
	if p, ok := l.(prefixedLazy); ok {
		return p.LazyPrefix()
	}
	return ""
}
