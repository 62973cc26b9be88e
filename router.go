package nrpc

import (
	"context"
	"sort"
)

// Router is a tree of procedures.  Values are *Procedure, Router (or
// map[string]any), or a Lazy that loads either.  Routers are not
// modified after construction and may be shared between goroutines.
type Router map[string]any

func asRouter(v any) (Router, bool) {
	switch r := v.(type) {
	case Router:
		return r, r != nil
	case map[string]any:
		return Router(r), r != nil
	default:
		return nil, false
	}
}

// ResolveNode walks path from root, loading lazy nodes as it goes, and
// returns the *Procedure or Router found.  A missing segment is
// NOT_FOUND with cause ErrReachedEnd.
func ResolveNode(ctx context.Context, root any, path []string) (any, error) {
	node, err := forceAll(ctx, root)
	if err != nil {
		return nil, err
	}
	for _, key := range path {
		node, err = childOf(ctx, node, key)
		if err != nil {
			return nil, err
		}
	}
	if node == nil {
		return nil, notFound(ErrReachedEnd)
	}
	return node, nil
}

// Resolve is ResolveNode for paths that must end at a procedure.  A path
// that ends at a router is NOT_FOUND with cause ErrNotProcedure.
func Resolve(ctx context.Context, root any, path []string) (*Procedure, error) {
	node, err := ResolveNode(ctx, root, path)
	if err != nil {
		return nil, err
	}
	p, ok := node.(*Procedure)
	if !ok {
		return nil, notFound(ErrNotProcedure)
	}
	return p, nil
}

// Visitor receives the nodes found by Walk.  Either function may be nil.
type Visitor struct {
	// Procedure is called for each procedure that is not behind a Lazy.
	Procedure func(path []string, p *Procedure)

	// Lazy is called for each Lazy.  Walk does not load it.
	Lazy func(path []string, l Lazy)
}

// Walk visits the eagerly available part of a router in key order.
// Lazy nodes are reported but not loaded.
func Walk(root any, v Visitor) {
	walk(nil, root, v)
}

func walk(path []string, node any, v Visitor) {
	if p, ok := node.(*Procedure); ok {
		if v.Procedure != nil && p != nil {
			v.Procedure(path, p)
		}
		return
	}
	if l, ok := node.(Lazy); ok {
		if v.Lazy != nil {
			v.Lazy(path, l)
		}
		return
	}
	router, ok := asRouter(node)
	if !ok {
		return
	}
	keys := make([]string, 0, len(router))
	for k := range router {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		child := make([]string, len(path), len(path)+1)
		copy(child, path)
		walk(append(child, k), router[k], v)
	}
}
