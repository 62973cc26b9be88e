package nrpc

import (
	"context"
)

// RouterCaller calls procedures of a router by path, in process, with
// the same semantics as a remote call.
type RouterCaller struct {
	root any
	opts []CallerOpt
}

// NewRouterCaller creates a RouterCaller.  root is a Router or a Lazy
// that loads one.  opts are applied to every call; the path option is
// always replaced by the path being called.
func NewRouterCaller(root any, opts ...CallerOpt) *RouterCaller {
	return &RouterCaller{
		root: root,
		opts: append([]CallerOpt(nil), opts...),
	}
}

// Procedure returns a Caller for the procedure at path.  Nothing is
// loaded until the Caller is invoked.
func (rc *RouterCaller) Procedure(path ...string) Caller {
	path = append([]string(nil), path...)
	lazy := LazyFunc(func(ctx context.Context) (any, error) {
		return Resolve(ctx, rc.root, path)
	})
	opts := make([]CallerOpt, 0, len(rc.opts)+1)
	opts = append(opts, rc.opts...)
	opts = append(opts, WithPath(path...))
	return NewCaller(lazy, opts...)
}

// Call calls the procedure at path.
func (rc *RouterCaller) Call(ctx context.Context, path []string, input any) (any, error) {
	return rc.Procedure(path...)(ctx, input)
}
