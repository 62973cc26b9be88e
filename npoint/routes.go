package npoint

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/muir/nrpc"
	"github.com/pkg/errors"
)

// routes is the pattern routing for one router: a table for the
// procedures that are available now and mounts for lazy subtrees.
type routes struct {
	table  routeTable
	mounts []*lazyMount
}

// lazyMount is a lazy subtree.  Its routes are built the first time a
// request path falls under its prefix.  A lazy without a prefix could
// hold any path, so it is loaded by the first request that nothing
// else matched.
type lazyMount struct {
	prefix     string
	path       []string
	lazy       nrpc.Lazy
	serverless bool

	mu     sync.Mutex
	loaded *routes
}

func buildRoutes(base []string, node any, serverless bool) (*routes, error) {
	rs := &routes{table: newTable(serverless)}
	var firstErr error
	nrpc.Walk(node, nrpc.Visitor{
		Procedure: func(path []string, p *nrpc.Procedure) {
			contract := p.Contract()
			if contract.Path == "" || firstErr != nil {
				return
			}
			full := append(append([]string(nil), base...), path...)
			firstErr = rs.table.add(contract.HTTPMethod(), contract.Path, route{
				path:      full,
				procedure: p,
			})
		},
		Lazy: func(path []string, l nrpc.Lazy) {
			rs.mounts = append(rs.mounts, &lazyMount{
				prefix:     nrpc.LazyPrefix(l),
				path:       append(append([]string(nil), base...), path...),
				lazy:       l,
				serverless: serverless,
			})
		},
	})
	return rs, firstErr
}

func (m *lazyMount) covers(path string) bool {
	switch m.prefix {
	case "", "/":
		return true
	default:
		return path == m.prefix || strings.HasPrefix(path, m.prefix+"/")
	}
}

// load builds the mount's routes.  Failures are not remembered so a
// later request tries again.
func (m *lazyMount) load(ctx context.Context) (*routes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded != nil {
		return m.loaded, nil
	}
	v, err := nrpc.Flatten(m.lazy).Load(ctx)
	if err != nil {
		return nil, err
	}
	loaded, err := buildRoutes(m.path, v, m.serverless)
	if err != nil {
		return nil, errors.Wrapf(err, "mount %s", strings.Join(m.path, "."))
	}
	m.loaded = loaded
	return loaded, nil
}

// find looks for a pattern match in the table and then in the mounts
// that cover path.
func (rs *routes) find(ctx context.Context, r *http.Request, path string) (route, map[string]string, bool, error) {
	if rt, params, ok := rs.table.lookup(r, path); ok {
		return rt, params, true, nil
	}
	if r.Method == http.MethodHead {
		get := r.Clone(ctx)
		get.Method = http.MethodGet
		if rt, params, ok := rs.table.lookup(get, path); ok {
			return rt, params, true, nil
		}
	}
	for _, m := range rs.mounts {
		if !m.covers(path) {
			continue
		}
		sub, err := m.load(ctx)
		if err != nil {
			return route{}, nil, false, err
		}
		rt, params, ok, err := sub.find(ctx, r, path)
		if err != nil || ok {
			return rt, params, ok, err
		}
	}
	return route{}, nil, false, nil
}
