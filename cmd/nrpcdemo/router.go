package main

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/muir/nrpc/schema/jsonschema"
	"github.com/muir/nrpc/schema/structschema"
)

// Planet is the demo's one resource.
type Planet struct {
	Name  string    `json:"name" nrpc:"required"`
	Moons int       `json:"moons"`
	Found time.Time `json:"found,omitempty"`
}

type planetName struct {
	Name string `json:"name" nrpc:"required"`
}

type planetStore struct {
	mu      sync.RWMutex
	planets map[string]Planet
	started time.Time
}

func newStore() *planetStore {
	return &planetStore{
		planets: map[string]Planet{
			"earth": {Name: "Earth", Moons: 1},
			"mars":  {Name: "Mars", Moons: 2, Found: time.Date(1610, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		started: time.Now(),
	}
}

func (s *planetStore) list(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Planet, 0, len(s.planets))
	for _, p := range s.planets {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (s *planetStore) find(_ context.Context, input any, _ nrpc.Context, _ nrpc.Meta) (any, error) {
	name := input.(planetName).Name
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.planets[strings.ToLower(name)]
	if !ok {
		return nil, nrpc.NewError(nrpc.NotFound, nrpc.WithMessagef("no planet named %s", name))
	}
	return p, nil
}

func (s *planetStore) create(_ context.Context, input any, c nrpc.Context, _ nrpc.Meta) (any, error) {
	p := input.(Planet)
	key := strings.ToLower(p.Name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.planets[key]; ok {
		return nil, nrpc.NewError(nrpc.Conflict,
			nrpc.WithMessagef("%s already exists", p.Name),
			nrpc.WithData(map[string]any{"by": c["user"]}))
	}
	s.planets[key] = p
	return p, nil
}

func (s *planetStore) stats(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"planets": len(s.planets),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}, nil
}

var addSchema = jsonschema.MustNew(`{
	"type": "object",
	"required": ["a", "b"],
	"properties": {
		"a": {"type": "number"},
		"b": {"type": "number"}
	}
}`)

func add(_ context.Context, input any, _ nrpc.Context, _ nrpc.Meta) (any, error) {
	m := input.(map[string]any)
	return map[string]any{"sum": toFloat(m["a"]) + toFloat(m["b"])}, nil
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

func upload(_ context.Context, input any, _ nrpc.Context, _ nrpc.Meta) (any, error) {
	f, ok := input.(*nvelope.File)
	if !ok {
		return nil, nrpc.NewError(nrpc.BadRequest, nrpc.WithMessage("expected a file"))
	}
	return map[string]any{"name": f.Name, "type": f.ContentType, "size": len(f.Data)}, nil
}

// logCalls logs every call at debug level.
func logCalls(log nvelope.BasicLogger) nrpc.Middleware {
	return func(ctx context.Context, input any, c nrpc.Context, meta nrpc.Meta, next nrpc.Next) (nrpc.Result, error) {
		start := time.Now()
		res, err := next(ctx, nil)
		fields := map[string]interface{}{
			"path":     strings.Join(meta.Path, "."),
			"duration": time.Since(start).String(),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.Debug("call", fields)
		return res, err
	}
}

// requireUser rejects calls without a token and puts the caller's
// name in the context.
func requireUser(ctx context.Context, _ any, c nrpc.Context, _ nrpc.Meta, next nrpc.Next) (nrpc.Result, error) {
	token, _ := c["token"].(string)
	if token == "" {
		return nrpc.Result{}, nrpc.NewError(nrpc.Unauthorized, nrpc.WithMessage("a bearer token is required"))
	}
	return next(ctx, nrpc.Context{"user": token})
}

func newRouter(store *planetStore, log nvelope.BasicLogger) nrpc.Router {
	pub := nrpc.NewBuilder().Use(logCalls(log))
	authed := pub.Use(requireUser)
	return nrpc.Router{
		"planet": pub.Prefix("/planets").Tag("planets").Router(nrpc.Router{
			"list": pub.Route(nrpc.RouteOptions{Method: "GET", Path: "/", Summary: "List planets"}).
				Handler(store.list),
			"find": pub.Route(nrpc.RouteOptions{Method: "GET", Path: "/{name}", Summary: "Find a planet"}).
				Input(structschema.For[planetName]()).
				Handler(store.find),
			"create": authed.Route(nrpc.RouteOptions{Method: "POST", Path: "/", Summary: "Add a planet"}).
				Input(structschema.For[Planet](), Planet{Name: "Venus"}).
				Output(structschema.For[Planet]()).
				Handler(store.create),
		}),
		"math": nrpc.Router{
			"add": pub.Route(nrpc.RouteOptions{Method: "GET", Path: "/math/add"}).
				Input(addSchema).
				Handler(add),
		},
		"files": nrpc.Router{
			"upload": pub.Route(nrpc.RouteOptions{Method: "PUT", Path: "/files"}).Handler(upload),
		},
		"time": nrpc.Router{
			"now": pub.Handler(func(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
				return time.Now().UTC(), nil
			}),
		},
		"admin": pub.Prefix("/admin").Lazy(nrpc.Memoize(nrpc.LazyFunc(func(context.Context) (any, error) {
			return nrpc.Router{
				"stats": pub.Route(nrpc.RouteOptions{Method: "GET", Path: "/stats"}).Handler(store.stats),
			}, nil
		}))),
	}
}
