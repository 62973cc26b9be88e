package nserve

import (
	"context"
	"sync"

	"github.com/muir/nject"
)

// App starts and stops the parts of a server.  Parts are created by
// the providers given to CreateApp.  They register callbacks for the
// Start, Stop, and Shutdown hooks with On.  Callbacks are nject
// chains: they may ask for *App, context.Context, and anything that
// was provided when the App was created.
type App struct {
	Name    string
	lock    sync.Mutex // held when adding hooks
	runLock sync.Mutex // held when running hooks
	hooks   map[hookID][]nject.Provider
	ctx     context.Context
	shared  *nject.Collection
}

// CreateApp invokes providers with nject.Run.  The context they
// receive is cancelled by the Shutdown hook.
//
// Values that providers return are not kept.  Parts that need to be
// reachable from hook callbacks should register those callbacks from
// their constructors.
func CreateApp(name string, providers ...interface{}) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Name:  name,
		hooks: make(map[hookID][]nject.Provider),
		ctx:   ctx,
	}
	app.shared = nject.Sequence("app-"+name,
		nject.Provide("app", func() *App { return app }),
		nject.Provide("app-context", func() context.Context { return app.ctx }),
	)
	app.hooks[Shutdown.ID] = append(app.hooks[Shutdown.ID],
		nject.Provide("app-cancel", func() { cancel() }))
	err := nject.Run(name, app.shared, nject.Sequence("app-providers", providers...))
	return app, err
}

// Context is cancelled when the Shutdown hook runs.
func (app *App) Context() context.Context {
	return app.ctx
}

// On registers a callback to be invoked when h is done.  Callbacks
// may register more callbacks: a start callback usually registers a
// stop callback.
func (app *App) On(h *Hook, providers ...interface{}) {
	app.lock.Lock()
	defer app.lock.Unlock()
	app.hooks[h.ID] = append(app.hooks[h.ID], nject.Sequence("on-"+h.Name, providers...))
}

// Do invokes the callbacks for a hook.  Without an error combiner
// only the first error is returned.  If there was an error, the hooks
// in h's InvokeOnError run next.
func (app *App) Do(h *Hook) error {
	app.runLock.Lock()
	defer app.runLock.Unlock()
	return app.do(h)
}

func (app *App) do(h *Hook) error {
	h.lock.Lock()
	combine := h.ErrorCombiner
	onError := append([]*Hook(nil), h.InvokeOnError...)
	continuePast := h.ContinuePast
	order := h.Order
	h.lock.Unlock()
	if combine == nil {
		combine = func(first, _ error) error { return first }
	}
	merge := func(e1, e2 error) error {
		switch {
		case e1 == nil:
			return e2
		case e2 == nil:
			return e1
		default:
			return combine(e1, e2)
		}
	}

	app.lock.Lock()
	chains := append([]nject.Provider(nil), app.hooks[h.ID]...)
	app.lock.Unlock()
	if order == ReverseOrder {
		for i, j := 0, len(chains)-1; i < j; i, j = i+1, j-1 {
			chains[i], chains[j] = chains[j], chains[i]
		}
	}

	var err error
	for _, chain := range chains {
		err = merge(err, nject.Run("hook-"+h.Name, app.shared, chain))
		if err != nil && !continuePast {
			break
		}
	}
	if err != nil {
		for _, next := range onError {
			err = merge(err, app.do(next))
		}
	}
	return err
}
