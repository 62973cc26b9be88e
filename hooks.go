package nrpc

import (
	"context"
	"sync"
)

// SuccessHook is invoked with the output of a successful execution.
type SuccessHook func(ctx context.Context, output any) error

// ErrorHook is invoked with the error of a failed execution.
type ErrorHook func(ctx context.Context, err error) error

// FinishHook is invoked once per execution, after the success or error
// hooks.  Exactly one of output and err is meaningful.
type FinishHook func(ctx context.Context, output any, err error) error

// Hooks is a registry of lifecycle callbacks.  Hooks run in
// first-in-last-out order: the most recently registered hook runs first.
// Hooks is thread-safe and the zero value is ready to use.
type Hooks struct {
	lock      sync.Mutex
	onSuccess []*hookEntry[SuccessHook]
	onError   []*hookEntry[ErrorHook]
	onFinish  []*hookEntry[FinishHook]
}

type hookEntry[F any] struct {
	fn      F
	removed bool
}

// OnSuccess registers fn.  The returned function unregisters it and may
// be called any number of times.
func (h *Hooks) OnSuccess(fn SuccessHook) func() {
	return register(h, &h.onSuccess, fn)
}

// OnError registers fn.  The returned function unregisters it.
func (h *Hooks) OnError(fn ErrorHook) func() {
	return register(h, &h.onError, fn)
}

// OnFinish registers fn.  The returned function unregisters it.
func (h *Hooks) OnFinish(fn FinishHook) func() {
	return register(h, &h.onFinish, fn)
}

func register[F any](h *Hooks, list *[]*hookEntry[F], fn F) func() {
	entry := &hookEntry[F]{fn: fn}
	h.lock.Lock()
	*list = append(*list, entry)
	h.lock.Unlock()
	return func() {
		h.lock.Lock()
		defer h.lock.Unlock()
		if entry.removed {
			return
		}
		entry.removed = true
		for i, e := range *list {
			if e == entry {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				break
			}
		}
	}
}

// snapshot returns the live hooks in invocation (reverse registration)
// order.
func snapshot[F any](h *Hooks, lp *[]*hookEntry[F]) []*hookEntry[F] {
	h.lock.Lock()
	defer h.lock.Unlock()
	list := *lp
	out := make([]*hookEntry[F], 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
	}
	return out
}

func (h *Hooks) live(removed *bool) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	return !*removed
}

// ExecuteWithHooks runs execute and then the hooks registered in hooks.
//
// After a successful execution the success hooks run.  If execute (or a
// success hook) fails, the error hooks run, each receiving that error.
// The finish hooks run last, exactly once, and receive the error that is
// current when they run.  Every hook in a phase runs even if an earlier
// one failed.  The error returned is the last one produced.
//
// A nil hooks is allowed.
func ExecuteWithHooks(ctx context.Context, hooks *Hooks, execute func(ctx context.Context) (any, error)) (any, error) {
	output, err := execute(ctx)
	if hooks == nil {
		return output, err
	}

	if err == nil {
		for _, e := range snapshot(hooks, &hooks.onSuccess) {
			if !hooks.live(&e.removed) {
				continue
			}
			if hookErr := callSuccess(ctx, e.fn, output); hookErr != nil {
				err = hookErr
			}
		}
	}

	if err != nil {
		original := err
		for _, e := range snapshot(hooks, &hooks.onError) {
			if !hooks.live(&e.removed) {
				continue
			}
			if hookErr := callError(ctx, e.fn, original); hookErr != nil {
				err = hookErr
			}
		}
	}

	for _, e := range snapshot(hooks, &hooks.onFinish) {
		if !hooks.live(&e.removed) {
			continue
		}
		var out any
		if err == nil {
			out = output
		}
		if hookErr := callFinish(ctx, e.fn, out, err); hookErr != nil {
			err = hookErr
		}
	}

	if err != nil {
		return nil, err
	}
	return output, nil
}

func callSuccess(ctx context.Context, fn SuccessHook, output any) (err error) {
	defer recoverHook(&err)
	return fn(ctx, output)
}

func callError(ctx context.Context, fn ErrorHook, e error) (err error) {
	defer recoverHook(&err)
	return fn(ctx, e)
}

func callFinish(ctx context.Context, fn FinishHook, output any, e error) (err error) {
	defer recoverHook(&err)
	return fn(ctx, output, e)
}

// recoverHook turns a panicking hook into an error so that the rest of
// the phase still runs.
func recoverHook(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = NewError(InternalServerError, WithCause(e))
			return
		}
		*err = NewError(InternalServerError, WithMessagef("hook panic: %v", r))
	}
}
