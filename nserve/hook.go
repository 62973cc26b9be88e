package nserve

import (
	"sync"
	"sync/atomic"
)

var hookCounter int32

type hookOrder string

const (
	ForwardOrder hookOrder = "forward"
	ReverseOrder hookOrder = "reverse"
)

type hookID int32

// Hook is the handle for a list of callbacks to invoke.
type Hook struct {
	ID            hookID
	lock          sync.Mutex
	Name          string
	Order         hookOrder
	InvokeOnError []*Hook
	ContinuePast  bool
	ErrorCombiner func(first, second error) error
}

// Copy makes a copy of a hook with a new ID.  Callbacks registered
// for h are not registered for the copy.
func (h *Hook) Copy() *Hook {
	h.lock.Lock()
	defer h.lock.Unlock()
	return &Hook{
		ID:            hookID(atomic.AddInt32(&hookCounter, 1)),
		Name:          h.Name,
		Order:         h.Order,
		InvokeOnError: append([]*Hook(nil), h.InvokeOnError...),
		ContinuePast:  h.ContinuePast,
		ErrorCombiner: h.ErrorCombiner,
	}
}

// NewHook creates a new category of callbacks.
func NewHook(name string, order hookOrder) *Hook {
	return &Hook{
		ID:    hookID(atomic.AddInt32(&hookCounter, 1)),
		Name:  name,
		Order: order,
	}
}

// OnError adds a hook to invoke when this hook returns an error.
// Call with nil to clear the list.
func (h *Hook) OnError(e *Hook) *Hook {
	h.lock.Lock()
	defer h.lock.Unlock()
	if e == nil {
		h.InvokeOnError = nil
	} else {
		h.InvokeOnError = append(h.InvokeOnError, e)
	}
	return h
}

// SetErrorCombiner sets a function that combines two errors into one
// when more than one callback fails.
func (h *Hook) SetErrorCombiner(f func(first, second error) error) *Hook {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.ErrorCombiner = f
	return h
}

// ContinuePastError sets if callbacks should continue to be invoked
// after one has failed.
func (h *Hook) ContinuePastError(b bool) *Hook {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.ContinuePast = b
	return h
}

func (h *Hook) String() string {
	return "hook " + h.Name
}

// Start brings up the parts of an App in the order they registered.
// If a start callback fails, Stop runs.
var Start = NewHook("start", ForwardOrder)

// Stop brings the parts down in the reverse order.  Every stop
// callback runs even if some fail.  Shutdown runs after Stop fails.
var Stop = NewHook("stop", ReverseOrder).ContinuePastError(true)

// Shutdown cancels the App's context and releases what remains.
var Shutdown = NewHook("shutdown", ReverseOrder).ContinuePastError(true)

func init() {
	Stop.OnError(Shutdown)
	Start.OnError(Stop)
}
