package nvelope

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/muir/nject"
	"github.com/muir/nrpc"
	"github.com/pkg/errors"
)

// LogFlusher is implemented by loggers that buffer.  Loggers are
// flushed after a panic is logged.
type LogFlusher interface {
	Flush()
}

// PanicError is the cause of the error that a recovered panic
// becomes.
type PanicError struct {
	Value any
	Stack string
}

func (pe *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", pe.Value)
}

// SetErrorOnPanic must be deferred.  A panic becomes an
// INTERNAL_SERVER_ERROR whose cause is a *PanicError.  The client
// sees only the code.
func SetErrorOnPanic(ep *error, log BasicLogger) {
	r := recover()
	if r == nil {
		return
	}
	pe := &PanicError{
		Value: r,
		Stack: string(debug.Stack()),
	}
	*ep = nrpc.NewError(nrpc.InternalServerError, nrpc.WithCause(errors.WithStack(pe)))
	log.Error("panic", map[string]interface{}{
		"value": fmt.Sprint(r),
		"stack": pe.Stack,
	})
	if flusher, ok := log.(LogFlusher); ok {
		flusher.Flush()
	}
}

// CatchPanic recovers panics from everything after it in a handler
// chain.  It belongs between the response encoder and the endpoint.
var CatchPanic = nject.Provide("catch-panic", catchPanic)

func catchPanic(inner func() (Response, error), r *http.Request, log BasicLogger) (out Response, err error) {
	defer SetErrorOnPanic(&err, WithFields(log, map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	}))
	return inner()
}

// RecoverInterface returns the value given to panic, or nil if err
// did not come from SetErrorOnPanic.
func RecoverInterface(err error) any {
	if pe, ok := asPanic(err); ok {
		return pe.Value
	}
	return nil
}

// RecoverStack returns the stack of the recovered panic, or "" if err
// did not come from SetErrorOnPanic.
func RecoverStack(err error) string {
	if pe, ok := asPanic(err); ok {
		return pe.Stack
	}
	return ""
}

func asPanic(err error) (*PanicError, bool) {
	var pe *PanicError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
