package nvelope

import (
	"net/http"

	"github.com/muir/nject"
	"github.com/muir/nrpc"
)

// InjectWriter injects a DeferredWriter
var InjectWriter = nject.Provide("writer", NewDeferredWriter)

// Response is an empty interface that is the expected return value
// from endpoints.
type Response interface{}

// ErrorReporter is called for every error response after the error is
// normalized.  It is not called for successful responses.
type ErrorReporter func(r *http.Request, e *nrpc.Error)

type encoderOptions struct {
	report ErrorReporter
}

// ResponseEncoderFuncArg are options for MakeResponseEncoder
type ResponseEncoderFuncArg func(*encoderOptions)

// WithErrorReporter adds a callback for error responses.
func WithErrorReporter(report ErrorReporter) ResponseEncoderFuncArg {
	return func(o *encoderOptions) {
		o.report = report
	}
}

// EncodeResponse is a response encoder manufactured by
// MakeResponseEncoder with default options.
var EncodeResponse = MakeResponseEncoder("default")

// MakeResponseEncoder generates an nject Provider to encode responses
// with the Codec that was selected for the request.
//
// The generated provider is a wrapper that invokes the rest of the
// handler injection chain and expects to receive as return values
// a Response and an error.  Errors are converted with nrpc.ToError
// exactly once and sent with their status.  Server errors (5xx) are
// logged.  If the response cannot be encoded, that failure is sent
// instead: NOT_ACCEPTABLE when content negotiation failed and
// INTERNAL_SERVER_ERROR otherwise.
func MakeResponseEncoder(
	name string,
	encoderFuncArgs ...ResponseEncoderFuncArg,
) nject.Provider {
	var o encoderOptions
	for _, fa := range encoderFuncArgs {
		fa(&o)
	}
	return nject.Provide("encode-"+name,
		func(
			inner func() (Response, error),
			w *DeferredWriter,
			codec Codec,
			log BasicLogger,
			r *http.Request,
		) {
			model, err := inner()
			if w.Done() {
				return
			}
			var enc Encoded
			status := http.StatusOK
			if err == nil {
				enc, err = codec.EncodeResponse(r, model)
				if err != nil {
					err = EncodeFailure(err)
				}
			}
			if err != nil {
				e := nrpc.ToError(err)
				if e.Status() >= 500 {
					log.Error("procedure failed", map[string]interface{}{
						"error":  err.Error(),
						"code":   string(e.Code()),
						"method": r.Method,
						"uri":    r.URL.String(),
					})
				}
				if o.report != nil {
					o.report(r, e)
				}
				if resetErr := w.Reset(); resetErr != nil {
					log.Warn("Cannot reset response for error", map[string]interface{}{
						"error": resetErr.Error(),
					})
				}
				enc = codec.EncodeError(r, e)
				status = e.Status()
			}
			if err := enc.Write(w, status); err != nil {
				log.Warn("Cannot buffer response", map[string]interface{}{
					"error": err.Error(),
				})
				return
			}
			if err := w.Flush(); err != nil {
				log.Warn("Cannot write response",
					map[string]interface{}{
						"error":  err.Error(),
						"method": r.Method,
						"uri":    r.URL.String(),
					})
			}
		})
}
