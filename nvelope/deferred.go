package nvelope

import (
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// DeferredWriter buffers a response so that it can be discarded and
// replaced.  The dispatcher writes success responses into it and, if
// anything goes wrong before Flush, resets it and writes an error
// response instead.
//
// Once flushed, the DeferredWriter passes writes straight through to
// the underlying http.ResponseWriter.
type DeferredWriter struct {
	base        http.ResponseWriter
	passthrough bool
	header      http.Header
	resetHeader http.Header
	buffer      []byte
	status      int
}

var _ http.ResponseWriter = &DeferredWriter{}

// NewDeferredWriter wraps w.  Headers already set on w are kept.
func NewDeferredWriter(w http.ResponseWriter) *DeferredWriter {
	return &DeferredWriter{
		base:        w,
		header:      w.Header().Clone(),
		resetHeader: w.Header().Clone(),
		buffer:      make([]byte, 0, 4*1024),
	}
}

// Header returns the buffered header until the response has been
// flushed.
func (w *DeferredWriter) Header() http.Header {
	if w.passthrough {
		return w.base.Header()
	}
	return w.header
}

func (w *DeferredWriter) Write(b []byte) (int, error) {
	if w.passthrough {
		return w.base.Write(b)
	}
	w.buffer = append(w.buffer, b...)
	return len(b), nil
}

// WriteHeader records the status code.  It is not sent until Flush.
func (w *DeferredWriter) WriteHeader(statusCode int) {
	if w.passthrough {
		w.base.WriteHeader(statusCode)
		return
	}
	w.status = statusCode
}

// Status is the status that has been set so far, 0 if none.
func (w *DeferredWriter) Status() int {
	return w.status
}

// Body returns the buffered body.
func (w *DeferredWriter) Body() []byte {
	return w.buffer
}

// Reset discards everything written so far, including header changes
// made since the last PreserveHeader.  Reset fails once the response has
// been flushed.
func (w *DeferredWriter) Reset() error {
	if w.passthrough {
		return errors.New("nvelope: cannot reset a response that has been sent")
	}
	w.buffer = w.buffer[:0]
	w.status = 0
	w.header = w.resetHeader.Clone()
	return nil
}

// PreserveHeader makes the current header the state that Reset returns
// to.
func (w *DeferredWriter) PreserveHeader() {
	w.resetHeader = w.header.Clone()
}

// Done reports whether the response has been flushed.
func (w *DeferredWriter) Done() bool {
	return w.passthrough
}

// UnderlyingWriter returns the wrapped http.ResponseWriter.
func (w *DeferredWriter) UnderlyingWriter() http.ResponseWriter {
	return w.base
}

// Flush sends the header, status, and buffered body.  A status of
// 200 is used if none was set.  Flushing twice is a no-op.
func (w *DeferredWriter) Flush() error {
	if w.passthrough {
		return nil
	}
	w.passthrough = true
	dst := w.base.Header()
	for k := range dst {
		if _, ok := w.header[k]; !ok {
			delete(dst, k)
		}
	}
	for k, v := range w.header {
		dst[k] = v
	}
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	w.base.WriteHeader(status)
	remaining := w.buffer
	for len(remaining) > 0 {
		n, err := w.base.Write(remaining)
		remaining = remaining[n:]
		if err != nil {
			// nolint:errorlint
			if err == io.ErrShortWrite && n > 0 {
				continue
			}
			return errors.Wrap(err, "write response")
		}
	}
	return nil
}
