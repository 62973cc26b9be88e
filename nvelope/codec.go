package nvelope

import (
	"net/http"
	"strconv"

	"github.com/muir/nrpc"
)

// Codec is one wire protocol.  Implementations must be safe for
// concurrent use.
type Codec interface {
	// Name is used for metrics and logs.
	Name() string

	// DecodeRequest reads the procedure input from r.  schema is the
	// procedure's input schema and may be nil.  A request without a
	// body decodes to nil.
	DecodeRequest(r *http.Request, schema nrpc.Schema) (any, error)

	// EncodeResponse serializes the output of a successful call.
	// Errors that wrap ErrUnsupportedContentType mean that nothing
	// acceptable to the client could be produced.
	EncodeResponse(r *http.Request, output any) (Encoded, error)

	// EncodeError serializes an error response.  It does not fail.
	EncodeError(r *http.Request, e *nrpc.Error) Encoded
}

// Encoded is a serialized response body.
type Encoded struct {
	ContentType string
	Body        []byte
	// Status overrides the default status when non-zero.
	Status int
	Header http.Header
}

// Write sends an Encoded body with the given status.  If the Encoded
// has its own Status, that wins.
func (e Encoded) Write(w http.ResponseWriter, status int) error {
	if e.Status != 0 {
		status = e.Status
	}
	h := w.Header()
	for k, v := range e.Header {
		h[k] = v
	}
	if e.ContentType != "" {
		h.Set("Content-Type", e.ContentType)
	}
	if status != http.StatusNoContent {
		h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	}
	w.WriteHeader(status)
	if len(e.Body) == 0 {
		return nil
	}
	_, err := w.Write(e.Body)
	return err
}

// File is an uploaded or downloaded file.  OpenAPI multipart uploads
// produce *File values and a *File output is sent as a raw body.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f *File) contentType() string {
	if f.ContentType == "" {
		return "application/octet-stream"
	}
	return f.ContentType
}
