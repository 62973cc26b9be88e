package nvelope

import (
	"net/http"

	"github.com/muir/nrpc"
	"github.com/pkg/errors"
)

// ErrUnsupportedContentType is the cause of decode and encode failures
// that come from content types that a codec cannot handle, either in
// the request body or in the Accept header.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// UnsupportedContentType annotates ErrUnsupportedContentType with the
// offending content type.
func UnsupportedContentType(contentType string) error {
	return errors.Wrapf(ErrUnsupportedContentType, "%q", contentType)
}

// IsUnsupportedContentType reports whether err was caused by an
// unsupported content type.
func IsUnsupportedContentType(err error) bool {
	return errors.Is(err, ErrUnsupportedContentType)
}

// DecodeFailure converts a request decoding error into the error that
// is sent to the client.  Bodies over the size limit are
// PAYLOAD_TOO_LARGE, unsupported content types are NOT_ACCEPTABLE, and
// everything else is BAD_REQUEST.
func DecodeFailure(err error) *nrpc.Error {
	var e *nrpc.Error
	if errors.As(err, &e) {
		return e
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return nrpc.NewError(nrpc.PayloadTooLarge, nrpc.WithCause(err))
	case IsUnsupportedContentType(err):
		return nrpc.NewError(nrpc.NotAcceptable, nrpc.WithCause(err))
	default:
		return nrpc.NewError(nrpc.BadRequest, nrpc.WithMessage("Malformed request"), nrpc.WithCause(err))
	}
}

// EncodeFailure converts a response encoding error into the error that
// is sent to the client.  Content negotiation failures are
// NOT_ACCEPTABLE.  Anything else means the output could not be
// represented and is INTERNAL_SERVER_ERROR.
func EncodeFailure(err error) *nrpc.Error {
	if IsUnsupportedContentType(err) {
		return nrpc.NewError(nrpc.NotAcceptable, nrpc.WithCause(err))
	}
	return nrpc.NewError(nrpc.InternalServerError, nrpc.WithCause(err))
}
