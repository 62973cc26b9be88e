package nvelope_test

import (
	"net/http"
	"testing"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestDecodeFailure(t *testing.T) {
	assert.Equal(t, nrpc.BadRequest, nvelope.DecodeFailure(errors.New("x")).Code(), "plain")
	assert.Equal(t, "Malformed request", nvelope.DecodeFailure(errors.New("x")).Message())
	assert.Equal(t, nrpc.NotAcceptable,
		nvelope.DecodeFailure(errors.Wrap(nvelope.UnsupportedContentType("a/b"), "o")).Code(), "wrapped content type")
	assert.Equal(t, nrpc.PayloadTooLarge,
		nvelope.DecodeFailure(errors.Wrap(&http.MaxBytesError{Limit: 10}, "read")).Code(), "too large")
	assert.Equal(t, nrpc.Unauthorized,
		nvelope.DecodeFailure(nrpc.NewError(nrpc.Unauthorized)).Code(), "already an error")
}

func TestEncodeFailure(t *testing.T) {
	assert.Equal(t, nrpc.NotAcceptable, nvelope.EncodeFailure(nvelope.UnsupportedContentType("text/html")).Code())
	assert.Equal(t, nrpc.InternalServerError, nvelope.EncodeFailure(errors.New("x")).Code())
	assert.Contains(t, nvelope.UnsupportedContentType("text/html").Error(), `"text/html"`)
}
