package nrpc_test

import (
	"fmt"
	"testing"

	"github.com/muir/nrpc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	e := nrpc.NewError(nrpc.NotFound)
	assert.Equal(t, nrpc.NotFound, e.Code())
	assert.Equal(t, 404, e.Status())
	assert.Equal(t, "Not found", e.Message())
	assert.Equal(t, "NOT_FOUND (404): Not found", e.Error())

	e = nrpc.NewError(nrpc.BadRequest,
		nrpc.WithMessage("bad value"),
		nrpc.WithIssues(nrpc.Issue{Path: []any{"a", 0}, Message: "nope"}),
		nrpc.WithData(map[string]any{"hint": "x"}))
	assert.Equal(t, 400, e.Status())
	assert.Equal(t, "bad value", e.Message())
	require.Len(t, e.Issues(), 1)
	assert.Equal(t, []any{"a", 0}, e.Issues()[0].Path)
	assert.Equal(t, map[string]any{"hint": "x"}, e.Data())

	e = nrpc.NewError(nrpc.Code("TEAPOT"), nrpc.WithStatus(418))
	assert.Equal(t, 418, e.Status())
	assert.Equal(t, "Teapot", e.Message())
}

func TestNewErrorPanics(t *testing.T) {
	assert.Panics(t, func() { nrpc.NewError(nrpc.BadRequest, nrpc.WithStatus(302)) }, "3xx")
	assert.Panics(t, func() { nrpc.NewError(nrpc.BadRequest, nrpc.WithStatus(600)) }, "600")
	assert.Panics(t, func() { nrpc.NewError(nrpc.Code("MYSTERY")) }, "unknown code")
	assert.NotPanics(t, func() { nrpc.NewError(nrpc.GatewayTimeout, nrpc.WithStatus(599)) }, "599")
}

func TestCodeStatus(t *testing.T) {
	cases := map[nrpc.Code]int{
		nrpc.BadRequest:          400,
		nrpc.Unauthorized:        401,
		nrpc.NotAcceptable:       406,
		nrpc.ClientClosedRequest: 499,
		nrpc.InternalServerError: 500,
		nrpc.GatewayTimeout:      504,
	}
	for code, status := range cases {
		assert.Equal(t, status, code.Status(), string(code))
		assert.True(t, code.Valid(), string(code))
	}
	assert.False(t, nrpc.Code("NOPE").Valid())
}

func TestToError(t *testing.T) {
	assert.Nil(t, nrpc.ToError(nil))

	plain := fmt.Errorf("disk on fire")
	e := nrpc.ToError(plain)
	assert.Equal(t, nrpc.InternalServerError, e.Code())
	assert.Equal(t, "Internal server error", e.Message())
	assert.ErrorIs(t, e, plain, "cause preserved")

	orig := nrpc.NewError(nrpc.Conflict)
	assert.Same(t, orig, nrpc.ToError(errors.Wrap(orig, "context")), "found through wrapping")
	assert.True(t, nrpc.IsCode(errors.Wrap(orig, "context"), nrpc.Conflict))
	assert.False(t, nrpc.IsCode(plain, nrpc.Conflict))
}

func TestErrorJSON(t *testing.T) {
	e := nrpc.NewError(nrpc.Forbidden, nrpc.WithCause(fmt.Errorf("secret")))
	j := e.JSON()
	assert.Equal(t, nrpc.ErrorJSON{Code: nrpc.Forbidden, Status: 403, Message: "Forbidden"}, j, "cause omitted")

	back := nrpc.ErrorFromJSON(j)
	assert.Equal(t, nrpc.Forbidden, back.Code())
	assert.Equal(t, 403, back.Status())

	bad := nrpc.ErrorFromJSON(nrpc.ErrorJSON{Code: nrpc.BadRequest, Status: 200, Message: "x"})
	assert.Equal(t, nrpc.InternalServerError, bad.Code(), "invalid status is not trusted")
}
