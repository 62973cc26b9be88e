package npoint_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/stretchr/testify/require"
)

func constant(v any) nrpc.Handler {
	return func(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
		return v, nil
	}
}

func echo(_ context.Context, input any, _ nrpc.Context, _ nrpc.Meta) (any, error) {
	return input, nil
}

func failWith(code nrpc.Code) nrpc.Handler {
	return func(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
		return nil, nrpc.NewError(code, nrpc.WithMessage("nope"))
	}
}

// testRouter has one procedure of each routing kind.
func testRouter() nrpc.Router {
	b := nrpc.NewBuilder()
	return nrpc.Router{
		"users": nrpc.Router{
			"get":  b.Route(nrpc.RouteOptions{Method: "POST", Path: "/users/{id}"}).Handler(echo),
			"list": b.Route(nrpc.RouteOptions{Method: "GET", Path: "/users"}).Handler(constant([]any{"ann", "bob"})),
			"me":   b.Route(nrpc.RouteOptions{Method: "GET", Path: "/users/me"}).Handler(constant("me")),
			"find": b.Route(nrpc.RouteOptions{Method: "GET", Path: "/users/{id}"}).Handler(echo),
		},
		"ping":  b.Handler(constant("pong")),
		"echo":  b.Handler(echo),
		"deny":  b.Handler(failWith(nrpc.Forbidden)),
		"panic": b.Handler(func(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) { panic("oops") }),
	}
}

type result struct {
	status int
	header http.Header
	body   string
}

func do(h http.Handler, req *http.Request) result {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	b, _ := io.ReadAll(w.Result().Body)
	return result{
		status: w.Code,
		header: w.Header(),
		body:   string(b),
	}
}

func request(method, target, contentType, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

// rpcRequest is a request that uses the internal protocol.
func rpcRequest(t *testing.T, path string, input any) *http.Request {
	enc, err := nvelope.Serialize(input)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, strings.NewReader(string(enc.Body)))
	req.Header.Set("Content-Type", enc.ContentType)
	req.Header.Set(nvelope.ProtocolHeader, nvelope.ProtocolName)
	return req
}

func rpcDecode(t *testing.T, res result) any {
	v, err := nvelope.Deserialize(res.header.Get("Content-Type"), []byte(res.body))
	require.NoError(t, err, res.body)
	return v
}

func errorCode(t *testing.T, res result) string {
	var j nrpc.ErrorJSON
	require.NoError(t, json.Unmarshal([]byte(res.body), &j), res.body)
	return string(j.Code)
}
