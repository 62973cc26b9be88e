package nvelope_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"

	"github.com/muir/nject"
	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
)

// handlerFor binds a minimal dispatch chain around endpoint.
func handlerFor(codec nvelope.Codec, endpoint interface{}) http.HandlerFunc {
	var h http.HandlerFunc
	nject.Sequence("test",
		nvelope.NoLogger,
		nject.Provide("codec", func() nvelope.Codec { return codec }),
		nvelope.InjectWriter,
		nvelope.EncodeResponse,
		nvelope.CatchPanic,
		endpoint,
	).MustBind(&h, nil)
	return h
}

func handlerForEncoder(encoder nject.Provider, endpoint interface{}) http.HandlerFunc {
	var h http.HandlerFunc
	nject.Sequence("test",
		nvelope.NoLogger,
		nject.Provide("codec", func() nvelope.Codec { return nvelope.NewOpenAPI() }),
		nvelope.InjectWriter,
		encoder,
		nvelope.CatchPanic,
		endpoint,
	).MustBind(&h, nil)
	return h
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

type widget struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags,omitempty"`
	Ready *bool    `json:"ready,omitempty"`
}

// widgetSchema accepts anything and coerces form values toward widget.
type widgetSchema struct{}

func (widgetSchema) Validate(_ context.Context, v any) (nrpc.ValidationResult, error) {
	return nrpc.ValidationResult{Value: v}, nil
}

func (widgetSchema) Coerce(v any) any {
	return nvelope.Coerce(reflect.TypeOf(widget{}), v)
}
