package npoint

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/muir/nject"
	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/prometheus/client_golang/prometheus"
)

// RequestIDHeader carries the request id.  An incoming id is reused,
// otherwise one is generated.  Either way it is sent back.
const RequestIDHeader = "X-Request-ID"

// Handler serves a router over HTTP.  Requests that carry
// nvelope.ProtocolHeader use the internal protocol and are routed by
// path segments: /planet/find calls the procedure at
// router["planet"]["find"].  All other requests use the OpenAPI codec
// and are routed by the method and path template of procedure
// contracts, then by path segments.
//
// A request moves through routing, decoding, the call, and encoding.
// A failure at any point ends it with an error response written with
// the request's codec.
type Handler struct {
	root         any
	prefix       string
	serverless   bool
	log          nvelope.BasicLogger
	contextFn    func(*http.Request) (nrpc.Context, error)
	onRequest    []func(*http.Request, *nrpc.Hooks)
	maxBodyBytes int64
	registerer   prometheus.Registerer
	callerOpts   []nrpc.CallerOpt
	middleware   []nvelope.Middleware
	rpc          nvelope.Codec
	openapi      nvelope.Codec
	debugChain   bool

	routes  *routes
	metrics *metrics
	serve   func(http.ResponseWriter, *http.Request)
}

var _ http.Handler = &Handler{}

// NewHandler creates a Handler for router, which is an nrpc.Router,
// a map[string]any, or an nrpc.Lazy.  NewHandler panics if two
// procedures claim the same method and path or if the metrics
// cannot be registered: both are programming mistakes.
func NewHandler(router any, opts ...HandlerOpt) *Handler {
	h := &Handler{
		root:    router,
		log:     nvelope.NoLogger(),
		rpc:     nvelope.RPC{},
		openapi: nvelope.NewOpenAPI(),
	}
	for _, opt := range opts {
		opt(h)
	}
	var err error
	h.routes, err = buildRoutes(nil, router, h.serverless)
	if err != nil {
		panic(fmt.Sprintf("npoint: %s", err))
	}
	providers := []interface{}{
		nject.Provide("request-logger", h.requestLogger),
	}
	if h.debugChain {
		providers = append(providers, nvelope.DebugChain)
	}
	providers = append(providers,
		nvelope.MiddlewareBaseWriter(h.middleware...),
		nject.Provide("codec", h.selectCodec),
		nvelope.InjectWriter,
	)
	if h.registerer != nil {
		h.metrics, err = newMetrics(h.registerer)
		if err != nil {
			panic(fmt.Sprintf("npoint: %s", err))
		}
		providers = append(providers, nject.Provide("metrics", h.metrics.observe))
	}
	providers = append(providers,
		nvelope.EncodeResponse,
		nvelope.CatchPanic,
		nject.Provide("dispatch", h.dispatch),
	)
	err = nject.Sequence("nrpc", providers...).Bind(&h.serve, nil)
	if err != nil {
		panic(fmt.Sprintf("npoint: cannot bind handler: %s", nject.DetailedError(err)))
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r)
}

// requestLogger sets the request id on the response before the
// response is buffered so that error responses keep it.
func (h *Handler) requestLogger(w http.ResponseWriter, r *http.Request) nvelope.BasicLogger {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	return nvelope.WithFields(h.log, map[string]interface{}{
		"request_id": id,
	})
}

func (h *Handler) selectCodec(r *http.Request) nvelope.Codec {
	if r.Header.Get(nvelope.ProtocolHeader) == nvelope.ProtocolName {
		return h.rpc
	}
	return h.openapi
}

// dispatch is the endpoint of the injection chain.
func (h *Handler) dispatch(w *nvelope.DeferredWriter, r *http.Request, codec nvelope.Codec) (nvelope.Response, error) {
	ctx := r.Context()
	path, ok := h.stripPrefix(r.URL.Path)
	if !ok {
		return nil, nrpc.NewError(nrpc.NotFound, nrpc.WithMessagef("%s is outside %s", r.URL.Path, h.prefix))
	}

	procedurePath, procedure, params, err := h.route(ctx, r, path, codec)
	if err != nil {
		return nil, err
	}

	if h.maxBodyBytes > 0 && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	input, err := codec.DecodeRequest(r, procedure.Contract().InputSchema)
	if err != nil {
		return nil, nvelope.DecodeFailure(err)
	}
	input = mergeParams(input, params)

	opts := make([]nrpc.CallerOpt, 0, len(h.callerOpts)+3)
	opts = append(opts, h.callerOpts...)
	opts = append(opts, nrpc.WithPath(procedurePath...))
	if h.contextFn != nil {
		opts = append(opts, nrpc.WithContext(func(context.Context) (nrpc.Context, error) {
			return h.contextFn(r)
		}))
	}
	if len(h.onRequest) > 0 {
		opts = append(opts, nrpc.WithHooks(func(hooks *nrpc.Hooks) {
			for _, fn := range h.onRequest {
				fn(r, hooks)
			}
		}))
	}
	return nrpc.Call(ctx, procedure, input, opts...)
}

func (h *Handler) stripPrefix(path string) (string, bool) {
	if h.prefix == "" {
		return path, true
	}
	if path == h.prefix {
		return "/", true
	}
	if strings.HasPrefix(path, h.prefix+"/") {
		return path[len(h.prefix):], true
	}
	return "", false
}

// route finds the procedure for a request.  The internal protocol uses
// only segment lookup.
func (h *Handler) route(ctx context.Context, r *http.Request, path string, codec nvelope.Codec) ([]string, *nrpc.Procedure, map[string]string, error) {
	if codec != h.rpc {
		rt, params, ok, err := h.routes.find(ctx, r, path)
		if err != nil {
			return nil, nil, nil, err
		}
		if ok {
			return rt.path, rt.procedure, params, nil
		}
	}
	segs := segments(path)
	procedure, err := nrpc.Resolve(ctx, h.root, segs)
	if err != nil {
		return nil, nil, nil, err
	}
	return segs, procedure, nil, nil
}

// mergeParams puts path parameters under the decoded input.  Keys in
// the input win.  Inputs that are not objects are left alone.
func mergeParams(input any, params map[string]string) any {
	if len(params) == 0 {
		return input
	}
	var body map[string]any
	switch t := input.(type) {
	case nil:
	case map[string]any:
		body = t
	default:
		return input
	}
	merged := make(map[string]any, len(params)+len(body))
	for k, v := range params {
		merged[k] = v
	}
	for k, v := range body {
		merged[k] = v
	}
	return merged
}
