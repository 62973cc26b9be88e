package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/muir/nrpc"
	"github.com/muir/nrpc/natsrpc"
	"github.com/muir/nrpc/npoint"
	"github.com/muir/nrpc/nserve"
	"github.com/muir/nrpc/nvelope"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func handlerOpts(cfg Config, log nvelope.BasicLogger, reg prometheus.Registerer) []npoint.HandlerOpt {
	opts := []npoint.HandlerOpt{
		npoint.WithLogger(log),
		npoint.WithMaxBodyBytes(cfg.MaxBodyBytes),
		npoint.WithMetrics(reg),
		npoint.WithHTTPMiddleware(middleware.RealIP),
		npoint.WithContext(func(r *http.Request) (nrpc.Context, error) {
			return nrpc.Context{
				"token":  bearerToken(r.Header.Get("Authorization")),
				"remote": r.RemoteAddr,
			}, nil
		}),
		npoint.WithOnRequest(func(r *http.Request, hooks *nrpc.Hooks) {
			hooks.OnError(func(_ context.Context, err error) error {
				if e := nrpc.ToError(err); e.Status() >= 500 {
					log.Error("call failed", map[string]interface{}{
						"path":  r.URL.Path,
						"error": err.Error(),
					})
				}
				return nil
			})
		}),
	}
	if cfg.Serverless {
		opts = append(opts, npoint.WithServerless())
	}
	if cfg.Debug {
		opts = append(opts, npoint.WithDebugChain())
	}
	return opts
}

// newMux builds everything the HTTP server serves.
func newMux(cfg Config, log nvelope.BasicLogger, reg *prometheus.Registry, store *planetStore) http.Handler {
	mux := http.NewServeMux()
	if cfg.MetricsPath != "" {
		mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	npoint.RegisterService("nrpcdemo", npoint.ServeMuxBinder(mux), handlerOpts(cfg, log, reg)...).
		Mount(cfg.Prefix, newRouter(store, log))
	return middleware.Heartbeat("/healthz")(mux)
}

type httpServer struct {
	server *http.Server
}

func newHTTPServer(app *nserve.App, cfg Config, log nvelope.BasicLogger, reg *prometheus.Registry, store *planetStore) *httpServer {
	s := &httpServer{
		server: &http.Server{
			Handler:           newMux(cfg, log, reg, store),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	app.On(nserve.Start, func(app *nserve.App) error {
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", cfg.Listen)
		}
		log.Debug("listening", map[string]interface{}{"addr": ln.Addr().String()})
		go func() {
			err := s.server.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server", map[string]interface{}{"error": err.Error()})
			}
		}()
		app.On(nserve.Stop, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return errors.Wrap(s.server.Shutdown(ctx), "http shutdown")
		})
		return nil
	})
	return s
}

type natsResponder struct {
	responder *natsrpc.Responder
}

// newNATSResponder serves the router over NATS when a server is
// configured.
func newNATSResponder(app *nserve.App, cfg Config, log nvelope.BasicLogger, store *planetStore) *natsResponder {
	r := &natsResponder{}
	if cfg.NATS.URL == "" {
		return r
	}
	r.responder = natsrpc.NewResponder(newRouter(store, log),
		natsrpc.WithPrefix(cfg.NATS.Prefix),
		natsrpc.WithQueue(cfg.NATS.Queue),
		natsrpc.WithLogger(log),
		natsrpc.WithContext(func(_ context.Context, msg *nats.Msg) (nrpc.Context, error) {
			return nrpc.Context{"token": bearerToken(msg.Header.Get("Authorization"))}, nil
		}),
	)
	app.On(nserve.Start, func(ctx context.Context, app *nserve.App) error {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("nrpcdemo"))
		if err != nil {
			return errors.Wrapf(err, "connect to %s", cfg.NATS.URL)
		}
		app.On(nserve.Shutdown, func() { nc.Close() })
		if err := r.responder.Start(ctx, nc); err != nil {
			return err
		}
		app.On(nserve.Stop, func() error { return r.responder.Stop() })
		return nil
	})
	return r
}
