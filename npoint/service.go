package npoint

import (
	"fmt"
	"net/http"
	"sync"
)

// Service is a group of routers, each mounted under its own prefix,
// that are served together.  This form of service is already started:
// mounts are bound as they are added.
type Service struct {
	Name   string
	mounts map[string]*Mount
	opts   []HandlerOpt
	binder EndpointBinder
	lock   sync.Mutex
}

// ServiceRegistration is a pre-registered Service.  None of its
// mounts build their handlers or bind until Start() is called.  That
// allows routers to be mounted from init() functions next to their
// definitions.
type ServiceRegistration struct {
	Name    string
	started *Service
	mounts  map[string]*Mount
	opts    []HandlerOpt
	lock    sync.Mutex
}

// Mount is one router mounted in a service.
type Mount struct {
	prefix  string
	router  any
	opts    []HandlerOpt
	handler *Handler
}

// EndpointBinder binds a handler for every path under prefix.  An
// empty prefix is the whole server.  See ServeMuxBinder and
// GorillaBinder.
type EndpointBinder func(prefix string, h http.Handler)

// ServeMuxBinder binds to an http.ServeMux.
func ServeMuxBinder(mux *http.ServeMux) EndpointBinder {
	return func(prefix string, h http.Handler) {
		if prefix == "" {
			mux.Handle("/", h)
			return
		}
		mux.Handle(prefix, h)
		mux.Handle(prefix+"/", h)
	}
}

// PreregisterService creates a service that must be Start()ed later.
// The options apply to every mount and come before each mount's own
// options.
func PreregisterService(name string, opts ...HandlerOpt) *ServiceRegistration {
	return &ServiceRegistration{
		Name:   name,
		mounts: make(map[string]*Mount),
		opts:   opts,
	}
}

// RegisterService creates a service and starts it immediately.
func RegisterService(name string, binder EndpointBinder, opts ...HandlerOpt) *Service {
	return PreregisterService(name, opts...).Start(binder)
}

// Start builds the handlers of all mounts and binds them.  Start may
// only be called once.
func (s *ServiceRegistration) Start(binder EndpointBinder) *Service {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.started != nil {
		panic("duplicate call to Start()")
	}
	for _, m := range s.mounts {
		m.start(s.opts, binder)
	}
	svc := &Service{
		Name:   s.Name,
		mounts: s.mounts,
		opts:   s.opts,
		binder: binder,
	}
	s.started = svc
	return svc
}

// Mount pre-registers router under prefix.  If the service has
// already been started, the mount is started immediately.
func (s *ServiceRegistration) Mount(prefix string, router any, opts ...HandlerOpt) *Mount {
	s.lock.Lock()
	defer s.lock.Unlock()
	m := newMount(s.Name, s.mounts, prefix, router, opts)
	if s.started != nil {
		s.started.lock.Lock()
		defer s.started.lock.Unlock()
		m.start(s.opts, s.started.binder)
	}
	return m
}

// Mount adds router under prefix and binds it immediately.
func (s *Service) Mount(prefix string, router any, opts ...HandlerOpt) *Mount {
	s.lock.Lock()
	defer s.lock.Unlock()
	m := newMount(s.Name, s.mounts, prefix, router, opts)
	m.start(s.opts, s.binder)
	return m
}

func newMount(name string, mounts map[string]*Mount, prefix string, router any, opts []HandlerOpt) *Mount {
	var probe Handler
	WithPrefix(prefix)(&probe)
	if mounts[probe.prefix] != nil {
		panic(fmt.Sprintf("%s: prefix %q already mounted", name, probe.prefix))
	}
	m := &Mount{
		prefix: probe.prefix,
		router: router,
		opts:   opts,
	}
	mounts[m.prefix] = m
	return m
}

func (m *Mount) start(shared []HandlerOpt, binder EndpointBinder) {
	if m.handler == nil {
		opts := make([]HandlerOpt, 0, len(shared)+len(m.opts)+1)
		opts = append(opts, shared...)
		opts = append(opts, m.opts...)
		opts = append(opts, WithPrefix(m.prefix))
		m.handler = NewHandler(m.router, opts...)
	}
	binder(m.prefix, m.handler)
}

// Prefix is the standardized prefix of the mount.  It is empty for
// the root.
func (m *Mount) Prefix() string {
	return m.prefix
}

// Handler returns the mount's handler, or nil before the service
// is started.
func (m *Mount) Handler() *Handler {
	return m.handler
}
