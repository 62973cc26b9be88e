package npoint

import (
	"strconv"
	"time"

	"github.com/muir/nrpc/nvelope"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nrpc",
				Name:      "requests_total",
				Help:      "Requests handled, by protocol and response status",
			},
			[]string{"protocol", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nrpc",
				Name:      "request_duration_seconds",
				Help:      "Request handling time in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"protocol"},
		),
	}
	var err error
	m.requests, err = register(reg, m.requests)
	if err != nil {
		return nil, err
	}
	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg.  If an identical collector is already
// registered, as happens when two handlers share a registry, that
// one is used.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, errors.Wrap(err, "register metrics")
}

// observe is an nject wrapper placed after the response encoder's
// writer so that it sees the final status.
func (m *metrics) observe(inner func(), codec nvelope.Codec, w *nvelope.DeferredWriter) {
	start := time.Now()
	inner()
	status := w.Status()
	if status == 0 {
		status = 200
	}
	m.requests.WithLabelValues(codec.Name(), strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(codec.Name()).Observe(time.Since(start).Seconds())
}
