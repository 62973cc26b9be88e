// Package natsrpc serves and calls nrpc procedures over NATS
// request/reply.  The subject names the procedure: with the default
// prefix, "nrpc.planet.find" calls router["planet"]["find"].  Bodies
// use the internal protocol.
package natsrpc

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

const (
	// DefaultPrefix is the first subject token of every call.
	DefaultPrefix = "nrpc"

	// StatusHeader carries the HTTP equivalent status of a reply.
	StatusHeader = "Nrpc-Status"
)

// Responder answers requests for the procedures of one router.
type Responder struct {
	root       any
	prefix     string
	queue      string
	timeout    time.Duration
	log        nvelope.BasicLogger
	contextFn  func(ctx context.Context, msg *nats.Msg) (nrpc.Context, error)
	callerOpts []nrpc.CallerOpt

	sub *nats.Subscription
}

// ResponderOpt are functional arguments for NewResponder
type ResponderOpt func(*Responder)

// WithPrefix replaces DefaultPrefix.
func WithPrefix(prefix string) ResponderOpt {
	return func(r *Responder) {
		r.prefix = strings.Trim(prefix, ".")
	}
}

// WithQueue makes the subscription a queue subscription so that
// requests are spread across responders.
func WithQueue(queue string) ResponderOpt {
	return func(r *Responder) {
		r.queue = queue
	}
}

// WithTimeout bounds each call.  The default is 30 seconds.
func WithTimeout(d time.Duration) ResponderOpt {
	return func(r *Responder) {
		r.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(log nvelope.BasicLogger) ResponderOpt {
	return func(r *Responder) {
		r.log = log
	}
}

// WithContext provides the initial context for each call from the
// request message.
func WithContext(fn func(ctx context.Context, msg *nats.Msg) (nrpc.Context, error)) ResponderOpt {
	return func(r *Responder) {
		r.contextFn = fn
	}
}

// WithCallerOpts adds options to every procedure call.
func WithCallerOpts(opts ...nrpc.CallerOpt) ResponderOpt {
	return func(r *Responder) {
		r.callerOpts = append(r.callerOpts, opts...)
	}
}

// NewResponder creates a Responder.  It does not subscribe until
// Start is called.
func NewResponder(router any, opts ...ResponderOpt) *Responder {
	r := &Responder{
		root:    router,
		prefix:  DefaultPrefix,
		timeout: 30 * time.Second,
		log:     nvelope.NoLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subject is the wildcard subject the responder subscribes to.
func (r *Responder) Subject() string {
	return r.prefix + ".>"
}

// Start subscribes.  Calls run with a context derived from ctx.
func (r *Responder) Start(ctx context.Context, nc *nats.Conn) error {
	handler := func(msg *nats.Msg) {
		reply := r.Reply(ctx, msg)
		if msg.Reply == "" {
			return
		}
		if err := msg.RespondMsg(reply); err != nil {
			r.log.Error("cannot send reply", map[string]interface{}{
				"subject": msg.Subject,
				"error":   err.Error(),
			})
		}
	}
	var err error
	if r.queue != "" {
		r.sub, err = nc.QueueSubscribe(r.Subject(), r.queue, handler)
	} else {
		r.sub, err = nc.Subscribe(r.Subject(), handler)
	}
	if err != nil {
		return errors.Wrapf(err, "subscribe to %s", r.Subject())
	}
	r.log.Debug("nats responder started", map[string]interface{}{
		"subject": r.Subject(),
		"queue":   r.queue,
	})
	return nil
}

// Stop drains the subscription.
func (r *Responder) Stop() error {
	if r.sub == nil {
		return nil
	}
	return errors.Wrap(r.sub.Drain(), "drain subscription")
}

// Reply runs the call that msg requests and builds the reply.  It
// does not send it.
func (r *Responder) Reply(ctx context.Context, msg *nats.Msg) *nats.Msg {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	out, err := r.call(ctx, msg)
	var enc nvelope.Encoded
	status := 200
	if err == nil {
		enc, err = nvelope.Serialize(out)
		if err != nil {
			err = nvelope.EncodeFailure(err)
		}
	}
	if err != nil {
		e := nrpc.ToError(err)
		if e.Status() >= 500 {
			r.log.Error("procedure failed", map[string]interface{}{
				"subject": msg.Subject,
				"error":   err.Error(),
			})
		}
		enc = nvelope.RPC{}.EncodeError(nil, e)
		status = e.Status()
	}
	reply := nats.NewMsg(msg.Reply)
	reply.Data = enc.Body
	reply.Header.Set("Content-Type", enc.ContentType)
	reply.Header.Set(StatusHeader, strconv.Itoa(status))
	return reply
}

func (r *Responder) call(ctx context.Context, msg *nats.Msg) (_ any, err error) {
	defer nvelope.SetErrorOnPanic(&err, nvelope.WithFields(r.log, map[string]interface{}{
		"subject": msg.Subject,
	}))
	path, ok := r.path(msg.Subject)
	if !ok {
		return nil, nrpc.NewError(nrpc.NotFound, nrpc.WithMessagef("subject %s is outside %s", msg.Subject, r.prefix))
	}
	procedure, err := nrpc.Resolve(ctx, r.root, path)
	if err != nil {
		return nil, err
	}
	var input any
	if len(msg.Data) > 0 {
		input, err = nvelope.Deserialize(msg.Header.Get("Content-Type"), msg.Data)
		if err != nil {
			return nil, nvelope.DecodeFailure(err)
		}
	}
	opts := make([]nrpc.CallerOpt, 0, len(r.callerOpts)+2)
	opts = append(opts, r.callerOpts...)
	opts = append(opts, nrpc.WithPath(path...))
	if r.contextFn != nil {
		opts = append(opts, nrpc.WithContext(func(ctx context.Context) (nrpc.Context, error) {
			return r.contextFn(ctx, msg)
		}))
	}
	return nrpc.Call(ctx, procedure, input, opts...)
}

func (r *Responder) path(subject string) ([]string, bool) {
	rest, ok := strings.CutPrefix(subject, r.prefix+".")
	if !ok || rest == "" {
		return nil, false
	}
	return strings.Split(rest, "."), true
}
