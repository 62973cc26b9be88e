package natsrpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/natsrpc"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loopback delivers requests straight to a Responder.
type loopback struct {
	responder *natsrpc.Responder
	subjects  []string
}

func (l *loopback) RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error) {
	l.subjects = append(l.subjects, msg.Subject)
	msg.Reply = "_INBOX.test"
	return l.responder.Reply(ctx, msg), nil
}

type noResponders struct{}

func (noResponders) RequestMsgWithContext(context.Context, *nats.Msg) (*nats.Msg, error) {
	return nil, nats.ErrNoResponders
}

func testRouter() nrpc.Router {
	b := nrpc.NewBuilder()
	return nrpc.Router{
		"clock": nrpc.Router{
			"shift": b.Handler(func(_ context.Context, input any, _ nrpc.Context, meta nrpc.Meta) (any, error) {
				m := input.(map[string]any)
				return m["at"].(time.Time).Add(time.Hour), nil
			}),
		},
		"who": b.Handler(func(_ context.Context, _ any, c nrpc.Context, meta nrpc.Meta) (any, error) {
			return map[string]any{"user": c["user"], "path": meta.Path}, nil
		}),
		"boom": b.Handler(func(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
			panic("oops")
		}),
		"fail": b.Handler(func(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
			return nil, nrpc.NewError(nrpc.Conflict, nrpc.WithMessage("busy"))
		}),
	}
}

func TestRoundTrip(t *testing.T) {
	responder := natsrpc.NewResponder(testRouter(),
		natsrpc.WithPrefix("svc."),
		natsrpc.WithContext(func(_ context.Context, msg *nats.Msg) (nrpc.Context, error) {
			return nrpc.Context{"user": msg.Header.Get("User")}, nil
		}))
	assert.Equal(t, "svc.>", responder.Subject())
	lb := &loopback{responder: responder}
	q := natsrpc.NewRequester(lb, "svc")
	ctx := context.Background()

	at := time.Date(2020, 5, 1, 10, 0, 0, 0, time.UTC)
	out, err := q.Call(ctx, []string{"clock", "shift"}, map[string]any{"at": at})
	require.NoError(t, err)
	assert.True(t, at.Add(time.Hour).Equal(out.(time.Time)))
	assert.Equal(t, []string{"svc.clock.shift"}, lb.subjects)

	out, err = q.Procedure("who")(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"user": "", "path": []any{"who"}}, out)

	_, err = q.Call(ctx, []string{"fail"}, nil)
	assert.True(t, nrpc.IsCode(err, nrpc.Conflict))
	assert.Equal(t, "busy", nrpc.ToError(err).Message())

	_, err = q.Call(ctx, []string{"clock"}, nil)
	assert.True(t, nrpc.IsCode(err, nrpc.NotFound))
}

func TestReply(t *testing.T) {
	responder := natsrpc.NewResponder(testRouter())

	msg := nats.NewMsg("other.who")
	msg.Reply = "_INBOX.1"
	reply := responder.Reply(context.Background(), msg)
	assert.Equal(t, "_INBOX.1", reply.Subject)
	assert.Equal(t, "404", reply.Header.Get(natsrpc.StatusHeader))

	msg = nats.NewMsg("nrpc.who")
	msg.Header.Set("Content-Type", "text/csv")
	msg.Data = []byte("a,b")
	reply = responder.Reply(context.Background(), msg)
	assert.Equal(t, "406", reply.Header.Get(natsrpc.StatusHeader))

	msg = nats.NewMsg("nrpc.who")
	msg.Data = []byte(`{"data":`)
	reply = responder.Reply(context.Background(), msg)
	assert.Equal(t, "400", reply.Header.Get(natsrpc.StatusHeader))

	msg = nats.NewMsg("nrpc.who")
	msg.Header.Set("Content-Type", "application/json")
	msg.Data = []byte(`{"data":[[null,1]],"meta":[["map"]]}`)
	reply = responder.Reply(context.Background(), msg)
	assert.Equal(t, "400", reply.Header.Get(natsrpc.StatusHeader))
}

func TestReplyRecoversPanics(t *testing.T) {
	responder := natsrpc.NewResponder(testRouter())
	msg := nats.NewMsg("nrpc.boom")
	msg.Reply = "_INBOX.2"
	var reply *nats.Msg
	require.NotPanics(t, func() {
		reply = responder.Reply(context.Background(), msg)
	})
	assert.Equal(t, "500", reply.Header.Get(natsrpc.StatusHeader))
	assert.NotContains(t, string(reply.Data), "oops")

	q := natsrpc.NewRequester(&loopback{responder: responder}, "")
	_, err := q.Call(context.Background(), []string{"boom"}, nil)
	assert.True(t, nrpc.IsCode(err, nrpc.InternalServerError))
}

// fixedReply answers every request with the same message.
type fixedReply struct {
	reply *nats.Msg
}

func (f fixedReply) RequestMsgWithContext(context.Context, *nats.Msg) (*nats.Msg, error) {
	return f.reply, nil
}

func TestReplyWithoutStatus(t *testing.T) {
	for _, status := range []string{"", "ok"} {
		reply := nats.NewMsg("_INBOX.3")
		reply.Header.Set("Content-Type", "application/json")
		reply.Data = []byte(`{"data":"fine"}`)
		if status != "" {
			reply.Header.Set(natsrpc.StatusHeader, status)
		}
		q := natsrpc.NewRequester(fixedReply{reply: reply}, "")
		_, err := q.Call(context.Background(), []string{"who"}, nil)
		assert.True(t, nrpc.IsCode(err, nrpc.BadGateway), "status %q: %v", status, err)
	}
}

func TestNoResponders(t *testing.T) {
	q := natsrpc.NewRequester(noResponders{}, "")
	_, err := q.Call(context.Background(), []string{"who"}, nil)
	assert.True(t, nrpc.IsCode(err, nrpc.ServiceUnavailable))
}
