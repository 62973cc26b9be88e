package natsrpc

import (
	"context"
	"strconv"
	"strings"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Conn is the part of *nats.Conn that a Requester uses.
type Conn interface {
	RequestMsgWithContext(ctx context.Context, msg *nats.Msg) (*nats.Msg, error)
}

var _ Conn = &nats.Conn{}

// Requester calls procedures served by a Responder.
type Requester struct {
	conn   Conn
	prefix string
}

// NewRequester creates a Requester.  prefix must match the
// Responder's; empty means DefaultPrefix.
func NewRequester(conn Conn, prefix string) *Requester {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Requester{conn: conn, prefix: prefix}
}

// Call calls the procedure at path.  The deadline of ctx bounds the
// request.  Errors sent by the responder are returned as *nrpc.Error.
func (q *Requester) Call(ctx context.Context, path []string, input any) (any, error) {
	if len(path) == 0 {
		return nil, errors.New("empty procedure path")
	}
	enc, err := nvelope.Serialize(input)
	if err != nil {
		return nil, errors.Wrapf(err, "encode input to %s", strings.Join(path, "."))
	}
	msg := nats.NewMsg(q.prefix + "." + strings.Join(path, "."))
	msg.Data = enc.Body
	msg.Header.Set("Content-Type", enc.ContentType)

	reply, err := q.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, nrpc.NewError(nrpc.ServiceUnavailable, nrpc.WithCause(err))
		}
		return nil, errors.Wrapf(err, "request %s", msg.Subject)
	}
	v, err := nvelope.Deserialize(reply.Header.Get("Content-Type"), reply.Data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode reply from %s", msg.Subject)
	}
	status, err := strconv.Atoi(reply.Header.Get(StatusHeader))
	if err != nil || status < 200 {
		return nil, nrpc.NewError(nrpc.BadGateway,
			nrpc.WithMessagef("reply from %s has no valid %s header", msg.Subject, StatusHeader))
	}
	if status < 400 {
		return v, nil
	}
	if e, ok := nvelope.ErrorFromData(v); ok {
		return nil, e
	}
	return nil, nrpc.NewError(nrpc.BadGateway, nrpc.WithMessagef("reply from %s has status %d", msg.Subject, status))
}

// Procedure returns a Caller for the procedure at path.
func (q *Requester) Procedure(path ...string) nrpc.Caller {
	path = append([]string(nil), path...)
	return func(ctx context.Context, input any) (any, error) {
		return q.Call(ctx, path, input)
	}
}
