// Package nclient calls procedures served by npoint using the
// internal protocol.
package nclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/pkg/errors"
)

// Client sends calls to one server.
type Client struct {
	base   string
	http   *http.Client
	header http.Header
	get    func(path []string) bool
}

// ClientOpt are functional arguments for New
type ClientOpt func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) ClientOpt {
	return func(c *Client) {
		c.http = hc
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOpt {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// WithGET sends calls with GET when useGET returns true for the
// procedure's path.  Input travels in the query string, so it must not
// contain files.
func WithGET(useGET func(path []string) bool) ClientOpt {
	return func(c *Client) {
		c.get = useGET
	}
}

// New creates a Client.  baseURL includes any prefix the handler was
// given, for example "http://localhost:8080/rpc".
func New(baseURL string, opts ...ClientOpt) *Client {
	c := &Client{
		base:   strings.TrimSuffix(baseURL, "/"),
		http:   http.DefaultClient,
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call calls the procedure at path.  Errors sent by the server are
// returned as *nrpc.Error.
func (c *Client) Call(ctx context.Context, path []string, input any) (any, error) {
	req, err := c.request(ctx, path, input)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", strings.Join(path, "."))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read response to %s", strings.Join(path, "."))
	}
	var v any
	if len(body) > 0 {
		v, err = nvelope.Deserialize(resp.Header.Get("Content-Type"), body)
		if err != nil {
			if resp.StatusCode >= 400 {
				return nil, statusError(resp.StatusCode, err)
			}
			return nil, errors.Wrapf(err, "decode response to %s", strings.Join(path, "."))
		}
	}
	if resp.StatusCode < 400 {
		return v, nil
	}
	if e, ok := nvelope.ErrorFromData(v); ok {
		return nil, e
	}
	return nil, statusError(resp.StatusCode, nil)
}

// Procedure returns a Caller for the procedure at path.
func (c *Client) Procedure(path ...string) nrpc.Caller {
	path = append([]string(nil), path...)
	return func(ctx context.Context, input any) (any, error) {
		return c.Call(ctx, path, input)
	}
}

func (c *Client) request(ctx context.Context, path []string, input any) (*http.Request, error) {
	escaped := make([]string, len(path))
	for i, p := range path {
		escaped[i] = url.PathEscape(p)
	}
	target := c.base + "/" + strings.Join(escaped, "/")
	enc, err := nvelope.Serialize(input)
	if err != nil {
		return nil, errors.Wrapf(err, "encode input to %s", strings.Join(path, "."))
	}

	var req *http.Request
	if c.get != nil && c.get(path) && strings.HasPrefix(enc.ContentType, "application/json") {
		var env struct {
			Data json.RawMessage `json:"data"`
			Meta json.RawMessage `json:"meta"`
		}
		if err := json.Unmarshal(enc.Body, &env); err != nil {
			return nil, errors.Wrap(err, "split envelope")
		}
		q := url.Values{}
		if len(env.Data) > 0 {
			q.Set("data", string(env.Data))
		}
		if len(env.Meta) > 0 {
			q.Set("meta", string(env.Meta))
		}
		if len(q) > 0 {
			target += "?" + q.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(enc.Body))
		if err == nil {
			req.Header.Set("Content-Type", enc.ContentType)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	for k, v := range c.header {
		req.Header[k] = append([]string(nil), v...)
	}
	req.Header.Set(nvelope.ProtocolHeader, nvelope.ProtocolName)
	return req, nil
}

// statusError stands in for error bodies that could not be read.
func statusError(status int, cause error) *nrpc.Error {
	if status > 599 {
		status = http.StatusBadGateway
	}
	opts := []nrpc.ErrorOpt{
		nrpc.WithStatus(status),
		nrpc.WithMessagef("unexpected response status %d", status),
	}
	if cause != nil {
		opts = append(opts, nrpc.WithCause(cause))
	}
	if status >= 500 {
		return nrpc.NewError(nrpc.BadGateway, opts...)
	}
	return nrpc.NewError(nrpc.BadRequest, opts...)
}
