package nrpc_test

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/muir/nrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerInputValidation(t *testing.T) {
	var handled bool
	p := nrpc.NewBuilder().
		Input(stringFields("value")).
		Handler(func(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
			handled = true
			return nil, nil
		})

	_, err := nrpc.Call(context.Background(), p, map[string]any{"value": 123})
	require.Error(t, err)
	assert.False(t, handled)
	var e *nrpc.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, nrpc.BadRequest, e.Code())
	assert.Equal(t, "Validation input failed", e.Message())
	require.Len(t, e.Issues(), 1)
	assert.Equal(t, []any{"value"}, e.Issues()[0].Path)
	var ve *nrpc.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "input", ve.Direction)

	out, err := nrpc.Call(context.Background(), p, map[string]any{"value": "ok"})
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.True(t, handled)
}

func TestCallerOutputValidation(t *testing.T) {
	p := nrpc.NewBuilder().
		Output(stringFields("name")).
		Handler(constant(map[string]any{"name": 7}))
	_, err := nrpc.Call(context.Background(), p, nil)
	assert.True(t, nrpc.IsCode(err, nrpc.InternalServerError))
	assert.Equal(t, "Validation output failed", nrpc.ToError(err).Message())
}

func TestCallerContextResolvedOnce(t *testing.T) {
	var resolved int
	src := func(context.Context) (nrpc.Context, error) {
		resolved++
		return nrpc.Context{"db": "conn"}, nil
	}
	var seen nrpc.Context
	p := nrpc.NewBuilder().
		Use(func(ctx context.Context, input any, c nrpc.Context, meta nrpc.Meta, next nrpc.Next) (nrpc.Result, error) {
			return next(ctx, nrpc.Context{"user": "u1"})
		}).
		Handler(func(_ context.Context, _ any, c nrpc.Context, _ nrpc.Meta) (any, error) {
			seen = c
			return nil, nil
		})
	caller := nrpc.NewCaller(p, nrpc.WithContext(src))
	_, err := caller(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, resolved)
	assert.Equal(t, nrpc.Context{"db": "conn", "user": "u1"}, seen)

	boom := errors.New("no db")
	_, err = nrpc.Call(context.Background(), p, nil, nrpc.WithContext(func(context.Context) (nrpc.Context, error) {
		return nil, boom
	}))
	assert.Same(t, boom, err)
}

func TestCallerLazy(t *testing.T) {
	p := nrpc.NewBuilder().Handler(echo)
	var loads int
	caller := nrpc.NewCaller(lazyValue(p, &loads))
	out, err := caller(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, 1, loads)

	_, err = nrpc.Call(context.Background(), lazyValue(nrpc.Router{}, nil), nil)
	assert.True(t, nrpc.IsCode(err, nrpc.NotFound))
	assert.True(t, errors.Is(err, nrpc.ErrNotProcedure))
}

func TestCallerMeta(t *testing.T) {
	var meta nrpc.Meta
	p := nrpc.NewBuilder().Handler(func(_ context.Context, _ any, _ nrpc.Context, m nrpc.Meta) (any, error) {
		meta = m
		return nil, nil
	})
	_, err := nrpc.Call(context.Background(), p, nil, nrpc.WithPath("planet", "find"))
	require.NoError(t, err)
	assert.Equal(t, []string{"planet", "find"}, meta.Path)
	assert.Same(t, p, meta.Procedure)
	assert.NotNil(t, meta.Hooks)
}

func TestCallerHooks(t *testing.T) {
	var calls []string
	p := nrpc.NewBuilder().
		Use(func(ctx context.Context, input any, c nrpc.Context, meta nrpc.Meta, next nrpc.Next) (nrpc.Result, error) {
			meta.Hooks.OnFinish(func(context.Context, any, error) error {
				calls = append(calls, "middleware-finish")
				return nil
			})
			return next(ctx, nil)
		}).
		Handler(constant("out"))
	out, err := nrpc.Call(context.Background(), p, nil,
		nrpc.WithOnSuccess(func(_ context.Context, output any) error {
			calls = append(calls, "success:"+output.(string))
			return nil
		}),
		nrpc.WithOnFinish(func(context.Context, any, error) error {
			calls = append(calls, "finish")
			return nil
		}),
		nrpc.WithOnError(func(context.Context, error) error {
			calls = append(calls, "error")
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, "out", out)
	assert.Equal(t, []string{"success:out", "middleware-finish", "finish"}, calls)
}

func TestCallerHookErrorReplacesResult(t *testing.T) {
	denied := nrpc.NewError(nrpc.Forbidden)
	p := nrpc.NewBuilder().Handler(constant("secret"))
	out, err := nrpc.Call(context.Background(), p, nil,
		nrpc.WithOnSuccess(func(context.Context, any) error { return denied }))
	assert.Nil(t, out)
	assert.Same(t, denied, err)
}

func TestCallerForm(t *testing.T) {
	p := nrpc.NewBuilder().Input(intSchema{}).Handler(echo)
	out, err := nrpc.Call(context.Background(), p, url.Values{"id": {"1"}, "tag": {"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 1, "tag": []any{"a", "b"}}, out)

	_, err = nrpc.Call(context.Background(), p, url.Values{"id": {"one"}})
	assert.True(t, nrpc.IsCode(err, nrpc.BadRequest))

	custom := nrpc.WithFormTransformer(func(form any, _ nrpc.Schema) (any, error) {
		return map[string]any{"id": 99}, nil
	})
	out, err = nrpc.Call(context.Background(), p, url.Values{}, custom)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 99}, out)
}

func TestTyped(t *testing.T) {
	type planet struct {
		Name string `json:"name"`
		Size int    `json:"size"`
	}
	p := nrpc.NewBuilder().Handler(nrpc.Typed(func(_ context.Context, in planet, _ nrpc.Context, _ nrpc.Meta) (string, error) {
		return in.Name, nil
	}))
	out, err := nrpc.Call(context.Background(), p, map[string]any{"name": "earth", "size": 3})
	require.NoError(t, err)
	assert.Equal(t, "earth", out)

	out, err = nrpc.Call(context.Background(), p, planet{Name: "mars"})
	require.NoError(t, err)
	assert.Equal(t, "mars", out)

	_, err = nrpc.Call(context.Background(), p, map[string]any{"size": "big"})
	assert.True(t, nrpc.IsCode(err, nrpc.BadRequest))
}
