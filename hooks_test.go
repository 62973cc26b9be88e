package nrpc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/muir/nrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooksOrder(t *testing.T) {
	var calls []string
	hooks := &nrpc.Hooks{}
	for _, name := range []string{"1", "2", "3"} {
		name := name
		hooks.OnSuccess(func(context.Context, any) error {
			calls = append(calls, "success"+name)
			return nil
		})
		hooks.OnFinish(func(context.Context, any, error) error {
			calls = append(calls, "finish"+name)
			return nil
		})
		hooks.OnError(func(context.Context, error) error {
			calls = append(calls, "error"+name)
			return nil
		})
	}
	out, err := nrpc.ExecuteWithHooks(context.Background(), hooks, func(context.Context) (any, error) {
		calls = append(calls, "execute")
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, out)
	assert.Equal(t, []string{"execute", "success3", "success2", "success1", "finish3", "finish2", "finish1"}, calls)
}

func TestHooksErrorChain(t *testing.T) {
	original := errors.New("original")
	errA := errors.New("a")
	errB := errors.New("b")
	errC := errors.New("c")

	for _, throwing := range []int{0, 1, 3} {
		hooks := &nrpc.Hooks{}
		var received []error
		var finishCount int
		var finishErr error
		for i, e := range []error{errA, errB, errC} {
			e := e
			throws := i < throwing
			hooks.OnError(func(_ context.Context, err error) error {
				received = append(received, err)
				if throws {
					return e
				}
				return nil
			})
		}
		hooks.OnFinish(func(_ context.Context, output any, err error) error {
			finishCount++
			finishErr = err
			assert.Nil(t, output)
			return nil
		})

		_, err := nrpc.ExecuteWithHooks(context.Background(), hooks, func(context.Context) (any, error) {
			return nil, original
		})
		assert.Equal(t, 1, finishCount, "throwing %d", throwing)
		assert.Equal(t, []error{original, original, original}, received, "every error hook sees the original")

		var want error
		switch throwing {
		case 0:
			want = original
		case 1:
			want = errA
		case 3:
			// hooks run last-registered first so errA is thrown last
			want = errA
		}
		assert.Same(t, want, err, "throwing %d", throwing)
		assert.Same(t, want, finishErr, "finish sees the latest error")
	}
}

func TestHooksFinishErrorWins(t *testing.T) {
	finishErr := errors.New("finish")
	hooks := &nrpc.Hooks{}
	hooks.OnFinish(func(context.Context, any, error) error { return finishErr })
	var second error
	hooks.OnFinish(func(_ context.Context, _ any, err error) error {
		second = err
		return nil
	})
	out, err := nrpc.ExecuteWithHooks(context.Background(), hooks, func(context.Context) (any, error) {
		return "ok", nil
	})
	assert.Nil(t, out)
	assert.Same(t, finishErr, err)
	assert.NoError(t, second, "runs before the failing hook")
}

func TestHooksSuccessFailureRunsErrorPhase(t *testing.T) {
	failed := errors.New("success hook failed")
	hooks := &nrpc.Hooks{}
	var errorHookSaw error
	hooks.OnError(func(_ context.Context, err error) error {
		errorHookSaw = err
		return nil
	})
	hooks.OnSuccess(func(context.Context, any) error { return failed })
	_, err := nrpc.ExecuteWithHooks(context.Background(), hooks, func(context.Context) (any, error) {
		return "ok", nil
	})
	assert.Same(t, failed, err)
	assert.Same(t, failed, errorHookSaw)
}

func TestHooksPanic(t *testing.T) {
	hooks := &nrpc.Hooks{}
	var ran bool
	hooks.OnSuccess(func(context.Context, any) error {
		ran = true
		return nil
	})
	hooks.OnSuccess(func(context.Context, any) error { panic("oops") })
	_, err := nrpc.ExecuteWithHooks(context.Background(), hooks, func(context.Context) (any, error) {
		return "ok", nil
	})
	assert.True(t, ran, "later hooks still run")
	assert.True(t, nrpc.IsCode(err, nrpc.InternalServerError))
}

func TestHooksUnsubscribe(t *testing.T) {
	hooks := &nrpc.Hooks{}
	var calls int
	unsubscribe := hooks.OnFinish(func(context.Context, any, error) error {
		calls++
		return nil
	})
	var keep int
	hooks.OnFinish(func(context.Context, any, error) error {
		keep++
		return nil
	})
	unsubscribe()
	unsubscribe()
	_, err := nrpc.ExecuteWithHooks(context.Background(), hooks, func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, keep, "double unsubscribe removes only one hook")
}

func TestHooksNil(t *testing.T) {
	out, err := nrpc.ExecuteWithHooks(context.Background(), nil, func(context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, out)
}
