package nserve_test

import (
	"fmt"
	"testing"

	"github.com/muir/nrpc/nserve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookOrder(t *testing.T) {
	var calls []string
	up := nserve.NewHook("up", nserve.ForwardOrder)
	down := nserve.NewHook("down", nserve.ReverseOrder)
	app, err := nserve.CreateApp("order", func(app *nserve.App) {
		for _, name := range []string{"a", "b", "c"} {
			app.On(up, func() { calls = append(calls, "up "+name) })
			app.On(down, func() { calls = append(calls, "down "+name) })
		}
	})
	require.NoError(t, err)
	require.NoError(t, app.Do(up))
	require.NoError(t, app.Do(down))
	assert.Equal(t, []string{"up a", "up b", "up c", "down c", "down b", "down a"}, calls)
}

func TestHookErrors(t *testing.T) {
	var calls []string
	fail := nserve.NewHook("fail", nserve.ForwardOrder)
	cleanup := nserve.NewHook("cleanup", nserve.ForwardOrder).ContinuePastError(true)
	fail.OnError(cleanup)
	keepGoing := fail.Copy().ContinuePastError(true)
	assert.NotEqual(t, fail.ID, keepGoing.ID)

	app, err := nserve.CreateApp("errors", func() {})
	require.NoError(t, err)
	for _, h := range []*nserve.Hook{fail, keepGoing} {
		app.On(h, func() error { calls = append(calls, "first"); return fmt.Errorf("first") })
		app.On(h, func() error { calls = append(calls, "second"); return fmt.Errorf("second") })
	}
	app.On(cleanup, func() { calls = append(calls, "cleanup") })

	err = app.Do(fail)
	assert.EqualError(t, err, "first")
	assert.Equal(t, []string{"first", "cleanup"}, calls)

	calls = nil
	err = app.Do(keepGoing)
	assert.EqualError(t, err, "first", "without a combiner the first error wins")
	assert.Equal(t, []string{"first", "second", "cleanup"}, calls)
}
