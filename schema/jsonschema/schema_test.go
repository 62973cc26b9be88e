package jsonschema_test

import (
	"context"
	"math"
	"testing"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/schema/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name":  {"type": "string", "minLength": 1},
		"age":   {"type": "integer", "minimum": 0},
		"score": {"type": ["number", "null"]},
		"admin": {"type": "boolean"},
		"tags":  {"type": "array", "items": {"type": "string"}},
		"pets":  {"type": "array", "items": {
			"type": "object",
			"properties": {"legs": {"type": "integer"}}
		}}
	}
}`

func TestValidate(t *testing.T) {
	s, err := jsonschema.New(userSchema)
	require.NoError(t, err)
	ctx := context.Background()

	in := map[string]any{"name": "ann", "age": 3}
	res, err := s.Validate(ctx, in)
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
	assert.Equal(t, in, res.Value)

	res, err = s.Validate(ctx, map[string]any{"age": -1, "pets": []any{map[string]any{"legs": "four"}}})
	require.NoError(t, err)
	assert.Nil(t, res.Value)
	byCode := make(map[string][]any)
	for _, issue := range res.Issues {
		assert.NotEmpty(t, issue.Message)
		byCode[issue.Code] = issue.Path
	}
	require.Contains(t, byCode, "required")
	assert.Equal(t, "name", byCode["required"][len(byCode["required"])-1])
	assert.Equal(t, []any{"age"}, byCode["number_gte"])
	assert.Equal(t, []any{"pets", 0, "legs"}, byCode["invalid_type"])
}

func TestValidateUnrepresentable(t *testing.T) {
	s, err := jsonschema.New(userSchema)
	require.NoError(t, err)
	_, err = s.Validate(context.Background(), map[string]any{"name": "ann", "score": math.NaN()})
	require.Error(t, err)
	assert.True(t, nrpc.IsCode(err, nrpc.BadRequest), "%v", err)
}

func TestNewErrors(t *testing.T) {
	_, err := jsonschema.New(`{"type": 7}`)
	assert.Error(t, err)
	_, err = jsonschema.New(`{`)
	assert.Error(t, err)
	assert.Panics(t, func() { jsonschema.MustNew(`{`) })

	s := jsonschema.MustNew(map[string]any{"type": "string"})
	res, err := s.Validate(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, res.Issues, 1)
}

func TestCoerce(t *testing.T) {
	s := jsonschema.MustNew(userSchema)
	got := s.Coerce(map[string]any{
		"name":  "7",
		"age":   "42",
		"score": "",
		"admin": "on",
		"tags":  "solo",
		"pets":  []any{map[string]any{"legs": "4"}},
		"other": "x",
	})
	assert.Equal(t, map[string]any{
		"name":  "7",
		"age":   int64(42),
		"score": nil,
		"admin": true,
		"tags":  []any{"solo"},
		"pets":  []any{map[string]any{"legs": int64(4)}},
		"other": "x",
	}, got)

	assert.Equal(t, "nope", s.Coerce("nope"), "not an object")
	assert.Equal(t, map[string]any{"age": "old"}, s.Coerce(map[string]any{"age": "old"}), "left for validation")

	res, err := s.Validate(context.Background(), got)
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
}
