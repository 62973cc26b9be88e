package nvelope_test

import (
	"math"
	"math/big"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v any) any {
	enc, err := nvelope.Serialize(v)
	require.NoError(t, err)
	out, err := nvelope.Deserialize(enc.ContentType, enc.Body)
	require.NoError(t, err, string(enc.Body))
	return out
}

func TestRPCRoundTripEscapes(t *testing.T) {
	when := time.Date(2024, 3, 4, 5, 6, 7, 8, time.UTC)
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	u, err := url.Parse("https://example.com/a?b=c")
	require.NoError(t, err)

	out := roundTrip(t, map[string]any{
		"when":  when,
		"big":   huge,
		"nan":   math.NaN(),
		"inf":   math.Inf(-1),
		"set":   nvelope.Set{"a", when},
		"map":   map[int]string{1: "one"},
		"keyed": map[time.Time]int{when: 3},
		"url":   u,
		"list":  []any{1, "x", nil},
		"ptr":   &when,
		"noptr": (*time.Time)(nil),
	})
	m, ok := out.(map[string]any)
	require.True(t, ok, "%T", out)

	if got, ok := m["when"].(time.Time); assert.True(t, ok) {
		assert.True(t, when.Equal(got))
	}
	if got, ok := m["big"].(*big.Int); assert.True(t, ok) {
		assert.Equal(t, 0, huge.Cmp(got))
	}
	if got, ok := m["nan"].(float64); assert.True(t, ok) {
		assert.True(t, math.IsNaN(got))
	}
	assert.Equal(t, math.Inf(-1), m["inf"])
	if got, ok := m["set"].(nvelope.Set); assert.True(t, ok) {
		require.Len(t, got, 2)
		assert.Equal(t, "a", got[0])
		assert.IsType(t, time.Time{}, got[1])
	}
	assert.Equal(t, map[any]any{float64(1): "one"}, m["map"])
	if got, ok := m["keyed"].(map[any]any); assert.True(t, ok) {
		require.Len(t, got, 1)
		for k, v := range got {
			assert.IsType(t, time.Time{}, k)
			assert.Equal(t, float64(3), v)
		}
	}
	if got, ok := m["url"].(*url.URL); assert.True(t, ok) {
		assert.Equal(t, u.String(), got.String())
	}
	assert.Equal(t, []any{float64(1), "x", nil}, m["list"])
	if got, ok := m["ptr"].(time.Time); assert.True(t, ok, "%T", m["ptr"]) {
		assert.True(t, when.Equal(got))
	}
	assert.Nil(t, m["noptr"])
}

type Base struct {
	ID string `json:"id"`
}

type record struct {
	Base
	Name    string    `json:"name"`
	Skipped string    `json:"-"`
	Empty   int       `json:"empty,omitempty"`
	When    time.Time `json:"when"`
	Plain   bool
}

func TestRPCStructs(t *testing.T) {
	when := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	out := roundTrip(t, record{
		Base:    Base{ID: "r1"},
		Name:    "first",
		Skipped: "not sent",
		When:    when,
		Plain:   true,
	})
	assert.Equal(t, map[string]any{
		"id":    "r1",
		"name":  "first",
		"when":  when,
		"Plain": true,
	}, out)
}

func TestRPCBlobs(t *testing.T) {
	enc, err := nvelope.Serialize(map[string]any{
		"name": "upload",
		"raw":  []byte("hi"),
		"doc": &nvelope.File{
			Name:        "a.txt",
			ContentType: "text/plain",
			Data:        []byte("hello"),
		},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(enc.ContentType, "multipart/form-data; boundary="), enc.ContentType)

	out, err := nvelope.Deserialize(enc.ContentType, enc.Body)
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "upload", m["name"])
	assert.Equal(t, []byte("hi"), m["raw"])
	assert.Equal(t, &nvelope.File{Name: "a.txt", ContentType: "text/plain", Data: []byte("hello")}, m["doc"])
}

func TestRPCRootBlob(t *testing.T) {
	assert.Equal(t, []byte("just bytes"), roundTrip(t, []byte("just bytes")))
}

func TestRPCEmptyAndNil(t *testing.T) {
	assert.Nil(t, roundTrip(t, nil))

	out, err := nvelope.Deserialize("", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = nvelope.Deserialize("application/xml", []byte("<a/>"))
	assert.True(t, nvelope.IsUnsupportedContentType(err))

	_, err = nvelope.Deserialize("application/json", []byte(`{"data":1,"meta":[["date"]]}`))
	assert.Error(t, err, "date meta on a number")
}

func TestRPCDecodeRequest(t *testing.T) {
	codec := nvelope.RPC{}

	req := request("GET", "/x?data="+url.QueryEscape(`{"a":1}`)+"&meta="+url.QueryEscape(`[["set","s"]]`), "", "")
	_, err := codec.DecodeRequest(req, nil)
	assert.Error(t, err, "set meta for a missing key")

	req = request("GET", "/x?data="+url.QueryEscape(`{"s":["a"]}`)+"&meta="+url.QueryEscape(`[["set","s"]]`), "", "")
	v, err := codec.DecodeRequest(req, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"s": nvelope.Set{"a"}}, v)

	v, err = codec.DecodeRequest(request("GET", "/x", "", ""), nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = codec.DecodeRequest(request("POST", "/x", "application/json", `{"data":{"n":2}}`), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"n": float64(2)}, v)

	v, err = codec.DecodeRequest(request("POST", "/x", "", ""), nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestRPCErrors(t *testing.T) {
	codec := nvelope.RPC{}
	e := nrpc.NewError(nrpc.Conflict, nrpc.WithMessage("taken"))
	enc := codec.EncodeError(nil, e)
	assert.Equal(t, "application/json", enc.ContentType)
	assert.JSONEq(t, `{"data":{"code":"CONFLICT","status":409,"message":"taken"}}`, string(enc.Body))

	v, err := nvelope.Deserialize(enc.ContentType, enc.Body)
	require.NoError(t, err)
	got, ok := nvelope.ErrorFromData(v)
	require.True(t, ok)
	assert.Equal(t, nrpc.Conflict, got.Code())
	assert.Equal(t, 409, got.Status())
	assert.Equal(t, "taken", got.Message())

	_, ok = nvelope.ErrorFromData(map[string]any{"name": "x"})
	assert.False(t, ok)

	_, err = nvelope.Deserialize("application/json", []byte(`{"data":[[null,1]],"meta":[["map"]]}`))
	assert.Error(t, err, "null map key")
	_, err = nvelope.Deserialize("application/json", []byte(`{"data":[[[1],1]],"meta":[["map"]]}`))
	assert.Error(t, err, "list map key")
}

func TestRPCErrorWithUnencodableData(t *testing.T) {
	e := nrpc.NewError(nrpc.BadRequest, nrpc.WithData(make(chan int)))
	enc := nvelope.RPC{}.EncodeError(nil, e)
	assert.JSONEq(t, `{"data":{"code":"BAD_REQUEST","status":400,"message":"Bad request"}}`, string(enc.Body))
}
