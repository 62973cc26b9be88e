package nvelope

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/muir/nrpc"
	"github.com/munnerz/goautoneg"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Decoder is the signature for body decoders: take bytes and
// decode into the pointer.
type Decoder func([]byte, interface{}) error

// Encoder is the signature for response encoders.
type Encoder func(interface{}) ([]byte, error)

// OpenAPIOpt are options for NewOpenAPI
type OpenAPIOpt func(*OpenAPI)

// OpenAPI is the codec for plain HTTP clients.  Inputs come from the
// query string for GET and HEAD and from the body, by Content-Type,
// for other methods.  Form inputs use bracket notation.
type OpenAPI struct {
	decoders           map[string]Decoder
	encoders           map[string]Encoder
	offers             []string
	defaultContentType string
}

var _ Codec = (*OpenAPI)(nil)

var yamlTypes = []string{"application/yaml", "application/x-yaml", "text/yaml"}

// WithDecoder maps a content type (eg "application/json") to a
// body decoder.  The value decoded into is an *interface{}.
func WithDecoder(contentType string, decoder Decoder) OpenAPIOpt {
	return func(o *OpenAPI) {
		o.decoders[contentType] = decoder
	}
}

// WithEncoder adds a response content type that clients can ask for
// with Accept.
func WithEncoder(contentType string, encoder Encoder) OpenAPIOpt {
	return func(o *OpenAPI) {
		if _, ok := o.encoders[contentType]; !ok {
			o.offers = append(o.offers, contentType)
		}
		o.encoders[contentType] = encoder
	}
}

// WithDefaultContentType specifies which decoder to use when the
// request has a body but no Content-Type.  The default is
// "application/json".
func WithDefaultContentType(contentType string) OpenAPIOpt {
	return func(o *OpenAPI) {
		o.defaultContentType = contentType
	}
}

// NewOpenAPI creates the codec.  JSON and YAML are supported in both
// directions and JSON is preferred when the client does not care.
func NewOpenAPI(opts ...OpenAPIOpt) *OpenAPI {
	o := &OpenAPI{
		decoders: map[string]Decoder{
			"application/json": json.Unmarshal,
		},
		encoders: map[string]Encoder{
			"application/json": json.Marshal,
		},
		offers:             []string{"application/json"},
		defaultContentType: "application/json",
	}
	for _, ct := range yamlTypes {
		o.decoders[ct] = yaml.Unmarshal
		o.encoders[ct] = yaml.Marshal
		o.offers = append(o.offers, ct)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *OpenAPI) Name() string { return "openapi" }

func (o *OpenAPI) DecodeRequest(r *http.Request, schema nrpc.Schema) (any, error) {
	var (
		v    any
		form bool
		err  error
	)
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		v, err = DecodeBracketValues(r.URL.Query())
		form = true
	} else {
		v, form, err = o.decodeBody(r)
	}
	if err != nil {
		return nil, err
	}
	if c, ok := schema.(nrpc.Coercer); ok && form && v != nil {
		v = c.Coerce(v)
	}
	return v, nil
}

func (o *OpenAPI) decodeBody(r *http.Request) (any, bool, error) {
	if r.Body == nil {
		return nil, false, nil
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = o.defaultContentType
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, false, errors.Wrapf(err, "parse content type %q", contentType)
	}
	if mediaType == "multipart/form-data" {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, false, errors.New("multipart body without boundary")
		}
		mf, err := multipart.NewReader(r.Body, boundary).ReadForm(maxMultipartMemory)
		if err != nil {
			return nil, false, errors.Wrap(err, "read multipart body")
		}
		defer func() { _ = mf.RemoveAll() }()
		v, err := DecodeBracketForm(mf)
		return v, true, err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, errors.Wrap(err, "read request body")
	}
	if len(body) == 0 {
		return nil, false, nil
	}
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, false, errors.Wrap(err, "parse form body")
		}
		v, err := DecodeBracketValues(values)
		return v, true, err
	case "text/plain":
		return string(body), false, nil
	case "application/octet-stream":
		f := &File{ContentType: mediaType, Data: body}
		if _, dp, err := mime.ParseMediaType(r.Header.Get("Content-Disposition")); err == nil {
			f.Name = dp["filename"]
		}
		return f, false, nil
	}
	decoder, ok := o.decoders[mediaType]
	if !ok && strings.HasSuffix(mediaType, "+json") {
		decoder, ok = json.Unmarshal, true
	}
	if !ok {
		return nil, false, UnsupportedContentType(contentType)
	}
	var v interface{}
	if err := decoder(body, &v); err != nil {
		return nil, false, errors.Wrapf(err, "decode %s body", mediaType)
	}
	return normalize(v), false, nil
}

// normalize converts the map[interface{}]interface{} values that
// yaml produces into map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[fmt.Sprint(k)] = normalize(e)
		}
		return m
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case []interface{}:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	default:
		return v
	}
}

// negotiate picks a response content type from offers.  A request
// without Accept gets the first offer.
func negotiate(r *http.Request, offers []string) (string, error) {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return offers[0], nil
	}
	ct := goautoneg.Negotiate(accept, offers)
	if ct == "" {
		return "", UnsupportedContentType(accept)
	}
	return ct, nil
}

// EncodeResponse sends nil as 204 No Content and files or []byte as
// the raw body.  Everything else is encoded with the best content type
// for the request's Accept header.
func (o *OpenAPI) EncodeResponse(r *http.Request, output any) (Encoded, error) {
	switch t := output.(type) {
	case nil:
		return Encoded{Status: http.StatusNoContent}, nil
	case []byte:
		return raw(r, &File{Data: t})
	case File:
		return raw(r, &t)
	case *File:
		if t == nil {
			return Encoded{Status: http.StatusNoContent}, nil
		}
		return raw(r, t)
	}
	ct, err := negotiate(r, o.offers)
	if err != nil {
		return Encoded{}, err
	}
	body, err := o.encoders[ct](output)
	if err != nil {
		return Encoded{}, errors.Wrapf(err, "encode %s response", ct)
	}
	return Encoded{ContentType: ct, Body: body}, nil
}

func raw(r *http.Request, f *File) (Encoded, error) {
	ct := f.contentType()
	if _, err := negotiate(r, []string{ct}); err != nil {
		return Encoded{}, err
	}
	enc := Encoded{ContentType: ct, Body: f.Data}
	if f.Name != "" {
		enc.Header = http.Header{
			"Content-Disposition": {mime.FormatMediaType("inline", map[string]string{"filename": f.Name})},
		}
	}
	return enc, nil
}

// EncodeError sends the error's wire shape.  If the client accepts
// nothing that can be produced, JSON is sent anyway.
func (o *OpenAPI) EncodeError(r *http.Request, e *nrpc.Error) Encoded {
	ct, err := negotiate(r, o.offers)
	if err != nil {
		ct = "application/json"
	}
	j := e.JSON()
	body, err := o.encoders[ct](j)
	if err != nil {
		j.Data = nil
		body, _ = o.encoders[ct](j)
	}
	return Encoded{ContentType: ct, Body: body}
}
