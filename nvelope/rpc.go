package nvelope

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/muir/nrpc"
	"github.com/pkg/errors"
)

// ProtocolHeader is sent by clients of the internal protocol.  Its
// value is ProtocolName.
const (
	ProtocolHeader = "X-Nrpc-Protocol"
	ProtocolName   = "nrpc"
)

const (
	rawBlobName        = "blob"
	maxMultipartMemory = 32 << 20
)

type envelope struct {
	Data json.RawMessage `json:"data,omitempty"`
	Meta [][]any         `json:"meta,omitempty"`
}

type outEnvelope struct {
	Data any     `json:"data"`
	Meta [][]any `json:"meta,omitempty"`
}

// RPC is the internal protocol codec.  Values are sent as a JSON
// envelope of data plus meta describing the values that JSON cannot
// represent.  Values that include []byte or File are sent as
// multipart/form-data.
type RPC struct{}

var _ Codec = RPC{}

func (RPC) Name() string { return ProtocolName }

// DecodeRequest reads the envelope from the "data" and "meta" query
// parameters of GET requests and from the body of all others.
func (RPC) DecodeRequest(r *http.Request, _ nrpc.Schema) (any, error) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		q := r.URL.Query()
		data := q.Get("data")
		if data == "" {
			return nil, nil
		}
		var meta [][]any
		if m := q.Get("meta"); m != "" {
			if err := json.Unmarshal([]byte(m), &meta); err != nil {
				return nil, errors.Wrap(err, "decode meta query parameter")
			}
		}
		var v any
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, errors.Wrap(err, "decode data query parameter")
		}
		return applyMeta(v, meta)
	}
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	return Deserialize(r.Header.Get("Content-Type"), body)
}

func (RPC) EncodeResponse(_ *http.Request, output any) (Encoded, error) {
	return Serialize(output)
}

func (RPC) EncodeError(_ *http.Request, e *nrpc.Error) Encoded {
	enc, err := Serialize(e.JSON())
	if err != nil {
		// the error data could not be represented
		j := e.JSON()
		j.Data = nil
		enc, _ = Serialize(j)
	}
	return enc
}

// Serialize encodes v for the internal protocol.
func Serialize(v any) (Encoded, error) {
	var s serializer
	data, err := s.walk(v, nil)
	if err != nil {
		return Encoded{}, err
	}
	if len(s.blobs) == 0 {
		enc, err := json.Marshal(outEnvelope{Data: data, Meta: s.meta})
		if err != nil {
			return Encoded{}, errors.Wrap(err, "encode envelope")
		}
		return Encoded{ContentType: "application/json", Body: enc}, nil
	}
	return s.multipart(data)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (s *serializer) multipart(data any) (Encoded, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]any{
		"data": data,
		"meta": s.meta,
	}
	maps := make([][]any, len(s.blobs))
	for i, b := range s.blobs {
		maps[i] = b.path
		if maps[i] == nil {
			maps[i] = []any{}
		}
	}
	fields["maps"] = maps
	for _, name := range []string{"data", "meta", "maps"} {
		enc, err := json.Marshal(fields[name])
		if err != nil {
			return Encoded{}, errors.Wrapf(err, "encode %s", name)
		}
		if err := mw.WriteField(name, string(enc)); err != nil {
			return Encoded{}, errors.WithStack(err)
		}
	}
	for i, b := range s.blobs {
		name := b.file.Name
		if b.raw {
			name = rawBlobName
		} else if name == "" || name == rawBlobName {
			name = "file"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			`form-data; name="`+strconv.Itoa(i)+`"; filename="`+quoteEscaper.Replace(name)+`"`)
		h.Set("Content-Type", b.file.contentType())
		part, err := mw.CreatePart(h)
		if err != nil {
			return Encoded{}, errors.WithStack(err)
		}
		if _, err := part.Write(b.file.Data); err != nil {
			return Encoded{}, errors.WithStack(err)
		}
	}
	if err := mw.Close(); err != nil {
		return Encoded{}, errors.WithStack(err)
	}
	return Encoded{ContentType: mw.FormDataContentType(), Body: buf.Bytes()}, nil
}

// Deserialize decodes a body produced by Serialize.  An empty body is
// nil.
func Deserialize(contentType string, body []byte) (any, error) {
	mediaType, params, err := parseContentType(contentType)
	if err != nil {
		return nil, err
	}
	switch mediaType {
	case "", "application/json":
		if len(bytes.TrimSpace(body)) == 0 {
			return nil, nil
		}
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, errors.Wrap(err, "decode envelope")
		}
		var data any
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return nil, errors.Wrap(err, "decode data")
			}
		}
		return applyMeta(data, env.Meta)
	case "multipart/form-data":
		return deserializeMultipart(body, params["boundary"])
	default:
		return nil, UnsupportedContentType(contentType)
	}
}

func parseContentType(contentType string) (string, map[string]string, error) {
	if contentType == "" {
		return "", nil, nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", nil, errors.Wrapf(err, "parse content type %q", contentType)
	}
	return mediaType, params, nil
}

func deserializeMultipart(body []byte, boundary string) (any, error) {
	if boundary == "" {
		return nil, errors.New("multipart body without boundary")
	}
	form, err := multipart.NewReader(bytes.NewReader(body), boundary).ReadForm(maxMultipartMemory)
	if err != nil {
		return nil, errors.Wrap(err, "read multipart body")
	}
	defer func() { _ = form.RemoveAll() }()

	field := func(name string, target any) error {
		values := form.Value[name]
		if len(values) == 0 || values[0] == "" {
			return nil
		}
		return errors.Wrapf(json.Unmarshal([]byte(values[0]), target), "decode %s", name)
	}
	var (
		data any
		meta [][]any
		maps [][]any
	)
	if err := field("data", &data); err != nil {
		return nil, err
	}
	if err := field("meta", &meta); err != nil {
		return nil, err
	}
	if err := field("maps", &maps); err != nil {
		return nil, err
	}
	for i, path := range maps {
		headers := form.File[strconv.Itoa(i)]
		if len(headers) == 0 {
			return nil, errors.Errorf("missing file part %d", i)
		}
		v, err := readFilePart(headers[0])
		if err != nil {
			return nil, err
		}
		data, err = replaceAt(data, path, func(any) (any, error) { return v, nil })
		if err != nil {
			return nil, errors.Wrapf(err, "place file part %d", i)
		}
	}
	return applyMeta(data, meta)
}

func readFilePart(fh *multipart.FileHeader) (any, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "read file %q", fh.Filename)
	}
	if fh.Filename == rawBlobName {
		return data, nil
	}
	return &File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// ErrorFromData rebuilds an error from the decoded body of an internal
// protocol error response.  It returns false if v does not look like
// an error.
func ErrorFromData(v any) (*nrpc.Error, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	code, ok := m["code"].(string)
	if !ok {
		return nil, false
	}
	enc, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}
	var j nrpc.ErrorJSON
	if err := json.Unmarshal(enc, &j); err != nil {
		return nil, false
	}
	j.Code = nrpc.Code(code)
	j.Data = m["data"]
	return nrpc.ErrorFromJSON(j), true
}
