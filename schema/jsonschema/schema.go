// Package jsonschema validates procedure input and output with JSON
// Schema documents.
package jsonschema

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/muir/nrpc"
	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Schema is an nrpc.Schema and nrpc.Coercer.
type Schema struct {
	compiled *gojsonschema.Schema
	doc      map[string]any
}

var (
	_ nrpc.Schema  = &Schema{}
	_ nrpc.Coercer = &Schema{}
)

// New compiles a schema document.  document may be a JSON string,
// []byte, or a Go value that marshals to the document.
func New(document any) (*Schema, error) {
	var raw []byte
	switch d := document.(type) {
	case string:
		raw = []byte(d)
	case []byte:
		raw = d
	default:
		var err error
		raw, err = json.Marshal(d)
		if err != nil {
			return nil, errors.Wrap(err, "encode schema document")
		}
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "compile schema")
	}
	s := &Schema{compiled: compiled}
	if err := json.Unmarshal(raw, &s.doc); err != nil {
		return nil, errors.Wrap(err, "decode schema document")
	}
	return s, nil
}

// MustNew is New for schemas that are known to be good.
func MustNew(document any) *Schema {
	s, err := New(document)
	if err != nil {
		panic(err.Error())
	}
	return s
}

// Validate checks value.  The value itself is passed through
// unchanged when it is valid.
func (s *Schema) Validate(_ context.Context, value any) (nrpc.ValidationResult, error) {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return nrpc.ValidationResult{}, nrpc.NewError(nrpc.BadRequest,
			nrpc.WithMessage("value cannot be checked against the schema"),
			nrpc.WithCause(errors.Wrap(err, "validate")))
	}
	if result.Valid() {
		return nrpc.ValidationResult{Value: value}, nil
	}
	issues := make([]nrpc.Issue, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		path := fieldPath(re.Field())
		if re.Type() == "required" {
			p, ok := re.Details()["property"].(string)
			if ok && (len(path) == 0 || path[len(path)-1] != p) {
				path = append(path, p)
			}
		}
		issues = append(issues, nrpc.Issue{
			Path:    path,
			Message: re.Description(),
			Code:    re.Type(),
		})
	}
	return nrpc.ValidationResult{Issues: issues}, nil
}

// fieldPath converts "items.0.name" to ["items", 0, "name"].
func fieldPath(field string) []any {
	if field == "" || field == gojsonschema.STRING_CONTEXT_ROOT {
		return []any{}
	}
	field = strings.TrimPrefix(field, gojsonschema.STRING_CONTEXT_ROOT+".")
	parts := strings.Split(field, ".")
	path := make([]any, len(parts))
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			path[i] = n
		} else {
			path[i] = p
		}
	}
	return path
}
