// Package structschema validates procedure input and output by
// decoding it into a Go type.  Handlers receive the decoded value.
//
// Fields tagged
//
//	nrpc:"required"
//
// must not be zero.  If *T has a Validate() error method, it runs
// last.
package structschema

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/muir/nrpc"
	"github.com/muir/nrpc/nvelope"
	"github.com/muir/reflectutils"
	"github.com/pkg/errors"
)

// Validator is implemented by types that check themselves.
type Validator interface {
	Validate() error
}

// Schema is an nrpc.Schema and nrpc.Coercer for T.
type Schema[T any] struct {
	typ      reflect.Type
	required []requiredField
	strict   bool
}

type requiredField struct {
	path  []any
	index []int
}

// Opt are functional arguments for For
type Opt func(*options)

type options struct {
	strict bool
}

// Strict rejects object keys that T has no field for.
func Strict() Opt {
	return func(o *options) {
		o.strict = true
	}
}

// For builds the schema of T.  T must be a struct type.
func For[T any](opts ...Opt) *Schema[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("structschema: %s is not a struct", t))
	}
	return &Schema[T]{
		typ:      t,
		required: requiredFields(t),
		strict:   o.strict,
	}
}

func requiredFields(t reflect.Type) []requiredField {
	var required []requiredField
	paths := make(map[string][]any)
	reflectutils.WalkStructElements(t, func(f reflect.StructField) bool {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || !f.IsExported() {
			return false
		}
		parent := paths[indexKey(f.Index[:len(f.Index)-1])]
		path := parent
		if !f.Anonymous || name != "" {
			if name == "" {
				name = f.Name
			}
			path = append(append([]any(nil), parent...), name)
		}
		paths[indexKey(f.Index)] = path
		for _, opt := range strings.Split(f.Tag.Get("nrpc"), ",") {
			if strings.TrimSpace(opt) == "required" {
				required = append(required, requiredField{path: path, index: f.Index})
			}
		}
		return true
	})
	return required
}

func indexKey(index []int) string {
	parts := make([]string, len(index))
	for i, n := range index {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Validate decodes value into a T.  A value that already is a T or
// *T is not decoded.  The result's Value is a T.
func (s *Schema[T]) Validate(_ context.Context, value any) (nrpc.ValidationResult, error) {
	var t T
	switch v := value.(type) {
	case T:
		t = v
	case *T:
		if v != nil {
			t = *v
		}
	default:
		raw, err := json.Marshal(value)
		if err != nil {
			return nrpc.ValidationResult{}, errors.Wrap(err, "re-encode value")
		}
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		if s.strict {
			dec.DisallowUnknownFields()
		}
		if err := dec.Decode(&t); err != nil {
			return nrpc.ValidationResult{Issues: []nrpc.Issue{decodeIssue(err)}}, nil
		}
	}

	var issues []nrpc.Issue
	rv := reflect.ValueOf(&t).Elem()
	for _, rf := range s.required {
		fv, err := rv.FieldByIndexErr(rf.index)
		if err != nil || fv.IsZero() {
			issues = append(issues, nrpc.Issue{
				Path:    rf.path,
				Message: "is required",
				Code:    "required",
			})
		}
	}
	if len(issues) > 0 {
		return nrpc.ValidationResult{Issues: issues}, nil
	}
	if v, ok := any(&t).(Validator); ok {
		if err := v.Validate(); err != nil {
			var e *nrpc.Error
			if errors.As(err, &e) && len(e.Issues()) > 0 {
				return nrpc.ValidationResult{Issues: e.Issues()}, nil
			}
			return nrpc.ValidationResult{Issues: []nrpc.Issue{{
				Path:    []any{},
				Message: err.Error(),
				Code:    "custom",
			}}}, nil
		}
	}
	return nrpc.ValidationResult{Value: t}, nil
}

func decodeIssue(err error) nrpc.Issue {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := []any{}
		if typeErr.Field != "" {
			for _, p := range strings.Split(typeErr.Field, ".") {
				path = append(path, p)
			}
		}
		return nrpc.Issue{
			Path:    path,
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
			Code:    "invalid_type",
		}
	}
	if name, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		unquoted, uerr := strconv.Unquote(name)
		if uerr != nil {
			unquoted = name
		}
		return nrpc.Issue{
			Path:    []any{unquoted},
			Message: "unknown field",
			Code:    "unrecognized_keys",
		}
	}
	return nrpc.Issue{Path: []any{}, Message: err.Error(), Code: "invalid"}
}

// Coerce converts form values toward T.
func (s *Schema[T]) Coerce(value any) any {
	return nvelope.Coerce(s.typ, value)
}
