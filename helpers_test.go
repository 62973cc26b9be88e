package nrpc_test

import (
	"context"
	"strconv"

	"github.com/muir/nrpc"
)

// stringFields is a schema that requires the named fields of a map to
// be strings.  It coerces nothing.
func stringFields(fields ...string) nrpc.Schema {
	return nrpc.SchemaFunc(func(_ context.Context, value any) (nrpc.ValidationResult, error) {
		m, ok := value.(map[string]any)
		if !ok {
			return nrpc.ValidationResult{Issues: []nrpc.Issue{{Message: "expected object", Code: "type"}}}, nil
		}
		var issues []nrpc.Issue
		for _, f := range fields {
			if _, ok := m[f].(string); !ok {
				issues = append(issues, nrpc.Issue{
					Path:    []any{f},
					Message: f + " must be a string",
					Code:    "type",
				})
			}
		}
		if len(issues) > 0 {
			return nrpc.ValidationResult{Issues: issues}, nil
		}
		return nrpc.ValidationResult{Value: value}, nil
	})
}

// intSchema accepts maps and converts the "id" field to an int.  It
// also implements nrpc.Coercer.
type intSchema struct{}

func (intSchema) Validate(_ context.Context, value any) (nrpc.ValidationResult, error) {
	m, ok := value.(map[string]any)
	if !ok {
		return nrpc.ValidationResult{Issues: []nrpc.Issue{{Message: "expected object"}}}, nil
	}
	if _, ok := m["id"].(int); !ok {
		return nrpc.ValidationResult{Issues: []nrpc.Issue{{Path: []any{"id"}, Message: "expected int"}}}, nil
	}
	return nrpc.ValidationResult{Value: m}, nil
}

func (intSchema) Coerce(value any) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	if s, ok := m["id"].(string); ok {
		if i, err := strconv.Atoi(s); err == nil {
			m["id"] = i
		}
	}
	return m
}

func echo(_ context.Context, input any, _ nrpc.Context, _ nrpc.Meta) (any, error) {
	return input, nil
}

func constant(v any) nrpc.Handler {
	return func(context.Context, any, nrpc.Context, nrpc.Meta) (any, error) {
		return v, nil
	}
}

func lazyValue(v any, count *int) nrpc.Lazy {
	return nrpc.LazyFunc(func(context.Context) (any, error) {
		if count != nil {
			*count++
		}
		return v, nil
	})
}
