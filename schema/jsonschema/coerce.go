package jsonschema

import (
	"strconv"
)

// Coerce converts form values toward the types the document declares.
// Only "type", "properties", "additionalProperties", and "items" are
// consulted.  Values that do not convert are left for Validate to
// report.
func (s *Schema) Coerce(value any) any {
	return coerce(s.doc, value)
}

func coerce(node map[string]any, value any) any {
	if node == nil {
		return value
	}
	for _, t := range types(node) {
		if v, ok := coerceTo(t, node, value); ok {
			return v
		}
	}
	return value
}

// types lists the declared types.  "null" is tried last so that an
// empty string for a nullable number becomes nil only when nothing
// else fits.
func types(node map[string]any) []string {
	var list []string
	switch t := node["type"].(type) {
	case string:
		list = []string{t}
	case []any:
		var null bool
		for _, e := range t {
			if s, ok := e.(string); ok {
				if s == "null" {
					null = true
					continue
				}
				list = append(list, s)
			}
		}
		if null {
			list = append(list, "null")
		}
	}
	return list
}

func coerceTo(t string, node map[string]any, value any) (any, bool) {
	switch t {
	case "integer":
		if s, ok := value.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, true
			}
		}
	case "number":
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	case "boolean":
		if s, ok := value.(string); ok {
			switch s {
			case "true", "on", "1":
				return true, true
			case "false", "off", "0", "":
				return false, true
			}
		}
	case "null":
		if s, ok := value.(string); ok && s == "" {
			return nil, true
		}
	case "array":
		items, _ := node["items"].(map[string]any)
		switch v := value.(type) {
		case []any:
			out := make([]any, len(v))
			for i, e := range v {
				out[i] = coerce(items, e)
			}
			return out, true
		case map[string]any, nil:
		default:
			return []any{coerce(items, v)}, true
		}
	case "object":
		m, ok := value.(map[string]any)
		if !ok {
			return nil, false
		}
		props, _ := node["properties"].(map[string]any)
		extra, _ := node["additionalProperties"].(map[string]any)
		out := make(map[string]any, len(m))
		for k, v := range m {
			if p, ok := props[k].(map[string]any); ok {
				out[k] = coerce(p, v)
			} else {
				out[k] = coerce(extra, v)
			}
		}
		return out, true
	case "string":
		if _, ok := value.(string); ok {
			return value, true
		}
	}
	return nil, false
}
