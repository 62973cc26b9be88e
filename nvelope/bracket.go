package nvelope

import (
	"mime/multipart"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseBracketKey splits a form key in bracket notation into its path:
// "a[b][0]" is ["a", "b", "0"] and "a[]" is ["a", ""].  Keys without
// brackets are a single segment.
func ParseBracketKey(key string) ([]string, error) {
	i := strings.IndexByte(key, '[')
	if i == -1 {
		return []string{key}, nil
	}
	path := []string{key[:i]}
	rest := key[i:]
	for rest != "" {
		if rest[0] != '[' {
			return nil, errors.Errorf("invalid bracket key %q", key)
		}
		end := strings.IndexByte(rest, ']')
		if end == -1 {
			return nil, errors.Errorf("unterminated bracket in %q", key)
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path, nil
}

// bracketBuilder accumulates form values into nested objects.  Lists
// are built as objects with numeric keys and converted at the end.
type bracketBuilder struct {
	root map[string]any
}

func newBracketBuilder() *bracketBuilder {
	return &bracketBuilder{root: make(map[string]any)}
}

func (b *bracketBuilder) add(key string, value any) error {
	path, err := ParseBracketKey(key)
	if err != nil {
		return err
	}
	node := b.root
	for i, seg := range path {
		last := i == len(path)-1
		if seg == "" && i > 0 {
			seg = strconv.Itoa(len(node))
		}
		if last {
			existing, ok := node[seg]
			switch {
			case !ok:
				node[seg] = value
			case isRepeat(existing):
				node[seg] = append(existing.(repeated), value)
			default:
				if _, isObject := existing.(map[string]any); isObject {
					return errors.Errorf("form key %q conflicts with nested keys", key)
				}
				node[seg] = repeated{existing, value}
			}
			return nil
		}
		child, ok := node[seg]
		if !ok {
			next := make(map[string]any)
			node[seg] = next
			node = next
			continue
		}
		next, isObject := child.(map[string]any)
		if !isObject {
			return errors.Errorf("form key %q conflicts with a plain value", key)
		}
		node = next
	}
	return nil
}

// repeated marks values from a repeated key.
type repeated []any

func isRepeat(v any) bool {
	_, ok := v.(repeated)
	return ok
}

func (b *bracketBuilder) value() map[string]any {
	return finish(b.root).(map[string]any)
}

// finish converts repeated values to lists and objects whose keys are
// exactly 0..n-1 to lists.  The root stays an object.
func finish(v any) any {
	switch t := v.(type) {
	case repeated:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = finish(e)
		}
		return out
	case map[string]any:
		for k, e := range t {
			t[k] = finish(e)
		}
		return t
	default:
		return v
	}
}

func listify(v any, root bool) any {
	switch t := v.(type) {
	case []any:
		for i, e := range t {
			t[i] = listify(e, false)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = listify(e, false)
		}
		if root || len(t) == 0 {
			return t
		}
		keys := make([]int, 0, len(t))
		for k := range t {
			n, err := strconv.Atoi(k)
			if err != nil || n < 0 || strconv.Itoa(n) != k {
				return t
			}
			keys = append(keys, n)
		}
		sort.Ints(keys)
		for i, n := range keys {
			if i != n {
				return t
			}
		}
		out := make([]any, len(keys))
		for _, n := range keys {
			out[n] = t[strconv.Itoa(n)]
		}
		return out
	default:
		return v
	}
}

// DecodeBracketValues builds a nested value from url.Values using
// bracket notation.  Keys are processed in sorted order so that
// appended list entries are deterministic.  An empty set of values is
// nil.
func DecodeBracketValues(values url.Values) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	b := newBracketBuilder()
	for _, key := range sortedKeys(values) {
		for _, v := range values[key] {
			if err := b.add(key, v); err != nil {
				return nil, err
			}
		}
	}
	return listify(b.value(), true), nil
}

// DecodeBracketForm is DecodeBracketValues for multipart forms.  File
// parts become *File values.
func DecodeBracketForm(form *multipart.Form) (any, error) {
	if form == nil || (len(form.Value) == 0 && len(form.File) == 0) {
		return nil, nil
	}
	b := newBracketBuilder()
	for _, key := range sortedKeys(form.Value) {
		for _, v := range form.Value[key] {
			if err := b.add(key, v); err != nil {
				return nil, err
			}
		}
	}
	for _, key := range sortedKeys(form.File) {
		for _, fh := range form.File[key] {
			f, err := readFilePart(fh)
			if err != nil {
				return nil, err
			}
			if raw, ok := f.([]byte); ok {
				f = &File{Name: fh.Filename, ContentType: fh.Header.Get("Content-Type"), Data: raw}
			}
			if err := b.add(key, f); err != nil {
				return nil, err
			}
		}
	}
	return listify(b.value(), true), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
