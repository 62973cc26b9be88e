package nvelope

import (
	"encoding/json"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/muir/reflectutils"
	"github.com/pkg/errors"
)

// Set is an unordered collection.  The internal protocol preserves the
// distinction between a Set and a list.
type Set []any

// Meta types of the internal protocol.  Each meta entry is a type
// followed by the path to the value it describes.
const (
	metaDate   = "date"
	metaBigInt = "bigint"
	metaNaN    = "nan"
	metaInf    = "inf"
	metaSet    = "set"
	metaMap    = "map"
	metaURL    = "url"
)

type blob struct {
	path []any
	file *File
	raw  bool
}

type serializer struct {
	meta  [][]any
	blobs []blob
}

func appendPath(path []any, seg any) []any {
	n := make([]any, len(path), len(path)+1)
	copy(n, path)
	return append(n, seg)
}

func (s *serializer) addMeta(kind string, path []any) {
	entry := make([]any, 0, len(path)+1)
	entry = append(entry, kind)
	s.meta = append(s.meta, append(entry, path...))
}

var (
	timeType        = reflect.TypeOf(time.Time{})
	jsonMarshalType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// walk converts v into something encoding/json can represent.  Values
// that JSON cannot represent are recorded in meta.  Meta for nested
// values is recorded before meta for their containers so that it can
// be applied in order.
func (s *serializer) walk(v any, path []any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return t, nil
	case float64:
		return s.float(t, path), nil
	case float32:
		return s.float(float64(t), path), nil
	case time.Time:
		s.addMeta(metaDate, path)
		return t.Format(time.RFC3339Nano), nil
	case *big.Int:
		if t == nil {
			return nil, nil
		}
		s.addMeta(metaBigInt, path)
		return t.String(), nil
	case *url.URL:
		if t == nil {
			return nil, nil
		}
		s.addMeta(metaURL, path)
		return t.String(), nil
	case []byte:
		s.blobs = append(s.blobs, blob{path: path, file: &File{Name: "blob", Data: t}, raw: true})
		return nil, nil
	case *File:
		if t == nil {
			return nil, nil
		}
		s.blobs = append(s.blobs, blob{path: path, file: t})
		return nil, nil
	case File:
		s.blobs = append(s.blobs, blob{path: path, file: &t})
		return nil, nil
	case Set:
		out := make([]any, len(t))
		for i, e := range t {
			w, err := s.walk(e, appendPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		s.addMeta(metaSet, path)
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			w, err := s.walk(e, appendPath(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			w, err := s.walk(e, appendPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	}
	return s.walkReflect(reflect.ValueOf(v), path)
}

func (s *serializer) float(f float64, path []any) any {
	switch {
	case math.IsNaN(f):
		s.addMeta(metaNaN, path)
		return nil
	case math.IsInf(f, 1):
		s.addMeta(metaInf, path)
		return "+Inf"
	case math.IsInf(f, -1):
		s.addMeta(metaInf, path)
		return "-Inf"
	default:
		return f
	}
}

func (s *serializer) walkReflect(v reflect.Value, path []any) (any, error) {
	if v.Kind() == reflect.Ptr && v.Type().Elem() == timeType {
		if v.IsNil() {
			return nil, nil
		}
		return s.walk(v.Elem().Interface(), path)
	}
	if v.Type().Implements(jsonMarshalType) && v.Type() != timeType {
		if v.Kind() == reflect.Ptr && v.IsNil() {
			return nil, nil
		}
		enc, err := v.Interface().(json.Marshaler).MarshalJSON()
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s", v.Type())
		}
		var decoded any
		if err := json.Unmarshal(enc, &decoded); err != nil {
			return nil, errors.Wrapf(err, "re-decode %s", v.Type())
		}
		return decoded, nil
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return s.walk(v.Elem().Interface(), path)
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return s.float(v.Float(), path), nil
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 && v.Kind() == reflect.Slice {
			return s.walk(v.Bytes(), path)
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			w, err := s.walk(v.Index(i).Interface(), appendPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Key().Kind() == reflect.String {
			out := make(map[string]any, v.Len())
			iter := v.MapRange()
			for iter.Next() {
				k := iter.Key().String()
				w, err := s.walk(iter.Value().Interface(), appendPath(path, k))
				if err != nil {
					return nil, err
				}
				out[k] = w
			}
			return out, nil
		}
		out := make([]any, 0, v.Len())
		iter := v.MapRange()
		i := 0
		for iter.Next() {
			k, err := s.walk(iter.Key().Interface(), appendPath(appendPath(path, i), 0))
			if err != nil {
				return nil, err
			}
			e, err := s.walk(iter.Value().Interface(), appendPath(appendPath(path, i), 1))
			if err != nil {
				return nil, err
			}
			out = append(out, []any{k, e})
			i++
		}
		s.addMeta(metaMap, path)
		return out, nil
	case reflect.Struct:
		fields := structFields(v.Type())
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			fv, err := v.FieldByIndexErr(f.index)
			if err != nil {
				// nil embedded pointer
				continue
			}
			if f.omitEmpty && fv.IsZero() {
				continue
			}
			w, err := s.walk(fv.Interface(), appendPath(path, f.name))
			if err != nil {
				return nil, err
			}
			out[f.name] = w
		}
		return out, nil
	default:
		return nil, errors.Errorf("cannot serialize %s", v.Type())
	}
}

type structField struct {
	name      string
	index     []int
	omitEmpty bool
}

var fieldCache sync.Map

// structFields lists the fields of t the way encoding/json names them.
// Untagged embedded structs contribute their fields.
func structFields(t reflect.Type) []structField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]structField)
	}
	var fields []structField
	seen := make(map[string]bool)
	reflectutils.WalkStructElements(t, func(f reflect.StructField) bool {
		tag, hasTag := f.Tag.Lookup("json")
		if tag == "-" {
			return false
		}
		name, opts, _ := strings.Cut(tag, ",")
		if f.Anonymous && name == "" {
			ft := f.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				return true
			}
		}
		if !f.IsExported() {
			return false
		}
		if !hasTag || name == "" {
			name = f.Name
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		fields = append(fields, structField{
			name:      name,
			index:     f.Index,
			omitEmpty: strings.Contains(","+opts+",", ",omitempty,"),
		})
		return false
	})
	fieldCache.Store(t, fields)
	return fields
}

// applyMeta rebuilds the values that walk recorded in meta.
func applyMeta(data any, meta [][]any) (any, error) {
	root := data
	for _, entry := range meta {
		if len(entry) == 0 {
			return nil, errors.New("empty meta entry")
		}
		kind, ok := entry[0].(string)
		if !ok {
			return nil, errors.Errorf("meta type %v is not a string", entry[0])
		}
		var err error
		root, err = replaceAt(root, entry[1:], func(v any) (any, error) {
			return restore(kind, v)
		})
		if err != nil {
			return nil, errors.Wrapf(err, "meta %s at %v", kind, entry[1:])
		}
	}
	return root, nil
}

func restore(kind string, v any) (any, error) {
	switch kind {
	case metaDate:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("date is %T", v)
		}
		return time.Parse(time.RFC3339Nano, s)
	case metaBigInt:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("bigint is %T", v)
		}
		b, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, errors.Errorf("invalid bigint %q", s)
		}
		return b, nil
	case metaNaN:
		return math.NaN(), nil
	case metaInf:
		if v == "-Inf" {
			return math.Inf(-1), nil
		}
		return math.Inf(1), nil
	case metaURL:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("url is %T", v)
		}
		return url.Parse(s)
	case metaSet:
		list, ok := v.([]any)
		if !ok {
			return nil, errors.Errorf("set is %T", v)
		}
		return Set(list), nil
	case metaMap:
		list, ok := v.([]any)
		if !ok {
			return nil, errors.Errorf("map is %T", v)
		}
		m := make(map[any]any, len(list))
		for _, e := range list {
			pair, ok := e.([]any)
			if !ok || len(pair) != 2 {
				return nil, errors.New("map entries must be pairs")
			}
			if pair[0] == nil || !reflect.TypeOf(pair[0]).Comparable() {
				return nil, errors.Errorf("map key of type %T is not comparable", pair[0])
			}
			m[pair[0]] = pair[1]
		}
		return m, nil
	default:
		return nil, errors.Errorf("unknown meta type %q", kind)
	}
}

// replaceAt replaces the value at path inside root.  Path segments are
// object keys (strings) or list indexes (JSON numbers).
func replaceAt(root any, path []any, fn func(any) (any, error)) (any, error) {
	if len(path) == 0 {
		return fn(root)
	}
	switch container := root.(type) {
	case map[string]any:
		key, ok := path[0].(string)
		if !ok {
			return nil, errors.Errorf("object key %v is not a string", path[0])
		}
		child, ok := container[key]
		if !ok {
			return nil, errors.Errorf("missing key %q", key)
		}
		n, err := replaceAt(child, path[1:], fn)
		if err != nil {
			return nil, err
		}
		container[key] = n
		return container, nil
	case []any:
		i, ok := pathIndex(path[0])
		if !ok || i < 0 || i >= len(container) {
			return nil, errors.Errorf("invalid index %v", path[0])
		}
		n, err := replaceAt(container[i], path[1:], fn)
		if err != nil {
			return nil, err
		}
		container[i] = n
		return container, nil
	default:
		return nil, errors.Errorf("cannot descend into %T", root)
	}
}

func pathIndex(seg any) (int, bool) {
	switch n := seg.(type) {
	case float64:
		return int(n), n == math.Trunc(n)
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}
