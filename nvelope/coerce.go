package nvelope

import (
	"encoding"
	"reflect"
	"strconv"
	"sync"
)

var textUnmarshallerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

type coercer func(v any) any

var (
	coercerCache sync.Map
	coercerBuild sync.Mutex
)

// Coerce converts form values, which are strings, lists and objects,
// toward the shape that a value of type t would have after a JSON
// round trip: "7" becomes int64(7) for an int field and a single
// string becomes a one element list for a slice field.  Values that
// cannot be converted are returned unchanged so that validation can
// report them.
func Coerce(t reflect.Type, v any) any {
	return getCoercer(t)(v)
}

func getCoercer(t reflect.Type) coercer {
	if c, ok := coercerCache.Load(t); ok {
		return c.(coercer)
	}
	coercerBuild.Lock()
	defer coercerBuild.Unlock()
	return (&coercerBuilder{building: make(map[reflect.Type]*coercer)}).get(t)
}

// coercerBuilder is used with coercerBuild held.  Recursive types
// refer back to themselves through the building map.
type coercerBuilder struct {
	building map[reflect.Type]*coercer
}

func (b *coercerBuilder) get(t reflect.Type) coercer {
	if c, ok := coercerCache.Load(t); ok {
		return c.(coercer)
	}
	if p, ok := b.building[t]; ok {
		return func(v any) any { return (*p)(v) }
	}
	p := new(coercer)
	b.building[t] = p
	*p = b.make(t)
	delete(b.building, t)
	coercerCache.Store(t, *p)
	return *p
}

func identity(v any) any { return v }

// fromString wraps a string conversion.  Non-string values and
// conversion failures pass through.
func fromString[T any](parse func(string) (T, error)) coercer {
	return func(v any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		r, err := parse(s)
		if err != nil {
			return v
		}
		return r
	}
}

func (b *coercerBuilder) make(t reflect.Type) coercer {
	if t.Implements(textUnmarshallerType) || reflect.PtrTo(t).Implements(textUnmarshallerType) {
		// decoded from its string form later
		return identity
	}
	switch t.Kind() {
	case reflect.Ptr:
		return b.get(t.Elem())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fromString(func(s string) (int64, error) {
			return strconv.ParseInt(s, 10, t.Bits())
		})
	case reflect.Uint, reflect.Uintptr, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fromString(func(s string) (uint64, error) {
			return strconv.ParseUint(s, 10, t.Bits())
		})
	case reflect.Float32, reflect.Float64:
		return fromString(func(s string) (float64, error) {
			return strconv.ParseFloat(s, t.Bits())
		})
	case reflect.Bool:
		return fromString(strconv.ParseBool)
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return identity
		}
		elem := b.get(t.Elem())
		return func(v any) any {
			switch list := v.(type) {
			case []any:
				out := make([]any, len(list))
				for i, e := range list {
					out[i] = elem(e)
				}
				return out
			case map[string]any:
				return v
			case nil:
				return nil
			default:
				return []any{elem(v)}
			}
		}
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return identity
		}
		elem := b.get(t.Elem())
		return func(v any) any {
			m, ok := v.(map[string]any)
			if !ok {
				return v
			}
			out := make(map[string]any, len(m))
			for k, e := range m {
				out[k] = elem(e)
			}
			return out
		}
	case reflect.Struct:
		fields := structFields(t)
		byName := make(map[string]coercer, len(fields))
		for _, f := range fields {
			byName[f.name] = b.get(t.FieldByIndex(f.index).Type)
		}
		return func(v any) any {
			m, ok := v.(map[string]any)
			if !ok {
				return v
			}
			out := make(map[string]any, len(m))
			for k, e := range m {
				if c, ok := byName[k]; ok {
					out[k] = c(e)
				} else {
					out[k] = e
				}
			}
			return out
		}
	default:
		return identity
	}
}
