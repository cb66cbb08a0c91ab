package value

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// FromGo converts a native Go value into an owned Value.
//
// Conversion rules:
//   - nil and nil pointers become Null
//   - bool becomes Bool; every integer kind becomes Int; float32/float64 become Float
//   - []float32, []float64, []int32, []int64, []uint8 and []bool become 1-D arrays
//   - Values (including *Array) are cloned
//   - other slices and Go arrays become List; string-keyed maps become Map
//
// Backend handles fail with *HandleError. Everything else (strings, structs,
// channels, funcs, complex numbers) fails with *UnsupportedTypeError.
func FromGo(v any) (Value, error) {
	return fromGo(v, "")
}

// FromGoAll converts a positional sequence, labelling errors with
// name[index], e.g. "inputs[1]".
func FromGoAll(name string, vals []any) ([]Value, error) {
	out := make([]Value, len(vals))
	for i, v := range vals {
		conv, err := fromGo(v, fmt.Sprintf("%s[%d]", name, i))
		if err != nil {
			return nil, err
		}
		out[i] = conv
	}
	return out, nil
}

func fromGo(v any, path string) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Handle:
		return nil, &HandleError{Type: fmt.Sprintf("%T", v), Path: path}
	case *Array:
		if val == nil {
			return Null{}, nil
		}
		return val.Clone(), nil
	case Value:
		return val.Clone(), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint(uint64(val), path)
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return fromUint(val, path)
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case []float32:
		return Vector(val), nil
	case []float64:
		return Vector(val), nil
	case []int32:
		return Vector(val), nil
	case []int64:
		return Vector(val), nil
	case []uint8:
		return Vector(val), nil
	case []bool:
		return Vector(val), nil
	}
	return fromReflect(reflect.ValueOf(v), path)
}

func fromUint(u uint64, path string) (Value, error) {
	if u > math.MaxInt64 {
		return nil, fmt.Errorf("integer %d at %q overflows int64", u, path)
	}
	return Int(u), nil
}

// fromReflect handles named types and generic containers.
func fromReflect(rv reflect.Value, path string) (Value, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return fromGo(rv.Elem().Interface(), path)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fromUint(rv.Uint(), path)
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return List{}, nil
		}
		out := make(List, rv.Len())
		for i := range out {
			elem, err := fromGo(rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out[i] = elem
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, &UnsupportedTypeError{Type: rv.Type().String(), Path: path}
		}
		out := make(Map, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			elem, err := fromGo(iter.Value().Interface(), path+"["+strconv.Quote(k)+"]")
			if err != nil {
				return nil, err
			}
			out[k] = elem
		}
		return out, nil
	default:
		return nil, &UnsupportedTypeError{Type: rv.Type().String(), Path: path}
	}
}
