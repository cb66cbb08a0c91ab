package value

import "fmt"

// Element constrains the Go types that can back an Array.
type Element interface {
	float32 | float64 | int32 | int64 | uint8 | bool
}

// DataType is the element type of an Array.
type DataType int

// Supported array element types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool8
)

// Size returns the byte size of one element.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool8:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns the numpy-style dtype name.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool8:
		return "bool"
	default:
		return "unknown"
	}
}

// Abbrev returns the short element name used in serialized call arguments,
// e.g. "f32" in "2x2xf32=1 2 3 4".
func (dt DataType) Abbrev() string {
	switch dt {
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Uint8:
		return "ui8"
	case Bool8:
		return "i1"
	default:
		return "unknown"
	}
}

// IsFloating reports whether comparisons use tolerances.
func (dt DataType) IsFloating() bool {
	return dt == Float32 || dt == Float64
}

// IsInteger reports whether the type holds integers (exact comparison).
func (dt DataType) IsInteger() bool {
	return dt == Int32 || dt == Int64 || dt == Uint8
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "float32":
		return Float32, nil
	case "float64":
		return Float64, nil
	case "int32":
		return Int32, nil
	case "int64":
		return Int64, nil
	case "uint8":
		return Uint8, nil
	case "bool":
		return Bool8, nil
	default:
		return 0, fmt.Errorf("unknown dtype %q", s)
	}
}

// dataTypeOf infers the DataType for an Element type parameter.
func dataTypeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	default:
		return Bool8
	}
}
