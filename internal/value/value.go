package value

import (
	"slices"
	"unicode/utf16"
)

// Kind identifies the concrete type behind a Value.
type Kind int

// Value kinds, one per sealed implementation.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindArray
	KindList
	KindMap
)

// String returns the lowercase kind name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindArray:
		return "array"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a sealed interface over the recordable value types.
// Only Null, Bool, Int, Float, *Array, List and Map implement it.
type Value interface {
	// Kind reports the concrete type.
	Kind() Kind

	// Clone returns a deep copy sharing no memory with the receiver.
	Clone() Value

	value() // Sealed
}

// Null is the absence of a value, e.g. a call with no results.
type Null struct{}

func (Null) value() {}
func (Null) Kind() Kind { return KindNull }
func (Null) Clone() Value { return Null{} }

// Bool is a boolean scalar.
type Bool bool

func (Bool) value() {}
func (Bool) Kind() Kind { return KindBool }
func (b Bool) Clone() Value { return b }

// Int is an integer scalar. All Go integer kinds widen to int64.
type Int int64

func (Int) value() {}
func (Int) Kind() Kind { return KindInt }
func (i Int) Clone() Value { return i }

// Float is a floating point scalar.
type Float float64

func (Float) value() {}
func (Float) Kind() Kind { return KindFloat }
func (f Float) Clone() Value { return f }

// List is an ordered sequence of values.
type List []Value

func (List) value() {}
func (List) Kind() Kind { return KindList }

// Clone copies the list and every element.
func (l List) Clone() Value {
	out := make(List, len(l))
	for i, v := range l {
		if v != nil {
			out[i] = v.Clone()
		}
	}
	return out
}

// Map is a string-keyed mapping of values.
// Use SortedKeys for deterministic iteration.
type Map map[string]Value

func (Map) value() {}
func (Map) Kind() Kind { return KindMap }

// Clone copies the map and every value.
func (m Map) Clone() Value {
	out := make(Map, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v.Clone()
		} else {
			out[k] = nil
		}
	}
	return out
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's default string ordering compares UTF-8 bytes, which differs for
// characters outside the BMP.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// compareKeys orders strings by UTF-16 code units.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}
