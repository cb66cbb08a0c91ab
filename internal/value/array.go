package value

import (
	"fmt"
)

// Array is a materialized multi-dimensional numeric array stored row-major.
//
// The element slice is owned by the Array: constructors copy their input and
// accessors return copies, so a recorded Array can never be mutated through a
// caller-held buffer.
type Array struct {
	dtype DataType
	shape Shape
	data  any // []float32 | []float64 | []int32 | []int64 | []uint8 | []bool
}

func (*Array) value() {}

// Kind implements Value.
func (*Array) Kind() Kind { return KindArray }

// NewArray creates an Array from a Go slice and a shape.
// The slice is copied.
func NewArray[T Element](data []T, shape Shape) (*Array, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	owned := make([]T, len(data))
	copy(owned, data)
	return &Array{dtype: dataTypeOf[T](), shape: shape.Clone(), data: owned}, nil
}

// MustArray is NewArray that panics on a shape mismatch. Intended for tests
// and literals.
func MustArray[T Element](data []T, shape ...int) *Array {
	a, err := NewArray(data, Shape(shape))
	if err != nil {
		panic(err)
	}
	return a
}

// Vector creates a 1-D Array holding a copy of data.
func Vector[T Element](data []T) *Array {
	return MustArray(data, len(data))
}

// ArrayData returns a copy of the array's elements as []T.
// The boolean is false if T does not match the array's dtype.
func ArrayData[T Element](a *Array) ([]T, bool) {
	src, ok := a.data.([]T)
	if !ok {
		return nil, false
	}
	out := make([]T, len(src))
	copy(out, src)
	return out, true
}

// DType returns the element type.
func (a *Array) DType() DataType {
	return a.dtype
}

// Shape returns a copy of the dimensions.
func (a *Array) Shape() Shape {
	return a.shape.Clone()
}

// Size returns the number of elements.
func (a *Array) Size() int {
	return a.shape.NumElements()
}

// Clone implements Value.
func (a *Array) Clone() Value {
	out := &Array{dtype: a.dtype, shape: a.shape.Clone()}
	switch d := a.data.(type) {
	case []float32:
		out.data = append(make([]float32, 0, len(d)), d...)
	case []float64:
		out.data = append(make([]float64, 0, len(d)), d...)
	case []int32:
		out.data = append(make([]int32, 0, len(d)), d...)
	case []int64:
		out.data = append(make([]int64, 0, len(d)), d...)
	case []uint8:
		out.data = append(make([]uint8, 0, len(d)), d...)
	case []bool:
		out.data = append(make([]bool, 0, len(d)), d...)
	}
	return out
}

// Float64At returns element i widened to float64. Bools map to 0 and 1.
func (a *Array) Float64At(i int) float64 {
	switch d := a.data.(type) {
	case []float32:
		return float64(d[i])
	case []float64:
		return d[i]
	case []int32:
		return float64(d[i])
	case []int64:
		return float64(d[i])
	case []uint8:
		return float64(d[i])
	case []bool:
		if d[i] {
			return 1
		}
		return 0
	default:
		panic("unsupported array storage")
	}
}

// Int64At returns element i as int64. Floating elements are truncated.
func (a *Array) Int64At(i int) int64 {
	switch d := a.data.(type) {
	case []float32:
		return int64(d[i])
	case []float64:
		return int64(d[i])
	case []int32:
		return int64(d[i])
	case []int64:
		return d[i]
	case []uint8:
		return int64(d[i])
	case []bool:
		if d[i] {
			return 1
		}
		return 0
	default:
		panic("unsupported array storage")
	}
}

// elementEqual reports exact equality of element i in a and j in b.
// Both arrays must share a dtype.
func elementEqual(a *Array, i int, b *Array, j int) bool {
	switch d := a.data.(type) {
	case []float32:
		return d[i] == b.data.([]float32)[j]
	case []float64:
		return d[i] == b.data.([]float64)[j]
	case []int32:
		return d[i] == b.data.([]int32)[j]
	case []int64:
		return d[i] == b.data.([]int64)[j]
	case []uint8:
		return d[i] == b.data.([]uint8)[j]
	case []bool:
		return d[i] == b.data.([]bool)[j]
	default:
		return false
	}
}

// ElementsEqual reports whether two arrays of the same dtype and shape hold
// identical elements. Floating NaNs are never equal.
func ElementsEqual(a, b *Array) bool {
	if a.dtype != b.dtype || !a.shape.Equal(b.shape) {
		return false
	}
	for i := 0; i < a.Size(); i++ {
		if !elementEqual(a, i, b, i) {
			return false
		}
	}
	return true
}
