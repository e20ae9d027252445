package bmi

import "fmt"

// Values is a flat buffer of variable elements. The set of implementations
// is closed: Float64Values and Float32Values.
type Values interface {
	ElementType() ElementType
	Len() int

	values()
}

// Float64Values is a buffer of float64 elements.
type Float64Values []float64

func (Float64Values) values() {}

// ElementType returns Float64.
func (Float64Values) ElementType() ElementType { return Float64 }

// Len returns the number of elements.
func (v Float64Values) Len() int { return len(v) }

// Float32Values is a buffer of float32 elements.
type Float32Values []float32

func (Float32Values) values() {}

// ElementType returns Float32.
func (Float32Values) ElementType() ElementType { return Float32 }

// Len returns the number of elements.
func (v Float32Values) Len() int { return len(v) }

// NewValues allocates a zeroed buffer of n elements of type t.
func NewValues(t ElementType, n int) (Values, error) {
	switch t {
	case Float64:
		return make(Float64Values, n), nil
	case Float32:
		return make(Float32Values, n), nil
	default:
		return nil, fmt.Errorf("invalid element type: %s", t)
	}
}

// CloneValues returns an independent copy of v.
func CloneValues(v Values) Values {
	switch b := v.(type) {
	case Float64Values:
		return append(Float64Values(nil), b...)
	case Float32Values:
		return append(Float32Values(nil), b...)
	default:
		return nil
	}
}

// CopyValues copies src into dst. Both buffers must have the same element
// type and length.
func CopyValues(dst, src Values) error {
	if err := sameType(dst, src); err != nil {
		return err
	}
	if dst.Len() != src.Len() {
		return fmt.Errorf("buffer length mismatch: dst has %d elements, src has %d", dst.Len(), src.Len())
	}
	switch d := dst.(type) {
	case Float64Values:
		copy(d, src.(Float64Values))
	case Float32Values:
		copy(d, src.(Float32Values))
	}
	return nil
}

// GatherValues sets dst[k] = src[indices[k]]. Indices must already be in range.
func GatherValues(dst, src Values, indices []int) error {
	if err := sameType(dst, src); err != nil {
		return err
	}
	if dst.Len() != len(indices) {
		return fmt.Errorf("buffer length mismatch: %d indices, %d elements", len(indices), dst.Len())
	}
	switch d := dst.(type) {
	case Float64Values:
		gather(d, src.(Float64Values), indices)
	case Float32Values:
		gather(d, src.(Float32Values), indices)
	}
	return nil
}

// ScatterValues sets dst[indices[k]] = src[k]. Indices must already be in range.
func ScatterValues(dst, src Values, indices []int) error {
	if err := sameType(dst, src); err != nil {
		return err
	}
	if src.Len() != len(indices) {
		return fmt.Errorf("buffer length mismatch: %d indices, %d elements", len(indices), src.Len())
	}
	switch d := dst.(type) {
	case Float64Values:
		scatter(d, src.(Float64Values), indices)
	case Float32Values:
		scatter(d, src.(Float32Values), indices)
	}
	return nil
}

// FillValues sets every element of v to x.
func FillValues(v Values, x float64) {
	switch b := v.(type) {
	case Float64Values:
		for i := range b {
			b[i] = x
		}
	case Float32Values:
		for i := range b {
			b[i] = float32(x)
		}
	}
}

func sameType(a, b Values) error {
	if a == nil || b == nil {
		return fmt.Errorf("nil value buffer")
	}
	if a.ElementType() != b.ElementType() {
		return fmt.Errorf("element type mismatch: %s and %s", a.ElementType(), b.ElementType())
	}
	return nil
}

func gather[T float32 | float64](dst, src []T, indices []int) {
	for k, i := range indices {
		dst[k] = src[i]
	}
}

func scatter[T float32 | float64](dst, src []T, indices []int) {
	for k, i := range indices {
		dst[i] = src[k]
	}
}
