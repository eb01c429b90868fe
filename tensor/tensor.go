// Package tensor implements the multi-dimensional arrays flowing through a
// computational graph, in both raw floating-point form and quantized
// fixed-point form.
//
// A quantized tensor stores signed fixed-point values as int64 with a
// per-tensor scale (number of fractional bits). Mapping to the proving field
// is two's-complement style: negative values wrap around the field modulus.
package tensor

import (
	"fmt"
)

// Value is the element type of a tensor. Raw graphs carry float64 tensors,
// quantized graphs carry int64 fixed-point tensors.
type Value interface {
	~int64 | ~float64
}

// Tensor is an immutable multi-dimensional array. Scale is the number of
// fractional bits of the fixed-point representation; it is 0 for raw
// float tensors and for unscaled (boolean-like) outputs.
type Tensor[T Value] struct {
	Shape []int
	Scale int
	Data  []T
}

// New allocates a zero tensor of the given shape.
func New[T Value](shape ...int) *Tensor[T] {
	return &Tensor[T]{
		Shape: append([]int{}, shape...),
		Data:  make([]T, NumElems(shape)),
	}
}

// FromSlice wraps data into a tensor of the given shape.
func FromSlice[T Value](data []T, shape ...int) (*Tensor[T], error) {
	if len(data) != NumElems(shape) {
		return nil, fmt.Errorf("tensor: %d elements do not fit shape %v", len(data), shape)
	}
	return &Tensor[T]{
		Shape: append([]int{}, shape...),
		Data:  append([]T{}, data...),
	}, nil
}

// NumElems returns the element count of a shape. The empty shape is a scalar.
func NumElems(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements.
func (t *Tensor[T]) Len() int { return len(t.Data) }

// At returns the element at the given multi-index.
func (t *Tensor[T]) At(idx ...int) T {
	return t.Data[t.flatten(idx)]
}

// Set writes the element at the given multi-index.
func (t *Tensor[T]) Set(v T, idx ...int) {
	t.Data[t.flatten(idx)] = v
}

func (t *Tensor[T]) flatten(idx []int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index rank %d does not match shape %v", len(idx), t.Shape))
	}
	flat := 0
	for i, d := range t.Shape {
		if idx[i] < 0 || idx[i] >= d {
			panic(fmt.Sprintf("tensor: index %v out of bounds for shape %v", idx, t.Shape))
		}
		flat = flat*d + idx[i]
	}
	return flat
}

// Clone returns a deep copy.
func (t *Tensor[T]) Clone() *Tensor[T] {
	return &Tensor[T]{
		Shape: append([]int{}, t.Shape...),
		Scale: t.Scale,
		Data:  append([]T{}, t.Data...),
	}
}

// WithScale returns a shallow view of t carrying a different scale tag.
func (t *Tensor[T]) WithScale(scale int) *Tensor[T] {
	return &Tensor[T]{Shape: t.Shape, Scale: scale, Data: t.Data}
}

// Reshape returns a view of t with a new shape holding the same elements.
func (t *Tensor[T]) Reshape(shape ...int) (*Tensor[T], error) {
	if NumElems(shape) != len(t.Data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v to %v", t.Shape, shape)
	}
	return &Tensor[T]{
		Shape: append([]int{}, shape...),
		Scale: t.Scale,
		Data:  t.Data,
	}, nil
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
