package tensor

import "fmt"

// BroadcastShapes computes the numpy-style broadcast of two shapes, aligning
// trailing dimensions. Returns an error when a dimension pair is incompatible.
func BroadcastShapes(a, b []int) ([]int, error) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		da, db := 1, 1
		if i < len(a) {
			da = a[len(a)-1-i]
		}
		if i < len(b) {
			db = b[len(b)-1-i]
		}
		switch {
		case da == db:
			out[n-1-i] = da
		case da == 1:
			out[n-1-i] = db
		case db == 1:
			out[n-1-i] = da
		default:
			return nil, fmt.Errorf("tensor: cannot broadcast %v with %v", a, b)
		}
	}
	return out, nil
}

// BroadcastIndex maps a flat index in the broadcast output shape back to a
// flat index in the (possibly smaller) source shape.
func BroadcastIndex(flat int, outShape, srcShape []int) int {
	// decompose flat into multi-index over outShape, then re-flatten over
	// srcShape with size-1 axes pinned to 0
	src := 0
	srcStride := 1
	strides := make([]int, len(srcShape))
	for i := len(srcShape) - 1; i >= 0; i-- {
		strides[i] = srcStride
		srcStride *= srcShape[i]
	}
	rem := flat
	for i := len(outShape) - 1; i >= 0; i-- {
		d := rem % outShape[i]
		rem /= outShape[i]
		j := i - (len(outShape) - len(srcShape))
		if j < 0 {
			continue
		}
		if srcShape[j] != 1 {
			src += d * strides[j]
		}
	}
	return src
}

// Broadcast materializes t into the given broadcast-compatible shape.
func Broadcast[T Value](t *Tensor[T], shape []int) (*Tensor[T], error) {
	if _, err := BroadcastShapes(t.Shape, shape); err != nil {
		return nil, err
	}
	out := New[T](shape...)
	out.Scale = t.Scale
	for i := range out.Data {
		out.Data[i] = t.Data[BroadcastIndex(i, shape, t.Shape)]
	}
	return out, nil
}
