package graph

import (
	"math"

	"github.com/tensorzk/tensorzk/tensor"
)

// Float-domain reference evaluation, used by constant folding. The quantized
// pipeline never goes through here; the witness generator has its own
// fixed-point evaluator with matching semantics.

// evalFloat evaluates node id given its input tensors. The second return is
// false when the operator cannot be folded in the float domain.
func evalFloat(n *Node, in []*tensor.Tensor[float64]) (*tensor.Tensor[float64], bool) {
	switch n.Op {
	case OpAdd:
		return zipFloat(in[0], in[1], n.Shape, func(a, b float64) float64 { return a + b }), true
	case OpSub:
		return zipFloat(in[0], in[1], n.Shape, func(a, b float64) float64 { return a - b }), true
	case OpMul:
		return zipFloat(in[0], in[1], n.Shape, func(a, b float64) float64 { return a * b }), true
	case OpMax:
		return zipFloat(in[0], in[1], n.Shape, math.Max), true
	case OpMin:
		return zipFloat(in[0], in[1], n.Shape, math.Min), true
	case OpNeg:
		return mapFloat(in[0], func(a float64) float64 { return -a }), true
	case OpReLU:
		return mapFloat(in[0], func(a float64) float64 { return math.Max(a, 0) }), true
	case OpLeakyReLU:
		slope := n.Attrs.Slope
		return mapFloat(in[0], func(a float64) float64 {
			if a < 0 {
				return slope * a
			}
			return a
		}), true
	case OpSigmoid:
		return mapFloat(in[0], func(a float64) float64 { return 1 / (1 + math.Exp(-a)) }), true
	case OpTanh:
		return mapFloat(in[0], math.Tanh), true
	case OpExp:
		return mapFloat(in[0], math.Exp), true
	case OpSqrt:
		return mapFloat(in[0], math.Sqrt), true
	case OpRsqrt:
		return mapFloat(in[0], func(a float64) float64 { return 1 / math.Sqrt(a) }), true
	case OpRecip:
		return mapFloat(in[0], func(a float64) float64 { return 1 / a }), true
	case OpGreaterThan:
		thr := n.Attrs.Threshold
		return mapFloat(in[0], func(a float64) float64 {
			if a > thr {
				return 1
			}
			return 0
		}), true
	case OpSum:
		return sumFloat(in[0], n.Attrs.Axis, n.Shape), true
	case OpMatMul:
		return MatMulFloat(in[0], in[1]), true
	case OpConv2D:
		return conv2DFloat(in[0], in[1], n.Attrs.Stride, n.Attrs.Pad, n.Shape), true
	case OpReshape:
		out, _ := in[0].Reshape(n.Attrs.TargetShape...)
		return out, true
	case OpBroadcast:
		out, _ := tensor.Broadcast(in[0], n.Attrs.TargetShape)
		return out, true
	}
	// Rescale only exists after quantization and is never folded here.
	return nil, false
}

func mapFloat(t *tensor.Tensor[float64], f func(float64) float64) *tensor.Tensor[float64] {
	out := tensor.New[float64](t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = f(v)
	}
	return out
}

func zipFloat(a, b *tensor.Tensor[float64], shape []int, f func(_, _ float64) float64) *tensor.Tensor[float64] {
	out := tensor.New[float64](shape...)
	for i := range out.Data {
		va := a.Data[tensor.BroadcastIndex(i, shape, a.Shape)]
		vb := b.Data[tensor.BroadcastIndex(i, shape, b.Shape)]
		out.Data[i] = f(va, vb)
	}
	return out
}

func sumFloat(t *tensor.Tensor[float64], axis int, outShape []int) *tensor.Tensor[float64] {
	out := tensor.New[float64](outShape...)
	if axis < 0 {
		var acc float64
		for _, v := range t.Data {
			acc += v
		}
		out.Data[0] = acc
		return out
	}
	outer := 1
	for _, d := range t.Shape[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range t.Shape[axis+1:] {
		inner *= d
	}
	n := t.Shape[axis]
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var acc float64
			for j := 0; j < n; j++ {
				acc += t.Data[(o*n+j)*inner+i]
			}
			out.Data[o*inner+i] = acc
		}
	}
	return out
}

// MatMulFloat multiplies two float matrices (or matrix-vector), used both by
// constant folding and by the linear-operator fusion pass.
func MatMulFloat(a, b *tensor.Tensor[float64]) *tensor.Tensor[float64] {
	am, ak := LeftMatDims(a.Shape)
	_, bn := RightMatDims(b.Shape)
	shape := matResultShape(a.Shape, b.Shape)
	out := tensor.New[float64](shape...)
	for i := 0; i < am; i++ {
		for j := 0; j < bn; j++ {
			var acc float64
			for k := 0; k < ak; k++ {
				acc += a.Data[i*ak+k] * b.Data[k*bn+j]
			}
			out.Data[i*bn+j] = acc
		}
	}
	return out
}

// LeftMatDims views a matmul left operand as (rows, cols); a vector is a
// single row.
func LeftMatDims(shape []int) (int, int) {
	if len(shape) == 1 {
		return 1, shape[0]
	}
	return shape[0], shape[1]
}

// RightMatDims views a matmul right operand as (rows, cols); a vector is a
// single column.
func RightMatDims(shape []int) (int, int) {
	if len(shape) == 1 {
		return shape[0], 1
	}
	return shape[0], shape[1]
}

func matResultShape(a, b []int) []int {
	switch {
	case len(a) == 1 && len(b) == 2:
		return []int{b[1]}
	case len(a) == 2 && len(b) == 1:
		return []int{a[0]}
	default:
		return []int{a[0], b[1]}
	}
}

func conv2DFloat(in, k *tensor.Tensor[float64], stride, pad int, outShape []int) *tensor.Tensor[float64] {
	if stride <= 0 {
		stride = 1
	}
	out := tensor.New[float64](outShape...)
	n, c, h, w := in.Shape[0], in.Shape[1], in.Shape[2], in.Shape[3]
	f, kh, kw := k.Shape[0], k.Shape[2], k.Shape[3]
	oh, ow := outShape[2], outShape[3]
	for b := 0; b < n; b++ {
		for of := 0; of < f; of++ {
			for y := 0; y < oh; y++ {
				for x := 0; x < ow; x++ {
					var acc float64
					for ic := 0; ic < c; ic++ {
						for ky := 0; ky < kh; ky++ {
							for kx := 0; kx < kw; kx++ {
								iy := y*stride + ky - pad
								ix := x*stride + kx - pad
								if iy < 0 || iy >= h || ix < 0 || ix >= w {
									continue
								}
								acc += in.Data[((b*c+ic)*h+iy)*w+ix] * k.Data[((of*c+ic)*kh+ky)*kw+kx]
							}
						}
					}
					out.Data[((b*f+of)*oh+y)*ow+x] = acc
				}
			}
		}
	}
	return out
}
