package witness

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tensorzk/tensorzk/compiler"
	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/lookup"
	"github.com/tensorzk/tensorzk/tensor"
)

// evalGraph computes every node's output tensor. Nodes at the same
// dependency depth are independent and evaluated in parallel; each worker
// writes only its own result slot, so the outcome does not depend on
// scheduling order.
func evalGraph(c *compiler.Circuit, inputs []*tensor.Tensor[int64]) ([]*tensor.Tensor[int64], error) {
	g := c.Graph
	values := make([]*tensor.Tensor[int64], len(g.Nodes))

	inputByNode := make(map[int]*tensor.Tensor[int64], len(inputs))
	for i, spec := range c.Layout.Inputs {
		inputByNode[spec.Node] = inputs[i]
	}

	// dependency depth of every node; arena order makes one pass enough
	depth := make([]int, len(g.Nodes))
	maxDepth := 0
	for id, n := range g.Nodes {
		for _, in := range n.Inputs {
			if depth[in]+1 > depth[id] {
				depth[id] = depth[in] + 1
			}
		}
		if depth[id] > maxDepth {
			maxDepth = depth[id]
		}
	}
	levels := make([][]int, maxDepth+1)
	for id := range g.Nodes {
		levels[depth[id]] = append(levels[depth[id]], id)
	}

	for _, level := range levels {
		var eg errgroup.Group
		eg.SetLimit(runtime.NumCPU())
		for _, id := range level {
			id := id
			eg.Go(func() error {
				out, err := evalNode(c, values, inputByNode, id)
				if err != nil {
					return err
				}
				values[id] = out
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func evalNode(c *compiler.Circuit, values []*tensor.Tensor[int64], inputByNode map[int]*tensor.Tensor[int64], id int) (*tensor.Tensor[int64], error) {
	g := c.Graph
	n := &g.Nodes[id]
	in := func(i int) *tensor.Tensor[int64] { return values[n.Inputs[i]] }
	inScale := func(i int) int { return g.Nodes[n.Inputs[i]].OutScale }

	var out *tensor.Tensor[int64]
	switch n.Op {
	case graph.OpInput:
		t, ok := inputByNode[id]
		if !ok {
			return nil, &Error{Node: id, Msg: "input node has no tensor"}
		}
		return t, nil

	case graph.OpConst:
		return n.QValue, nil

	case graph.OpAdd:
		out = zipInt(in(0), in(1), n.Shape, func(a, b int64) int64 { return a + b })
	case graph.OpSub:
		out = zipInt(in(0), in(1), n.Shape, func(a, b int64) int64 { return a - b })
	case graph.OpMul:
		out = zipInt(in(0), in(1), n.Shape, func(a, b int64) int64 { return a * b })
	case graph.OpMax:
		out = zipInt(in(0), in(1), n.Shape, maxInt)
	case graph.OpMin:
		out = zipInt(in(0), in(1), n.Shape, func(a, b int64) int64 { return -maxInt(-a, -b) })
	case graph.OpNeg:
		out = mapInt(in(0), func(a int64) int64 { return -a })
	case graph.OpSum:
		out = sumInt(in(0), n.Attrs.Axis, n.Shape)
	case graph.OpMatMul:
		out = matMulInt(in(0), in(1), n.Shape)
	case graph.OpConv2D:
		out = conv2DInt(in(0), in(1), n.Attrs.Stride, n.Attrs.Pad, n.Shape)
	case graph.OpReshape:
		r, err := in(0).Reshape(n.Attrs.TargetShape...)
		if err != nil {
			return nil, &Error{Node: id, Msg: err.Error()}
		}
		out = r
	case graph.OpBroadcast:
		b, err := tensor.Broadcast(in(0), n.Attrs.TargetShape)
		if err != nil {
			return nil, &Error{Node: id, Msg: err.Error()}
		}
		out = b

	case graph.OpRescale, graph.OpReLU, graph.OpLeakyReLU, graph.OpSigmoid,
		graph.OpTanh, graph.OpExp, graph.OpSqrt, graph.OpRsqrt, graph.OpRecip,
		graph.OpGreaterThan:
		key, _ := lookup.KeyForNode(n.Op, n.Attrs, inScale(0), n.OutScale, c.Params.Bits)
		out = mapInt(in(0), func(a int64) int64 { return lookup.Eval(key, a) })

	default:
		return nil, &Error{Node: id, Msg: fmt.Sprintf("operator %s has no evaluation", n.Op)}
	}

	out.Scale = n.OutScale
	if err := checkRange(c, id, n, out); err != nil {
		return nil, err
	}
	return out, nil
}

// checkRange validates a node's output against the circuit's declared bit
// width. Values above the global scale (the mul→rescale gap) get headroom
// matching the rescale table's widened domain.
func checkRange(c *compiler.Circuit, id int, n *graph.Node, t *tensor.Tensor[int64]) error {
	bits := c.Params.Bits
	if excess := n.OutScale - c.Params.Scale; excess > 0 {
		bits += excess
	}
	for _, v := range t.Data {
		if !tensor.InRange(v, bits) {
			return &Error{Node: id, Value: v,
				Msg: fmt.Sprintf("value outside %d-bit range, recompile with wider bit width", bits)}
		}
	}
	return nil
}

func maxInt(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func mapInt(t *tensor.Tensor[int64], f func(int64) int64) *tensor.Tensor[int64] {
	out := tensor.New[int64](t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = f(v)
	}
	return out
}

func zipInt(a, b *tensor.Tensor[int64], shape []int, f func(_, _ int64) int64) *tensor.Tensor[int64] {
	out := tensor.New[int64](shape...)
	for i := range out.Data {
		va := a.Data[tensor.BroadcastIndex(i, shape, a.Shape)]
		vb := b.Data[tensor.BroadcastIndex(i, shape, b.Shape)]
		out.Data[i] = f(va, vb)
	}
	return out
}

func sumInt(t *tensor.Tensor[int64], axis int, outShape []int) *tensor.Tensor[int64] {
	out := tensor.New[int64](outShape...)
	if axis < 0 {
		var acc int64
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
			var acc int64
			for j := 0; j < n; j++ {
				acc += t.Data[(o*n+j)*inner+i]
			}
			out.Data[o*inner+i] = acc
		}
	}
	return out
}

func matMulInt(a, b *tensor.Tensor[int64], outShape []int) *tensor.Tensor[int64] {
	m, k := graph.LeftMatDims(a.Shape)
	_, nn := graph.RightMatDims(b.Shape)
	out := tensor.New[int64](outShape...)
	for i := 0; i < m; i++ {
		for j := 0; j < nn; j++ {
			var acc int64
			for kk := 0; kk < k; kk++ {
				acc += a.Data[i*k+kk] * b.Data[kk*nn+j]
			}
			out.Data[i*nn+j] = acc
		}
	}
	return out
}

func conv2DInt(in, k *tensor.Tensor[int64], stride, pad int, outShape []int) *tensor.Tensor[int64] {
	if stride <= 0 {
		stride = 1
	}
	out := tensor.New[int64](outShape...)
	n, c, h, w := in.Shape[0], in.Shape[1], in.Shape[2], in.Shape[3]
	f, kh, kw := k.Shape[0], k.Shape[2], k.Shape[3]
	oh, ow := outShape[2], outShape[3]
	for b := 0; b < n; b++ {
		for of := 0; of < f; of++ {
			for y := 0; y < oh; y++ {
				for x := 0; x < ow; x++ {
					var acc int64
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
