package graph

import (
	"fmt"

	"github.com/tensorzk/tensorzk/tensor"
)

// InferShapes propagates output shapes through the arena in index order and
// validates operator arity and dimension compatibility. It mutates the
// receiver; Normalize works on a clone.
func (g *Graph) InferShapes() error {
	for id := range g.Nodes {
		n := &g.Nodes[id]
		shape, err := g.inferNode(id, n)
		if err != nil {
			return err
		}
		n.Shape = shape
	}
	return nil
}

func (g *Graph) inferNode(id int, n *Node) ([]int, error) {
	in := func(i int) []int { return g.Nodes[n.Inputs[i]].Shape }

	arity := func(want int) error {
		if len(n.Inputs) != want {
			return &Error{Kind: ErrShapeMismatch, Node: id,
				Msg: fmt.Sprintf("%s expects %d inputs, got %d", n.Op, want, len(n.Inputs))}
		}
		return nil
	}

	switch n.Op {
	case OpInput, OpConst:
		return n.Shape, nil

	case OpAdd, OpSub, OpMul, OpMax, OpMin:
		if err := arity(2); err != nil {
			return nil, err
		}
		shape, err := tensor.BroadcastShapes(in(0), in(1))
		if err != nil {
			return nil, &Error{Kind: ErrShapeMismatch, Node: id, Msg: err.Error()}
		}
		return shape, nil

	case OpNeg, OpRescale, OpReLU, OpLeakyReLU, OpSigmoid, OpTanh, OpExp,
		OpSqrt, OpRsqrt, OpRecip, OpGreaterThan:
		if err := arity(1); err != nil {
			return nil, err
		}
		return append([]int{}, in(0)...), nil

	case OpSum:
		if err := arity(1); err != nil {
			return nil, err
		}
		src := in(0)
		if n.Attrs.Axis < 0 {
			return []int{1}, nil
		}
		if n.Attrs.Axis >= len(src) {
			return nil, &Error{Kind: ErrShapeMismatch, Node: id,
				Msg: fmt.Sprintf("sum axis %d out of range for %v", n.Attrs.Axis, src)}
		}
		out := append([]int{}, src[:n.Attrs.Axis]...)
		return append(out, src[n.Attrs.Axis+1:]...), nil

	case OpMatMul:
		if err := arity(2); err != nil {
			return nil, err
		}
		return matMulShape(id, in(0), in(1))

	case OpConv2D:
		if err := arity(2); err != nil {
			return nil, err
		}
		return conv2DShape(id, in(0), in(1), n.Attrs.Stride, n.Attrs.Pad)

	case OpReshape:
		if err := arity(1); err != nil {
			return nil, err
		}
		if tensor.NumElems(n.Attrs.TargetShape) != tensor.NumElems(in(0)) {
			return nil, &Error{Kind: ErrShapeMismatch, Node: id,
				Msg: fmt.Sprintf("cannot reshape %v to %v", in(0), n.Attrs.TargetShape)}
		}
		return append([]int{}, n.Attrs.TargetShape...), nil

	case OpBroadcast:
		if err := arity(1); err != nil {
			return nil, err
		}
		if _, err := tensor.BroadcastShapes(in(0), n.Attrs.TargetShape); err != nil {
			return nil, &Error{Kind: ErrShapeMismatch, Node: id, Msg: err.Error()}
		}
		return append([]int{}, n.Attrs.TargetShape...), nil
	}

	return nil, &Error{Kind: ErrUnsupportedOp, Node: id, Msg: n.Op.String()}
}

func matMulShape(id int, a, b []int) ([]int, error) {
	bad := func() error {
		return &Error{Kind: ErrShapeMismatch, Node: id,
			Msg: fmt.Sprintf("matmul shapes %v and %v", a, b)}
	}
	switch {
	case len(a) == 2 && len(b) == 2:
		if a[1] != b[0] {
			return nil, bad()
		}
		return []int{a[0], b[1]}, nil
	case len(a) == 1 && len(b) == 2:
		if a[0] != b[0] {
			return nil, bad()
		}
		return []int{b[1]}, nil
	case len(a) == 2 && len(b) == 1:
		if a[1] != b[0] {
			return nil, bad()
		}
		return []int{a[0]}, nil
	}
	return nil, bad()
}

func conv2DShape(id int, in, k []int, stride, pad int) ([]int, error) {
	if len(in) != 4 || len(k) != 4 || in[1] != k[1] {
		return nil, &Error{Kind: ErrShapeMismatch, Node: id,
			Msg: fmt.Sprintf("conv2d shapes %v and %v", in, k)}
	}
	if stride <= 0 {
		stride = 1
	}
	oh := (in[2]+2*pad-k[2])/stride + 1
	ow := (in[3]+2*pad-k[3])/stride + 1
	if oh <= 0 || ow <= 0 {
		return nil, &Error{Kind: ErrShapeMismatch, Node: id,
			Msg: fmt.Sprintf("conv2d output collapses for input %v kernel %v", in, k)}
	}
	return []int{in[0], k[0], oh, ow}, nil
}
