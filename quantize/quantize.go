// Package quantize rewrites a normalized graph into fixed-point form: every
// constant becomes a field-representable integer at a declared scale, every
// node carries the scale of its output, and multiplicative operators get an
// explicit rescale step so the scale stays invariant across the graph.
//
// One scale per tensor, not per channel; the division hidden in rescaling is
// non-arithmetic in the field and is proven downstream via a lookup table.
package quantize

import (
	"fmt"

	"github.com/consensys/gnark/logger"

	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/tensor"
)

// Params is the quantization configuration, owned by the caller of compile.
type Params struct {
	// Scale is the number of fractional bits.
	Scale int
	// Bits is the signed bit width every tensor value must fit in. It also
	// bounds the lookup table domain, so it is kept small (8-16 typically).
	Bits int
	// Tolerance is the maximum absolute error admitted when rounding a
	// constant to fixed point. Zero selects the half-step bound 1/2^(Scale+1).
	Tolerance float64
}

// Validate checks the parameter ranges the pipeline supports.
func (p Params) Validate() error {
	if p.Scale < 0 || p.Scale > p.Bits {
		return fmt.Errorf("quantize: scale %d out of range for %d bits", p.Scale, p.Bits)
	}
	if p.Bits < 2 || p.Bits > 24 {
		return fmt.Errorf("quantize: bit width %d outside supported range [2,24]", p.Bits)
	}
	return nil
}

func (p Params) tolerance() float64 {
	if p.Tolerance > 0 {
		return p.Tolerance
	}
	return 1 / tensor.ScaleMultiplier(p.Scale+1)
}

// Error reports a numeric range or precision violation, identifying the
// offending node and value. The caller must widen the bit width or rescale.
type Error struct {
	Node  int
	Op    graph.OpKind
	Value float64
	Msg   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("quantize: node %d (%s): %s (value %g)", e.Node, e.Op, e.Msg, e.Value)
}

// Apply returns a quantized copy of a normalized graph. Scale-doubling
// operators (Mul, MatMul, Conv2D) get a Rescale node appended right after
// them; downstream edges are rewired to the rescaled value.
func Apply(g *graph.Graph, p Params) (*graph.Graph, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := &graph.Graph{}
	remap := make([]int, len(g.Nodes))
	// scale of the value a consumer of node id actually sees, i.e. the
	// scale after any inserted rescale
	seen := make([]int, len(g.Nodes))

	for id, n := range g.Nodes {
		cp := n
		cp.Inputs = make([]int, len(n.Inputs))
		for i, in := range n.Inputs {
			cp.Inputs[i] = remap[in]
		}

		scale, err := outputScale(id, &n, p, func(i int) int { return seen[n.Inputs[i]] })
		if err != nil {
			return nil, err
		}
		cp.OutScale = scale

		if n.Op == graph.OpConst {
			q, err := quantizeConst(id, &n, p)
			if err != nil {
				return nil, err
			}
			cp.QValue = q
		}

		out.Nodes = append(out.Nodes, cp)
		newID := len(out.Nodes) - 1
		seen[id] = scale

		if n.Op.ScaleDoubling() && scale > p.Scale {
			// restore the global scale with an explicit, provable division
			out.Nodes = append(out.Nodes, graph.Node{
				Op:       graph.OpRescale,
				Inputs:   []int{newID},
				Attrs:    graph.Attrs{ShiftBits: scale - p.Scale},
				Shape:    append([]int{}, n.Shape...),
				OutScale: p.Scale,
			})
			newID = len(out.Nodes) - 1
			seen[id] = p.Scale
		}
		remap[id] = newID
	}

	for _, in := range g.Inputs {
		out.Inputs = append(out.Inputs, remap[in])
	}
	for _, o := range g.Outputs {
		out.Outputs = append(out.Outputs, remap[o])
	}

	log := logger.Logger()
	log.Debug().
		Int("scale", p.Scale).
		Int("bits", p.Bits).
		Int("nodes", len(out.Nodes)).
		Msg("graph quantized")
	return out, nil
}

// outputScale applies the scale propagation rules to a single node, reading
// operand scales through inScale (the consumer-visible scale of input i).
func outputScale(id int, n *graph.Node, p Params, inScale func(int) int) (int, error) {
	switch n.Op {
	case graph.OpInput, graph.OpConst:
		return p.Scale, nil
	case graph.OpAdd, graph.OpSub, graph.OpMax, graph.OpMin:
		a, b := inScale(0), inScale(1)
		if a != b {
			return 0, &Error{Node: id, Op: n.Op,
				Msg: fmt.Sprintf("operands at different scales %d and %d", a, b)}
		}
		return a, nil
	case graph.OpMul, graph.OpMatMul, graph.OpConv2D:
		return inScale(0) + inScale(1), nil
	case graph.OpNeg, graph.OpSum, graph.OpReshape, graph.OpBroadcast,
		graph.OpReLU, graph.OpLeakyReLU:
		return inScale(0), nil
	case graph.OpRescale:
		return inScale(0) - n.Attrs.ShiftBits, nil
	case graph.OpSigmoid, graph.OpTanh, graph.OpExp, graph.OpSqrt,
		graph.OpRsqrt, graph.OpRecip:
		return p.Scale, nil
	case graph.OpGreaterThan:
		return 0, nil
	}
	return 0, &Error{Node: id, Op: n.Op, Msg: "no scale rule"}
}

func quantizeConst(id int, n *graph.Node, p Params) (*tensor.Tensor[int64], error) {
	tol := p.tolerance()
	q := tensor.New[int64](n.Value.Shape...)
	q.Scale = p.Scale
	for i, v := range n.Value.Data {
		fixed := tensor.QuantizeValue(v, p.Scale)
		if !tensor.InRange(fixed, p.Bits) {
			return nil, &Error{Node: id, Op: n.Op, Value: v,
				Msg: fmt.Sprintf("exceeds %d-bit representable range", p.Bits)}
		}
		if loss := abs(tensor.DequantizeValue(fixed, p.Scale) - v); loss > tol {
			return nil, &Error{Node: id, Op: n.Op, Value: v,
				Msg: fmt.Sprintf("precision loss %g exceeds tolerance %g", loss, tol)}
		}
		q.Data[i] = fixed
	}
	return q, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
