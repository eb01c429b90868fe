package compiler

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/lookup/logderivlookup"
	"github.com/consensys/gnark/std/rangecheck"

	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/lookup"
	"github.com/tensorzk/tensorzk/quantize"
	"github.com/tensorzk/tensorzk/tensor"
)

// graphCircuit is the frontend circuit lowering one quantized graph. In and
// Out are the only schema-visible fields: inputs are advice (secret), outputs
// are instance (public). Everything else is compile-time state.
type graphCircuit struct {
	In  []frontend.Variable `gnark:",secret"`
	Out []frontend.Variable `gnark:",public"`

	g      *graph.Graph
	params quantize.Params
	layout *Layout
	mgr    *lookup.Manager

	nbLookups int
}

// Define lowers every node in arena (topological) order. Linear operators
// become direct polynomial constraints; lookup operators become queries
// against a shared table, with the query wire range-checked to the table
// domain.
func (gc *graphCircuit) Define(api frontend.API) error {
	rc := rangecheck.New(api)
	tables := make(map[lookup.Key]*logderivlookup.Table)

	query := func(key lookup.Key, v frontend.Variable) (frontend.Variable, error) {
		t, ok := tables[key]
		if !ok {
			ref, err := gc.mgr.Get(key)
			if err != nil {
				return nil, err
			}
			t = logderivlookup.New(api)
			for _, out := range ref.Out {
				t.Insert(tensor.IntToField(out))
			}
			tables[key] = t
		}
		// shift the signed domain value to the table's row index and bind
		// the query wire to the declared domain
		half := big.NewInt(int64(1) << (key.Bits - 1))
		idx := api.Add(v, half)
		rc.Check(idx, key.Bits)
		gc.nbLookups++
		return t.Lookup(idx)[0], nil
	}

	vals := make([][]frontend.Variable, len(gc.g.Nodes))
	for id := range gc.g.Nodes {
		n := &gc.g.Nodes[id]
		lowered, err := gc.lowerNode(api, query, vals, id, n)
		if err != nil {
			return err
		}
		vals[id] = lowered
	}

	// bind declared outputs to the public instance wires
	off := 0
	for _, spec := range gc.layout.Outputs {
		for k := 0; k < spec.Len; k++ {
			api.AssertIsEqual(vals[spec.Node][k], gc.Out[off+k])
		}
		off += spec.Len
	}
	return nil
}

func (gc *graphCircuit) lowerNode(
	api frontend.API,
	query func(lookup.Key, frontend.Variable) (frontend.Variable, error),
	vals [][]frontend.Variable,
	id int,
	n *graph.Node,
) ([]frontend.Variable, error) {
	in := func(i int) []frontend.Variable { return vals[n.Inputs[i]] }
	inShape := func(i int) []int { return gc.g.Nodes[n.Inputs[i]].Shape }
	inScale := func(i int) int { return gc.g.Nodes[n.Inputs[i]].OutScale }

	switch n.Op {
	case graph.OpInput:
		spec, err := gc.layout.inputSpec(id)
		if err != nil {
			return nil, err
		}
		return gc.In[spec.Offset : spec.Offset+spec.Len], nil

	case graph.OpConst:
		out := make([]frontend.Variable, n.QValue.Len())
		for i, v := range n.QValue.Data {
			out[i] = tensor.IntToField(v)
		}
		return out, nil

	case graph.OpAdd:
		return lowerZip(n, in(0), in(1), inShape(0), inShape(1), func(a, b frontend.Variable) frontend.Variable {
			return api.Add(a, b)
		}), nil

	case graph.OpSub:
		return lowerZip(n, in(0), in(1), inShape(0), inShape(1), func(a, b frontend.Variable) frontend.Variable {
			return api.Sub(a, b)
		}), nil

	case graph.OpMul:
		return lowerZip(n, in(0), in(1), inShape(0), inShape(1), func(a, b frontend.Variable) frontend.Variable {
			return api.Mul(a, b)
		}), nil

	case graph.OpNeg:
		out := make([]frontend.Variable, len(in(0)))
		for i, v := range in(0) {
			out[i] = api.Neg(v)
		}
		return out, nil

	case graph.OpSum:
		return lowerSum(api, n, in(0), inShape(0)), nil

	case graph.OpMatMul:
		return lowerMatMul(api, in(0), in(1), inShape(0), inShape(1)), nil

	case graph.OpConv2D:
		return lowerConv2D(api, n, in(0), in(1), inShape(0), inShape(1)), nil

	case graph.OpReshape:
		return in(0), nil

	case graph.OpBroadcast:
		out := make([]frontend.Variable, tensor.NumElems(n.Shape))
		for i := range out {
			out[i] = in(0)[tensor.BroadcastIndex(i, n.Shape, inShape(0))]
		}
		return out, nil

	case graph.OpRescale, graph.OpReLU, graph.OpLeakyReLU, graph.OpSigmoid,
		graph.OpTanh, graph.OpExp, graph.OpSqrt, graph.OpRsqrt, graph.OpRecip,
		graph.OpGreaterThan:
		key, _ := lookup.KeyForNode(n.Op, n.Attrs, inScale(0), n.OutScale, gc.params.Bits)
		out := make([]frontend.Variable, len(in(0)))
		for i, v := range in(0) {
			r, err := query(key, v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil

	case graph.OpMax, graph.OpMin:
		// g = (a-b > 0); max = g*a + (1-g)*b, min the mirror image
		key := lookup.CompareKey(inScale(0), gc.params.Bits)
		return lowerZipErr(n, in(0), in(1), inShape(0), inShape(1), func(a, b frontend.Variable) (frontend.Variable, error) {
			g, err := query(key, api.Sub(a, b))
			if err != nil {
				return nil, err
			}
			hi, lo := a, b
			if n.Op == graph.OpMin {
				hi, lo = b, a
			}
			return api.Add(api.Mul(g, hi), api.Mul(api.Sub(1, g), lo)), nil
		})
	}

	return nil, &Error{Msg: fmt.Sprintf("node %d: operator %s has no lowering", id, n.Op)}
}

func lowerZip(n *graph.Node, a, b []frontend.Variable, sa, sb []int, f func(_, _ frontend.Variable) frontend.Variable) []frontend.Variable {
	out, _ := lowerZipErr(n, a, b, sa, sb, func(x, y frontend.Variable) (frontend.Variable, error) {
		return f(x, y), nil
	})
	return out
}

func lowerZipErr(n *graph.Node, a, b []frontend.Variable, sa, sb []int, f func(_, _ frontend.Variable) (frontend.Variable, error)) ([]frontend.Variable, error) {
	out := make([]frontend.Variable, tensor.NumElems(n.Shape))
	for i := range out {
		va := a[tensor.BroadcastIndex(i, n.Shape, sa)]
		vb := b[tensor.BroadcastIndex(i, n.Shape, sb)]
		r, err := f(va, vb)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func lowerSum(api frontend.API, n *graph.Node, in []frontend.Variable, shape []int) []frontend.Variable {
	if n.Attrs.Axis < 0 {
		return []frontend.Variable{sumVars(api, in)}
	}
	axis := n.Attrs.Axis
	outer := 1
	for _, d := range shape[:axis] {
		outer *= d
	}
	inner := 1
	for _, d := range shape[axis+1:] {
		inner *= d
	}
	cnt := shape[axis]
	out := make([]frontend.Variable, outer*inner)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			terms := make([]frontend.Variable, cnt)
			for j := 0; j < cnt; j++ {
				terms[j] = in[(o*cnt+j)*inner+i]
			}
			out[o*inner+i] = sumVars(api, terms)
		}
	}
	return out
}

func lowerMatMul(api frontend.API, a, b []frontend.Variable, sa, sb []int) []frontend.Variable {
	m, k := graph.LeftMatDims(sa)
	_, nn := graph.RightMatDims(sb)
	out := make([]frontend.Variable, m*nn)
	for i := 0; i < m; i++ {
		for j := 0; j < nn; j++ {
			terms := make([]frontend.Variable, k)
			for kk := 0; kk < k; kk++ {
				terms[kk] = api.Mul(a[i*k+kk], b[kk*nn+j])
			}
			out[i*nn+j] = sumVars(api, terms)
		}
	}
	return out
}

func lowerConv2D(api frontend.API, n *graph.Node, in, k []frontend.Variable, si, sk []int) []frontend.Variable {
	stride, pad := n.Attrs.Stride, n.Attrs.Pad
	if stride <= 0 {
		stride = 1
	}
	nb, c, h, w := si[0], si[1], si[2], si[3]
	f, kh, kw := sk[0], sk[2], sk[3]
	oh, ow := n.Shape[2], n.Shape[3]
	out := make([]frontend.Variable, nb*f*oh*ow)
	for b := 0; b < nb; b++ {
		for of := 0; of < f; of++ {
			for y := 0; y < oh; y++ {
				for x := 0; x < ow; x++ {
					var terms []frontend.Variable
					for ic := 0; ic < c; ic++ {
						for ky := 0; ky < kh; ky++ {
							for kx := 0; kx < kw; kx++ {
								iy := y*stride + ky - pad
								ix := x*stride + kx - pad
								if iy < 0 || iy >= h || ix < 0 || ix >= w {
									continue
								}
								terms = append(terms,
									api.Mul(in[((b*c+ic)*h+iy)*w+ix], k[((of*c+ic)*kh+ky)*kw+kx]))
							}
						}
					}
					out[((b*f+of)*oh+y)*ow+x] = sumVars(api, terms)
				}
			}
		}
	}
	return out
}

func sumVars(api frontend.API, terms []frontend.Variable) frontend.Variable {
	switch len(terms) {
	case 0:
		return 0
	case 1:
		return terms[0]
	default:
		return api.Add(terms[0], terms[1], terms[2:]...)
	}
}

// inputSpec finds the layout entry of an input node.
func (l *Layout) inputSpec(node int) (TensorSpec, error) {
	for _, s := range l.Inputs {
		if s.Node == node {
			return s, nil
		}
	}
	return TensorSpec{}, &Error{Msg: fmt.Sprintf("input node %d missing from layout", node)}
}
