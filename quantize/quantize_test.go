package quantize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/tensor"
)

func constOf(t *testing.T, data []float64, shape ...int) *tensor.Tensor[float64] {
	t.Helper()
	ten, err := tensor.FromSlice(data, shape...)
	require.NoError(t, err)
	return ten
}

func normalized(t *testing.T, g *graph.Graph) *graph.Graph {
	t.Helper()
	n, err := graph.Normalize(g)
	require.NoError(t, err)
	return n
}

func TestRescaleInsertion(t *testing.T) {
	g := graph.New()
	x := g.AddInput(2)
	y := g.AddInput(2)
	prod := g.AddNode(graph.OpMul, []int{x, y}, graph.Attrs{})
	g.MarkOutput(prod)

	q, err := Apply(normalized(t, g), Params{Scale: 4, Bits: 8})
	require.NoError(t, err)

	// the mul doubles the scale; an explicit rescale restores it
	var mulID, rescaleID = -1, -1
	for id, n := range q.Nodes {
		switch n.Op {
		case graph.OpMul:
			mulID = id
		case graph.OpRescale:
			rescaleID = id
		}
	}
	require.GreaterOrEqual(t, mulID, 0)
	require.GreaterOrEqual(t, rescaleID, 0)
	require.Equal(t, 8, q.Nodes[mulID].OutScale)
	require.Equal(t, 4, q.Nodes[rescaleID].OutScale)
	require.Equal(t, 4, q.Nodes[rescaleID].Attrs.ShiftBits)
	require.Equal(t, []int{mulID}, q.Nodes[rescaleID].Inputs)
	// the graph output is the rescaled value, not the raw product
	require.Equal(t, rescaleID, q.Outputs[0])
}

func TestConstQuantization(t *testing.T) {
	g := graph.New()
	x := g.AddInput(2)
	w := g.AddConst(constOf(t, []float64{0.5, -1.25}, 2))
	sum := g.AddNode(graph.OpAdd, []int{x, w}, graph.Attrs{})
	g.MarkOutput(sum)

	q, err := Apply(normalized(t, g), Params{Scale: 4, Bits: 8})
	require.NoError(t, err)

	for _, n := range q.Nodes {
		if n.Op == graph.OpConst {
			require.NotNil(t, n.QValue)
			require.Equal(t, []int64{8, -20}, n.QValue.Data)
			require.Equal(t, 4, n.QValue.Scale)
		}
	}
}

func TestRangeBoundary(t *testing.T) {
	// 127/16 = 7.9375 is the largest 8-bit value at scale 4
	build := func(v float64) *graph.Graph {
		g := graph.New()
		x := g.AddInput(1)
		c := g.AddConst(constOf(t, []float64{v}, 1))
		sum := g.AddNode(graph.OpAdd, []int{x, c}, graph.Attrs{})
		g.MarkOutput(sum)
		return g
	}

	_, err := Apply(normalized(t, build(7.9375)), Params{Scale: 4, Bits: 8})
	require.NoError(t, err)

	_, err = Apply(normalized(t, build(8.0)), Params{Scale: 4, Bits: 8})
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	require.Contains(t, qerr.Msg, "representable range")
}

func TestPrecisionTolerance(t *testing.T) {
	g := graph.New()
	x := g.AddInput(1)
	c := g.AddConst(constOf(t, []float64{0.3}, 1))
	sum := g.AddNode(graph.OpAdd, []int{x, c}, graph.Attrs{})
	g.MarkOutput(sum)

	// 0.3 at scale 4 rounds to 5/16 = 0.3125, an error of 0.0125
	_, err := Apply(normalized(t, g), Params{Scale: 4, Bits: 8, Tolerance: 0.001})
	var qerr *Error
	require.ErrorAs(t, err, &qerr)
	require.Contains(t, qerr.Msg, "precision loss")

	_, err = Apply(normalized(t, g), Params{Scale: 4, Bits: 8, Tolerance: 0.05})
	require.NoError(t, err)
}

func TestScaleRules(t *testing.T) {
	g := graph.New()
	x := g.AddInput(2)
	relu := g.AddNode(graph.OpReLU, []int{x}, graph.Attrs{})
	cmp := g.AddNode(graph.OpGreaterThan, []int{relu}, graph.Attrs{Threshold: 1.0})
	g.MarkOutput(cmp)

	q, err := Apply(normalized(t, g), Params{Scale: 4, Bits: 8})
	require.NoError(t, err)

	for _, n := range q.Nodes {
		switch n.Op {
		case graph.OpReLU:
			require.Equal(t, 4, n.OutScale)
		case graph.OpGreaterThan:
			require.Equal(t, 0, n.OutScale, "comparison output is unscaled")
		}
	}
}

func TestParamsValidate(t *testing.T) {
	require.Error(t, Params{Scale: 9, Bits: 8}.Validate())
	require.Error(t, Params{Scale: 4, Bits: 30}.Validate())
	require.Error(t, Params{Scale: -1, Bits: 8}.Validate())
	require.NoError(t, Params{Scale: 4, Bits: 8}.Validate())
}
