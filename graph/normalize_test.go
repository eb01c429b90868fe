package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorzk/tensorzk/tensor"
)

func constOf(t *testing.T, data []float64, shape ...int) *tensor.Tensor[float64] {
	t.Helper()
	ten, err := tensor.FromSlice(data, shape...)
	require.NoError(t, err)
	return ten
}

func TestConstantFolding(t *testing.T) {
	g := New()
	a := g.AddConst(constOf(t, []float64{1, 2}, 2))
	b := g.AddConst(constOf(t, []float64{3, 4}, 2))
	sum := g.AddNode(OpAdd, []int{a, b}, Attrs{})
	x := g.AddInput(2)
	out := g.AddNode(OpMul, []int{sum, x}, Attrs{})
	g.MarkOutput(out)

	n, err := Normalize(g)
	require.NoError(t, err)

	// the add collapsed into a single constant
	var consts int
	for _, node := range n.Nodes {
		require.NotEqual(t, OpAdd, node.Op)
		if node.Op == OpConst {
			consts++
			require.Equal(t, []float64{4, 6}, node.Value.Data)
		}
	}
	require.Equal(t, 1, consts)
}

func TestMatMulFusion(t *testing.T) {
	g := New()
	x := g.AddInput(2)
	w1 := g.AddConst(constOf(t, []float64{1, 0, 0, 1}, 2, 2))
	w2 := g.AddConst(constOf(t, []float64{2, 0, 0, 2}, 2, 2))
	m1 := g.AddNode(OpMatMul, []int{x, w1}, Attrs{})
	m2 := g.AddNode(OpMatMul, []int{m1, w2}, Attrs{})
	g.MarkOutput(m2)

	n, err := Normalize(g)
	require.NoError(t, err)

	matmuls := 0
	for _, node := range n.Nodes {
		if node.Op == OpMatMul {
			matmuls++
			// the rewire must stick: the surviving matmul reads the graph
			// input and the fused constant, not the inner matmul
			require.Equal(t, OpInput, n.Nodes[node.Inputs[0]].Op)
			require.Equal(t, OpConst, n.Nodes[node.Inputs[1]].Op)
		}
	}
	require.Equal(t, 1, matmuls, "consecutive matmuls should fuse")

	// and the fused weight is the matrix product
	for _, node := range n.Nodes {
		if node.Op == OpConst {
			require.Equal(t, []float64{2, 0, 0, 2}, node.Value.Data)
		}
	}
}

func TestMatMulFusionChain(t *testing.T) {
	g := New()
	x := g.AddInput(2)
	w1 := g.AddConst(constOf(t, []float64{2, 0, 0, 2}, 2, 2))
	w2 := g.AddConst(constOf(t, []float64{0, 1, 1, 0}, 2, 2))
	w3 := g.AddConst(constOf(t, []float64{3, 0, 0, 3}, 2, 2))
	m := g.AddNode(OpMatMul, []int{x, w1}, Attrs{})
	m = g.AddNode(OpMatMul, []int{m, w2}, Attrs{})
	m = g.AddNode(OpMatMul, []int{m, w3}, Attrs{})
	g.MarkOutput(m)

	n, err := Normalize(g)
	require.NoError(t, err)

	matmuls := 0
	for _, node := range n.Nodes {
		if node.Op == OpMatMul {
			matmuls++
			require.Equal(t, []float64{0, 6, 6, 0}, n.Nodes[node.Inputs[1]].Value.Data)
		}
	}
	require.Equal(t, 1, matmuls, "a whole chain collapses into one matmul")
}

func TestNormalizeLeavesOriginalUntouched(t *testing.T) {
	g := New()
	a := g.AddConst(constOf(t, []float64{1}, 1))
	b := g.AddConst(constOf(t, []float64{2}, 1))
	sum := g.AddNode(OpAdd, []int{a, b}, Attrs{})
	g.MarkOutput(sum)

	before := len(g.Nodes)
	_, err := Normalize(g)
	require.NoError(t, err)
	require.Len(t, g.Nodes, before)
	require.Equal(t, OpAdd, g.Nodes[sum].Op)
}

func TestShapeMismatch(t *testing.T) {
	g := New()
	x := g.AddInput(2)
	w := g.AddConst(constOf(t, []float64{1, 2, 3}, 3))
	bad := g.AddNode(OpAdd, []int{x, w}, Attrs{})
	g.MarkOutput(bad)

	_, err := Normalize(g)
	require.Error(t, err)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, ErrShapeMismatch, gerr.Kind)
}

func TestCycleDetection(t *testing.T) {
	g := New()
	x := g.AddInput(1)
	// forward reference: node 1 consumes node 2
	g.Nodes = append(g.Nodes, Node{Op: OpNeg, Inputs: []int{2}})
	g.Nodes = append(g.Nodes, Node{Op: OpNeg, Inputs: []int{1}})
	_ = x
	g.MarkOutput(2)

	_, err := Normalize(g)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, ErrCycle, gerr.Kind)
}

func TestNoOutputs(t *testing.T) {
	g := New()
	g.AddInput(1)
	_, err := Normalize(g)
	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, ErrNoOutputs, gerr.Kind)
}

func TestMatMulShapes(t *testing.T) {
	g := New()
	x := g.AddInput(3)
	w := g.AddConst(constOf(t, []float64{1, 2, 3, 4, 5, 6}, 2, 3))
	mm := g.AddNode(OpMatMul, []int{w, x}, Attrs{})
	g.MarkOutput(mm)

	n, err := Normalize(g)
	require.NoError(t, err)
	require.Equal(t, []int{2}, n.Nodes[n.Outputs[0]].Shape)
}
