package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/lookup"
	"github.com/tensorzk/tensorzk/quantize"
)

func reluChain(t *testing.T, n int) *graph.Graph {
	t.Helper()
	g := graph.New()
	id := g.AddInput(2)
	for i := 0; i < n; i++ {
		id = g.AddNode(graph.OpReLU, []int{id}, graph.Attrs{})
	}
	g.MarkOutput(id)
	ng, err := graph.Normalize(g)
	require.NoError(t, err)
	return ng
}

func quantized(t *testing.T, g *graph.Graph, p quantize.Params) *graph.Graph {
	t.Helper()
	q, err := quantize.Apply(g, p)
	require.NoError(t, err)
	return q
}

func TestTableSharing(t *testing.T) {
	p := quantize.Params{Scale: 2, Bits: 6}
	c, err := Compile(quantized(t, reluChain(t, 2), p), Config{Quant: p})
	require.NoError(t, err)

	// two structurally identical ReLUs share one table but query it once
	// per tensor element each
	require.Equal(t, 1, c.Stats().NbTables)
	require.Equal(t, 4, c.Stats().NbLookups)
}

func TestRowBudget(t *testing.T) {
	p := quantize.Params{Scale: 2, Bits: 6}
	_, err := Compile(quantized(t, reluChain(t, 1), p), Config{Quant: p, RowBudget: 1})

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, "rows", cerr.Budget)
	require.Equal(t, 1, cerr.Limit)
	require.Greater(t, cerr.Used, 1)
}

func TestLookupCellBudget(t *testing.T) {
	p := quantize.Params{Scale: 2, Bits: 6}
	// a 6-bit table needs 128 cells
	_, err := Compile(quantized(t, reluChain(t, 1), p), Config{Quant: p, LookupCellBudget: 64})

	var oerr *lookup.OverflowError
	require.True(t, errors.As(err, &oerr), "cell budget violation must surface through compilation: %v", err)
}

func TestFingerprintBindsParams(t *testing.T) {
	g := reluChain(t, 1)
	a, err := Compile(quantized(t, g, quantize.Params{Scale: 2, Bits: 6}), Config{Quant: quantize.Params{Scale: 2, Bits: 6}})
	require.NoError(t, err)
	b, err := Compile(quantized(t, g, quantize.Params{Scale: 3, Bits: 6}), Config{Quant: quantize.Params{Scale: 3, Bits: 6}})
	require.NoError(t, err)
	require.NotEqual(t, a.Fingerprint, b.Fingerprint)

	c, err := Compile(quantized(t, g, quantize.Params{Scale: 2, Bits: 6}), Config{Quant: quantize.Params{Scale: 2, Bits: 6}})
	require.NoError(t, err)
	require.Equal(t, a.Fingerprint, c.Fingerprint, "recompilation is deterministic")
}

func TestLayout(t *testing.T) {
	p := quantize.Params{Scale: 2, Bits: 6}
	g := graph.New()
	x := g.AddInput(2, 3)
	y := g.AddInput(4)
	sum := g.AddNode(graph.OpSum, []int{x}, graph.Attrs{Axis: -1})
	g.MarkOutput(sum)
	g.MarkOutput(y)
	ng, err := graph.Normalize(g)
	require.NoError(t, err)

	c, err := Compile(quantized(t, ng, p), Config{Quant: p})
	require.NoError(t, err)

	require.Equal(t, 10, c.Layout.NbInputWires())
	require.Equal(t, 5, c.Layout.NbOutputWires())
	require.Equal(t, 0, c.Layout.Inputs[0].Offset)
	require.Equal(t, 6, c.Layout.Inputs[1].Offset)
	require.Equal(t, []int{4}, c.Layout.Inputs[1].Shape)
}
