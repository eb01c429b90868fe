package tensorzk_test

import (
	"testing"

	"github.com/tensorzk/tensorzk"
	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/prover"
	"github.com/tensorzk/tensorzk/tensor"
	"github.com/tensorzk/tensorzk/test"
)

// reluLayer builds ReLU(W·x + b) with constant weights and a single private
// input vector.
func reluLayer(a *test.Assert) *graph.Graph {
	w, err := tensor.FromSlice([]float64{0.5, -0.25, 1.0, 0.75}, 2, 2)
	a.NoError(err)
	b, err := tensor.FromSlice([]float64{0.5, -0.25}, 2)
	a.NoError(err)

	g := graph.New()
	x := g.AddInput(2)
	wID := g.AddConst(w)
	bID := g.AddConst(b)
	mm := g.AddNode(graph.OpMatMul, []int{wID, x}, graph.Attrs{})
	sum := g.AddNode(graph.OpAdd, []int{mm, bID}, graph.Attrs{})
	out := g.AddNode(graph.OpReLU, []int{sum}, graph.Attrs{})
	g.MarkOutput(out)
	return g
}

func vec(a *test.Assert, data ...float64) *tensor.Tensor[float64] {
	ten, err := tensor.FromSlice(data, len(data))
	a.NoError(err)
	return ten
}

var smallCfg = tensorzk.Config{Scale: 4, Bits: 8, LookupCellBudget: 1 << 16}

func TestReLULayerEndToEnd(t *testing.T) {
	a := test.NewAssert(t)
	outputs := a.ProveSucceeded(reluLayer(a), smallCfg, []*tensor.Tensor[float64]{vec(a, 1.5, -2.0)})

	a.Len(outputs, 1)
	// ReLU(W·x + b) = ReLU([1.75, -0.25]) = [1.75, 0] exactly at scale 4
	a.Equal([]int64{28, 0}, outputs[0].Data)
	a.InDelta(1.75, tensor.DequantizeValue(outputs[0].Data[0], outputs[0].Scale), 1e-9)
}

func TestTamperedOutputRejected(t *testing.T) {
	a := test.NewAssert(t)
	g := reluLayer(a)

	circuit, pk, vk, err := tensorzk.Compile(g, smallCfg)
	a.NoError(err)
	proof, outputs, err := tensorzk.Prove(circuit, pk, []*tensor.Tensor[float64]{vec(a, 1.5, -2.0)})
	a.NoError(err)

	outputs[0].Data[0]++
	ok, reason := tensorzk.VerifyWithReason(vk, proof, outputs)
	a.False(ok, "a tampered output must not verify")
	a.NotEqual(prover.Accepted, reason)
}

func TestKeyMismatchRejected(t *testing.T) {
	a := test.NewAssert(t)

	circuit, pk, _, err := tensorzk.Compile(reluLayer(a), smallCfg)
	a.NoError(err)
	proof, outputs, err := tensorzk.Prove(circuit, pk, []*tensor.Tensor[float64]{vec(a, 1.5, -2.0)})
	a.NoError(err)

	// a key from a different quantization is a different circuit
	otherCfg := smallCfg
	otherCfg.Scale = 3
	_, _, otherVK, err := tensorzk.Compile(reluLayer(a), otherCfg)
	a.NoError(err)

	ok, reason := tensorzk.VerifyWithReason(otherVK, proof, outputs)
	a.False(ok)
	a.Equal(prover.VersionMismatch, reason)
}

func TestNilProofRejected(t *testing.T) {
	a := test.NewAssert(t)
	_, _, vk, err := tensorzk.Compile(reluLayer(a), smallCfg)
	a.NoError(err)

	ok, reason := tensorzk.VerifyWithReason(vk, nil, nil)
	a.False(ok)
	a.Equal(prover.MalformedProof, reason)
}

func TestOutOfRangeInputFails(t *testing.T) {
	a := test.NewAssert(t)
	// 100.0 cannot be represented in 8 bits at scale 4
	err := a.ProveFailed(reluLayer(a), smallCfg, []*tensor.Tensor[float64]{vec(a, 100.0, 0)})
	a.Error(err)
}

func TestProductionScale(t *testing.T) {
	if testing.Short() {
		t.Skip("builds a 2^24-row rescale table")
	}
	a := test.NewAssert(t)
	cfg := tensorzk.Config{Scale: 8, Bits: 16, LookupCellBudget: 1 << 26}
	outputs := a.ProveSucceeded(reluLayer(a), cfg, []*tensor.Tensor[float64]{vec(a, 1.5, -2.0)})

	a.InDelta(1.75, tensor.DequantizeValue(outputs[0].Data[0], outputs[0].Scale), 1.0/256)
	a.Equal(int64(0), outputs[0].Data[1])
}
