// Package test provides pipeline-level assertion helpers for circuit tests:
// compile, prove and verify in one call, failing the test on any divergence
// from the expected outcome.
package test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensorzk/tensorzk"
	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/tensor"
)

type Assert struct {
	t *testing.T
	*require.Assertions
}

func NewAssert(t *testing.T) *Assert {
	return &Assert{t: t, Assertions: require.New(t)}
}

// ProveSucceeded runs the full pipeline and requires the proof to verify.
// It returns the public outputs for further checks.
func (a *Assert) ProveSucceeded(g *graph.Graph, cfg tensorzk.Config, inputs []*tensor.Tensor[float64]) []*tensor.Tensor[int64] {
	a.t.Helper()
	circuit, pk, vk, err := tensorzk.Compile(g, cfg)
	a.NoError(err, "compile should succeed")

	proof, outputs, err := tensorzk.Prove(circuit, pk, inputs)
	a.NoError(err, "prove should succeed")

	ok, reason := tensorzk.VerifyWithReason(vk, proof, outputs)
	a.True(ok, "proof should verify, rejected with %s", reason)
	return outputs
}

// ProveFailed runs witness generation and proving and requires a failure.
func (a *Assert) ProveFailed(g *graph.Graph, cfg tensorzk.Config, inputs []*tensor.Tensor[float64]) error {
	a.t.Helper()
	circuit, pk, _, err := tensorzk.Compile(g, cfg)
	a.NoError(err, "compile should succeed")

	_, _, err = tensorzk.Prove(circuit, pk, inputs)
	a.Error(err, "prove should fail")
	return err
}
