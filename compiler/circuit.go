// Package compiler lowers a quantized computational graph into an arithmetic
// constraint system: linear operators become polynomial constraints over
// advice wires, nonlinear operators become lookup queries against shared
// precomputed tables. The finished circuit plus its key material is reusable
// across any number of proof requests.
package compiler

import (
	"crypto/sha256"
	"fmt"

	"github.com/consensys/gnark/constraint"
	"github.com/fxamacker/cbor/v2"

	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/quantize"
)

// Config bounds the resources a compilation may consume. All knobs are
// caller-owned inputs; the compiler bakes in no defaults.
type Config struct {
	Quant quantize.Params
	// LookupCellBudget caps the cell count of any single lookup table.
	LookupCellBudget int
	// RowBudget caps the constraint count of the lowered circuit. Zero
	// disables the check.
	RowBudget int
}

// TensorSpec maps one graph-boundary tensor to a contiguous range of wires.
type TensorSpec struct {
	Node   int   `cbor:"1,keyasint"`
	Shape  []int `cbor:"2,keyasint"`
	Scale  int   `cbor:"3,keyasint"`
	Offset int   `cbor:"4,keyasint"`
	Len    int   `cbor:"5,keyasint"`
}

// Layout is the column-to-tensor mapping: where each input and output tensor
// lives in the witness, and at which fixed-point scale.
type Layout struct {
	Inputs  []TensorSpec `cbor:"1,keyasint"`
	Outputs []TensorSpec `cbor:"2,keyasint"`
}

// NbInputWires returns the total input wire count.
func (l *Layout) NbInputWires() int {
	n := 0
	for _, s := range l.Inputs {
		n += s.Len
	}
	return n
}

// NbOutputWires returns the total public output wire count.
func (l *Layout) NbOutputWires() int {
	n := 0
	for _, s := range l.Outputs {
		n += s.Len
	}
	return n
}

// Stats summarizes a compiled circuit.
type Stats struct {
	NbNodes       int
	NbConstraints int
	NbTables      int
	NbLookups     int
}

// Circuit is the compiled artifact: the constraint system, the wire layout,
// the quantization contract, and the quantized graph (needed to regenerate
// witnesses). Immutable after Compile; safe for concurrent use.
type Circuit struct {
	CS     constraint.ConstraintSystem
	Layout Layout
	Params quantize.Params
	Graph  *graph.Graph

	// Fingerprint binds keys, witnesses and proofs to this exact
	// compilation (graph, layout and quantization parameters).
	Fingerprint [32]byte

	stats Stats
}

// Stats returns compile-time statistics.
func (c *Circuit) Stats() Stats { return c.stats }

// fingerprint hashes everything that determines circuit semantics. Two
// compilations of the same graph at different scales must not share keys.
func fingerprint(g *graph.Graph, p quantize.Params, l *Layout) ([32]byte, error) {
	payload, err := cbor.Marshal(struct {
		Graph  *graph.Graph    `cbor:"1,keyasint"`
		Params quantize.Params `cbor:"2,keyasint"`
		Layout *Layout         `cbor:"3,keyasint"`
	}{g, p, l})
	if err != nil {
		return [32]byte{}, fmt.Errorf("compiler: fingerprint: %w", err)
	}
	return sha256.Sum256(payload), nil
}
