// Package tensorzk proves and verifies the correct execution of quantized
// tensor computations. A computational graph is compiled once into an
// arithmetic circuit with lookup arguments for its nonlinear operators;
// each inference then produces a succinct proof that the claimed outputs
// follow from the (private) inputs, checkable without re-execution.
package tensorzk

import (
	"github.com/consensys/gnark/logger"

	"github.com/tensorzk/tensorzk/compiler"
	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/quantize"
)

// Config is the caller-owned configuration surface of Compile: quantization
// and resource budgets. Nothing here has a baked-in default.
type Config struct {
	// Scale is the fixed-point fractional bit count.
	Scale int
	// Bits is the signed bit width of every tensor value.
	Bits int
	// Tolerance bounds the precision loss accepted when quantizing
	// constants; zero selects the half-step bound.
	Tolerance float64
	// LookupCellBudget caps any single lookup table's cell count.
	LookupCellBudget int
	// RowBudget caps the circuit's constraint count; zero disables.
	RowBudget int
}

func (c Config) quant() quantize.Params {
	return quantize.Params{Scale: c.Scale, Bits: c.Bits, Tolerance: c.Tolerance}
}

// Compile normalizes, quantizes and lowers a graph, then derives the key
// material. The returned artifacts are immutable and safe for concurrent
// proving and verification. Compilation is all-or-nothing.
func Compile(g *graph.Graph, cfg Config) (*compiler.Circuit, *compiler.ProvingKey, *compiler.VerifyingKey, error) {
	log := logger.Logger()

	normalized, err := graph.Normalize(g)
	if err != nil {
		return nil, nil, nil, err
	}
	quantized, err := quantize.Apply(normalized, cfg.quant())
	if err != nil {
		return nil, nil, nil, err
	}
	circuit, err := compiler.Compile(quantized, compiler.Config{
		Quant:            cfg.quant(),
		LookupCellBudget: cfg.LookupCellBudget,
		RowBudget:        cfg.RowBudget,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	pk, vk, err := compiler.Setup(circuit)
	if err != nil {
		return nil, nil, nil, err
	}

	log.Info().
		Int("scale", cfg.Scale).
		Int("bits", cfg.Bits).
		Hex("fingerprint", circuit.Fingerprint[:8]).
		Msg("compile pipeline done")
	return circuit, pk, vk, nil
}
