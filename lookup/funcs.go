// Package lookup builds and caches the input→output tables that let
// nonlinear and non-arithmetic operators be proven by membership instead of
// direct field arithmetic. A table enumerates the full signed domain of the
// configured bit width through the operator's reference function.
package lookup

import (
	"fmt"
	"math"

	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/tensor"
)

// Eval is the reference fixed-point function of a lookup operator: the exact
// semantics the table encodes and the witness evaluator reproduces. x is at
// the key's input scale, the result at its output scale.
func Eval(k Key, x int64) int64 {
	switch k.Op {
	case graph.OpRescale:
		return RoundDiv(x, int64(1)<<(k.ScaleIn-k.ScaleOut))
	case graph.OpReLU:
		if x < 0 {
			return 0
		}
		return x
	case graph.OpLeakyReLU:
		if x < 0 {
			return clampInt64(math.Round(k.Param * float64(x)))
		}
		return x
	case graph.OpSigmoid:
		f := 1 / (1 + math.Exp(-toReal(k, x)))
		return requant(k, f)
	case graph.OpTanh:
		return requant(k, math.Tanh(toReal(k, x)))
	case graph.OpExp:
		return requant(k, math.Exp(toReal(k, x)))
	case graph.OpSqrt:
		if x < 0 {
			return 0
		}
		return requant(k, math.Sqrt(toReal(k, x)))
	case graph.OpRsqrt:
		if x <= 0 {
			return 0
		}
		return requant(k, 1/math.Sqrt(toReal(k, x)))
	case graph.OpRecip:
		if x == 0 {
			return 0
		}
		return requant(k, 1/toReal(k, x))
	case graph.OpGreaterThan:
		if float64(x) > k.Param*tensor.ScaleMultiplier(k.ScaleIn) {
			return 1
		}
		return 0
	}
	panic(fmt.Sprintf("lookup: %s has no reference function", k.Op))
}

func toReal(k Key, x int64) float64 {
	return tensor.DequantizeValue(x, k.ScaleIn)
}

func requant(k Key, f float64) int64 {
	return clampInt64(math.Round(f * tensor.ScaleMultiplier(k.ScaleOut)))
}

// RoundDiv divides by a positive power of two, rounding half away from zero.
// This is the rescaling semantics; the witness evaluator must match it.
func RoundDiv(x, d int64) int64 {
	if x >= 0 {
		return (x + d/2) / d
	}
	return (x - d/2) / d
}

// clampInt64 keeps non-finite and overflowing float results inside int64.
// Downstream range checks reject such values; the clamp only keeps the
// conversion defined.
func clampInt64(f float64) int64 {
	const bound = 1 << 62
	if f >= bound {
		return int64(1) << 62
	}
	if f <= -bound {
		return -(int64(1) << 62)
	}
	return int64(f)
}
