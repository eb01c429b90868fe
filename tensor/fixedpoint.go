package tensor

import "math"

// ScaleMultiplier returns 2^scale as a float, the multiplier between real
// values and their fixed-point representation.
func ScaleMultiplier(scale int) float64 {
	return math.Exp2(float64(scale))
}

// QuantizeValue rounds a real value to fixed point at the given scale.
// Rounding is half away from zero, matching the witness evaluator.
func QuantizeValue(v float64, scale int) int64 {
	return int64(math.Round(v * ScaleMultiplier(scale)))
}

// DequantizeValue maps a fixed-point value back to a real value.
func DequantizeValue(v int64, scale int) float64 {
	return float64(v) / ScaleMultiplier(scale)
}

// Quantize converts a float tensor to fixed point at the given scale.
// Range checking against a bit width is the quantizer's concern, not ours.
func Quantize(t *Tensor[float64], scale int) *Tensor[int64] {
	out := New[int64](t.Shape...)
	out.Scale = scale
	for i, v := range t.Data {
		out.Data[i] = QuantizeValue(v, scale)
	}
	return out
}

// Dequantize converts a fixed-point tensor back to floats using its scale.
func Dequantize(t *Tensor[int64]) *Tensor[float64] {
	out := New[float64](t.Shape...)
	for i, v := range t.Data {
		out.Data[i] = DequantizeValue(v, t.Scale)
	}
	return out
}

// MaxRepresentable returns the largest magnitude representable in a signed
// fixed-point value of the given bit width, i.e. 2^(bits-1) - 1.
func MaxRepresentable(bits int) int64 {
	return (int64(1) << (bits - 1)) - 1
}

// InRange reports whether v fits a signed value of the given bit width.
func InRange(v int64, bits int) bool {
	bound := int64(1) << (bits - 1)
	return v >= -bound && v < bound
}
