package tensor

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
)

// Signed fixed-point values map into the BN254 scalar field two's-complement
// style: non-negative values map to themselves, negative values wrap around
// the modulus. Field elements above the midpoint map back to negatives.

// IntToField maps a signed fixed-point value to a field element.
func IntToField(v int64) *big.Int {
	x := big.NewInt(v)
	if v < 0 {
		x.Add(x, ecc.BN254.ScalarField())
	}
	return x
}

// FieldToInt inverts IntToField. Values above the field midpoint are
// interpreted as negative.
func FieldToInt(x *big.Int) int64 {
	mod := ecc.BN254.ScalarField()
	mid := new(big.Int).Rsh(mod, 1)
	if x.Cmp(mid) > 0 {
		return new(big.Int).Sub(x, mod).Int64()
	}
	return x.Int64()
}

// ToFieldSlice maps a quantized tensor's data to field elements.
func ToFieldSlice(t *Tensor[int64]) []*big.Int {
	out := make([]*big.Int, len(t.Data))
	for i, v := range t.Data {
		out[i] = IntToField(v)
	}
	return out
}
