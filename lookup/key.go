package lookup

import "github.com/tensorzk/tensorzk/graph"

// KeyForNode derives the dedup key of a lookup-lowered node from its kind,
// attributes and scales. The second return is false for operators that do
// not lower to a lookup. The compiler and the witness evaluator both derive
// keys through here, so the table contents and the evaluated values can
// never drift apart.
func KeyForNode(op graph.OpKind, attrs graph.Attrs, inScale, outScale, bits int) (Key, bool) {
	if !op.IsLookup() {
		return Key{}, false
	}
	k := Key{Op: op, Bits: bits, ScaleIn: inScale, ScaleOut: outScale}
	switch op {
	case graph.OpRescale:
		// the input sits at the pre-rescale (doubled) scale, so its domain
		// needs ShiftBits of headroom beyond the global bit width
		k.Bits = bits + attrs.ShiftBits
	case graph.OpLeakyReLU:
		k.Param = attrs.Slope
	case graph.OpGreaterThan:
		k.Param = attrs.Threshold
	}
	return k, true
}

// CompareKey is the zero-threshold comparison table used by the Max and Min
// lowerings: sign(x) as a 0/1 output. The difference of two in-range values
// needs one extra domain bit.
func CompareKey(scale, bits int) Key {
	return Key{Op: graph.OpGreaterThan, Bits: bits + 1, ScaleIn: scale, ScaleOut: 0}
}
