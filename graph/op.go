// Package graph implements the normalized computational graph consumed by the
// circuit pipeline: an arena of nodes addressed by stable integer indices,
// with a closed enumeration of operator kinds.
//
// The enumeration is deliberately closed. Every pass over the graph
// (normalization, quantization, lowering, witness evaluation) is an
// exhaustive switch, so adding an operator is a compile-time visible change
// across the whole pipeline.
package graph

// OpKind enumerates every operator the pipeline understands.
type OpKind uint8

const (
	// graph boundary
	OpInput OpKind = iota
	OpConst

	// linear / polynomial operators, lowered to arithmetic constraints
	OpAdd
	OpSub
	OpMul
	OpNeg
	OpSum
	OpMatMul
	OpConv2D
	OpReshape
	OpBroadcast
	OpRescale

	// nonlinear operators, lowered to lookup arguments
	OpReLU
	OpLeakyReLU
	OpSigmoid
	OpTanh
	OpExp
	OpSqrt
	OpRsqrt
	OpRecip
	OpGreaterThan

	// hybrid operators, lowered to a comparison lookup plus selection gates
	OpMax
	OpMin

	opKindEnd // sentinel, keep last
)

var opNames = [opKindEnd]string{
	OpInput:       "Input",
	OpConst:       "Const",
	OpAdd:         "Add",
	OpSub:         "Sub",
	OpMul:         "Mul",
	OpNeg:         "Neg",
	OpSum:         "Sum",
	OpMatMul:      "MatMul",
	OpConv2D:      "Conv2D",
	OpReshape:     "Reshape",
	OpBroadcast:   "Broadcast",
	OpRescale:     "Rescale",
	OpReLU:        "ReLU",
	OpLeakyReLU:   "LeakyReLU",
	OpSigmoid:     "Sigmoid",
	OpTanh:        "Tanh",
	OpExp:         "Exp",
	OpSqrt:        "Sqrt",
	OpRsqrt:       "Rsqrt",
	OpRecip:       "Recip",
	OpGreaterThan: "GreaterThan",
	OpMax:         "Max",
	OpMin:         "Min",
}

func (k OpKind) String() string {
	if k >= opKindEnd {
		return "Unknown"
	}
	return opNames[k]
}

// IsLookup reports whether the operator is proven via a lookup argument.
func (k OpKind) IsLookup() bool {
	switch k {
	case OpRescale, OpReLU, OpLeakyReLU, OpSigmoid, OpTanh, OpExp, OpSqrt, OpRsqrt, OpRecip, OpGreaterThan:
		return true
	}
	return false
}

// IsLinear reports whether the operator lowers to pure arithmetic
// constraints, with no lookup involved.
func (k OpKind) IsLinear() bool {
	switch k {
	case OpAdd, OpSub, OpMul, OpNeg, OpSum, OpMatMul, OpConv2D, OpReshape, OpBroadcast:
		return true
	}
	return false
}

// ScaleDoubling reports whether the operator multiplies two scaled values,
// doubling the fixed-point scale of its output.
func (k OpKind) ScaleDoubling() bool {
	switch k {
	case OpMul, OpMatMul, OpConv2D:
		return true
	}
	return false
}

// Attrs carries per-operator parameters. Only the fields relevant to the
// node's kind are meaningful.
type Attrs struct {
	// Axis for Sum reductions; -1 reduces over all elements.
	Axis int
	// Slope for LeakyReLU.
	Slope float64
	// ShiftBits for Rescale: the output is the input rounded down by
	// 2^ShiftBits, proven via a division lookup.
	ShiftBits int
	// TargetShape for Reshape and Broadcast.
	TargetShape []int
	// Stride and Pad for Conv2D.
	Stride int
	Pad    int
	// Threshold for GreaterThan, in real units (quantized at compile time).
	Threshold float64
}
