// Package witness executes a quantized graph on concrete inputs, with the
// exact fixed-point semantics the quantizer assumed, and fills the advice
// wires of a compiled circuit. Generation is deterministic: identical inputs
// against the same circuit produce a bit-identical witness.
package witness

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"

	"github.com/tensorzk/tensorzk/compiler"
	"github.com/tensorzk/tensorzk/tensor"
)

// Error reports a concrete input the compiled circuit cannot represent. It
// is fatal for this input only; the fix is a recompile with a wider bit
// width, not a retry.
type Error struct {
	Node  int
	Value int64
	Msg   string
}

func (e *Error) Error() string {
	if e.Node < 0 {
		return "witness: " + e.Msg
	}
	return fmt.Sprintf("witness: node %d: %s (value %d)", e.Node, e.Msg, e.Value)
}

// Witness is a complete assignment for one inference: the full advice
// vector, its public slice, and the evaluated output tensors. Consumed,
// never mutated, by the prover.
type Witness struct {
	Full    witness.Witness
	Public  witness.Witness
	Outputs []*tensor.Tensor[int64]

	// Fingerprint of the circuit this witness was generated against.
	Fingerprint [32]byte
}

// Generate evaluates the circuit's graph on the given raw input tensors and
// returns the full witness. Inputs are quantized at the circuit's declared
// scale; any value that does not fit the declared bit width fails.
func Generate(c *compiler.Circuit, inputs []*tensor.Tensor[float64]) (*Witness, error) {
	if len(inputs) != len(c.Layout.Inputs) {
		return nil, &Error{Node: -1,
			Msg: fmt.Sprintf("got %d input tensors, circuit declares %d", len(inputs), len(c.Layout.Inputs))}
	}

	quantized := make([]*tensor.Tensor[int64], len(inputs))
	for i, spec := range c.Layout.Inputs {
		if !tensor.SameShape(inputs[i].Shape, spec.Shape) {
			return nil, &Error{Node: spec.Node,
				Msg: fmt.Sprintf("input %d has shape %v, circuit declares %v", i, inputs[i].Shape, spec.Shape)}
		}
		q := tensor.Quantize(inputs[i], spec.Scale)
		for _, v := range q.Data {
			if !tensor.InRange(v, c.Params.Bits) {
				return nil, &Error{Node: spec.Node, Value: v,
					Msg: fmt.Sprintf("input value outside %d-bit range", c.Params.Bits)}
			}
		}
		quantized[i] = q
	}

	values, err := evalGraph(c, quantized)
	if err != nil {
		return nil, err
	}

	outputs := make([]*tensor.Tensor[int64], len(c.Layout.Outputs))
	for i, spec := range c.Layout.Outputs {
		outputs[i] = values[spec.Node]
	}

	full, pub, err := assemble(c, quantized, outputs)
	if err != nil {
		return nil, err
	}
	return &Witness{
		Full:        full,
		Public:      pub,
		Outputs:     outputs,
		Fingerprint: c.Fingerprint,
	}, nil
}

// assemble maps the evaluated tensors onto the circuit's wire layout and
// builds the gnark witness vectors.
func assemble(c *compiler.Circuit, in, out []*tensor.Tensor[int64]) (witness.Witness, witness.Witness, error) {
	inVars := make([]frontend.Variable, c.Layout.NbInputWires())
	for i, spec := range c.Layout.Inputs {
		for k, v := range in[i].Data {
			inVars[spec.Offset+k] = tensor.IntToField(v)
		}
	}
	outVars := make([]frontend.Variable, c.Layout.NbOutputWires())
	for i, spec := range c.Layout.Outputs {
		for k, v := range out[i].Data {
			outVars[spec.Offset+k] = tensor.IntToField(v)
		}
	}

	assignment := c.Assignment(inVars, outVars)
	full, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, nil, fmt.Errorf("witness: assemble: %w", err)
	}
	pub, err := full.Public()
	if err != nil {
		return nil, nil, fmt.Errorf("witness: public slice: %w", err)
	}
	return full, pub, nil
}

// PublicWitness rebuilds a public-only witness from claimed output tensors
// and a verifying key. The verifier uses this; it never sees the full
// witness.
func PublicWitness(vk *compiler.VerifyingKey, outputs []*tensor.Tensor[int64]) (witness.Witness, error) {
	if len(outputs) != len(vk.Outputs) {
		return nil, &Error{Node: -1,
			Msg: fmt.Sprintf("got %d output tensors, key declares %d", len(outputs), len(vk.Outputs))}
	}
	vals := make([]frontend.Variable, vk.NbPublic)
	for i, spec := range vk.Outputs {
		if !tensor.SameShape(outputs[i].Shape, spec.Shape) {
			return nil, &Error{Node: spec.Node,
				Msg: fmt.Sprintf("output %d has shape %v, key declares %v", i, outputs[i].Shape, spec.Shape)}
		}
		for k, v := range outputs[i].Data {
			vals[spec.Offset+k] = tensor.IntToField(v)
		}
	}

	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}
	ch := make(chan any, len(vals))
	for _, v := range vals {
		ch <- v
	}
	close(ch)
	if err := w.Fill(vk.NbPublic, 0, ch); err != nil {
		return nil, fmt.Errorf("witness: fill public: %w", err)
	}
	return w, nil
}
