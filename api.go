package tensorzk

import (
	"github.com/tensorzk/tensorzk/compiler"
	"github.com/tensorzk/tensorzk/prover"
	"github.com/tensorzk/tensorzk/tensor"
	"github.com/tensorzk/tensorzk/witness"
)

// Prove generates a witness for the given raw inputs and produces a proof
// plus the public output tensors the proof commits to. Proving identical
// inputs twice yields identical witnesses; there is nothing to gain from
// retrying a failed proof with unchanged inputs.
func Prove(c *compiler.Circuit, pk *compiler.ProvingKey, inputs []*tensor.Tensor[float64]) (*prover.Proof, []*tensor.Tensor[int64], error) {
	w, err := witness.Generate(c, inputs)
	if err != nil {
		return nil, nil, err
	}
	proof, err := prover.Prove(c, pk, w)
	if err != nil {
		return nil, nil, err
	}
	return proof, w.Outputs, nil
}

// Verify checks a proof against the verifying key and the claimed public
// outputs. Rejections are a first-class outcome; use VerifyWithReason for
// the reject classification.
func Verify(vk *compiler.VerifyingKey, proof *prover.Proof, publicOutputs []*tensor.Tensor[int64]) bool {
	ok, _ := prover.Verify(vk, proof, publicOutputs)
	return ok
}

// VerifyWithReason is Verify with the reject reason exposed.
func VerifyWithReason(vk *compiler.VerifyingKey, proof *prover.Proof, publicOutputs []*tensor.Tensor[int64]) (bool, prover.Reason) {
	return prover.Verify(vk, proof, publicOutputs)
}
