package prover

import (
	"bytes"
	"errors"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/consensys/gnark/backend/plonk"

	"github.com/tensorzk/tensorzk/compiler"
	"github.com/tensorzk/tensorzk/tensor"
	"github.com/tensorzk/tensorzk/witness"
)

// Reason classifies a verification outcome. A rejection is a first-class
// result, not an error; the verifier never panics on malformed input.
type Reason uint8

const (
	Accepted Reason = iota
	// MalformedProof: the proof or public inputs are structurally invalid.
	MalformedProof
	// VersionMismatch: the proof or outputs belong to a different
	// compilation than the verifying key.
	VersionMismatch
	// CommitmentMismatch: a commitment check failed; the claimed public
	// outputs are not what the witness commits to.
	CommitmentMismatch
	// OpeningFailure: an evaluation opening (pairing check) failed.
	OpeningFailure
)

func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case MalformedProof:
		return "malformed proof"
	case VersionMismatch:
		return "version mismatch"
	case CommitmentMismatch:
		return "commitment mismatch"
	case OpeningFailure:
		return "opening failure"
	}
	return "rejected"
}

// Verify checks a proof against the verifying key and the claimed public
// output tensors. It never re-executes the witness; cost is independent of
// circuit size up to the commitment scheme's pairing checks.
func Verify(vk *compiler.VerifyingKey, proof *Proof, publicOutputs []*tensor.Tensor[int64]) (ok bool, reason Reason) {
	// a structurally broken proof must reject, not crash
	defer func() {
		if recover() != nil {
			ok, reason = false, MalformedProof
		}
	}()

	if vk == nil || vk.VK == nil || proof == nil || proof.Proof == nil {
		return false, MalformedProof
	}
	if !bytes.Equal(vk.Fingerprint[:], proof.Fingerprint[:]) {
		return false, VersionMismatch
	}

	pub, err := witness.PublicWitness(vk, publicOutputs)
	if err != nil {
		return false, MalformedProof
	}

	if err := plonk.Verify(proof.Proof, vk.VK, pub); err != nil {
		return false, classify(err)
	}
	return true, Accepted
}

// classify maps a backend verification error to a reject reason. The KZG
// layer exports a sentinel for failed opening proofs; anything else from the
// backend (wrong claimed quotient, inconsistent commitments) keeps its errors
// unexported, so those fall through on message text as a best effort.
func classify(err error) Reason {
	if errors.Is(err, kzg.ErrVerifyOpeningProof) {
		return OpeningFailure
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "pairing") || strings.Contains(msg, "opening") {
		return OpeningFailure
	}
	return CommitmentMismatch
}
