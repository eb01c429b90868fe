// Package prover runs the proving protocol over a compiled circuit and a
// witness, and checks proofs against the verifying key. The polynomial
// commitment scheme, Fiat-Shamir transcript and opening protocol are the
// PLONK backend's; challenges derive deterministically from commitments and
// public inputs, never from external randomness.
package prover

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/logger"

	"github.com/tensorzk/tensorzk/compiler"
	"github.com/tensorzk/tensorzk/witness"
)

// Proof is an opaque bundle of commitments and evaluation openings,
// self-contained modulo the verifying key and public inputs. The fingerprint
// ties it to the compilation that produced it.
type Proof struct {
	Proof       plonk.Proof
	Fingerprint [32]byte
}

// KeyMismatchError reports a circuit and proving key from different setups.
type KeyMismatchError struct {
	Circuit [32]byte
	Key     [32]byte
}

func (e *KeyMismatchError) Error() string {
	return fmt.Sprintf("prover: proving key fingerprint %x does not match circuit %x", e.Key[:8], e.Circuit[:8])
}

// UnsatisfiedConstraintError means the witness does not satisfy the circuit.
// This is an internal inconsistency between compiler and witness generator,
// always a defect; it must surface fatally and is never retried.
type UnsatisfiedConstraintError struct {
	Err error
}

func (e *UnsatisfiedConstraintError) Error() string {
	return "prover: witness does not satisfy circuit (compiler/witness defect): " + e.Err.Error()
}

func (e *UnsatisfiedConstraintError) Unwrap() error { return e.Err }

// Prove produces a proof that the witness satisfies the circuit. Proving is
// CPU-heavy and has no side effects beyond the returned proof; the backend
// parallelizes its FFTs and multi-scalar multiplications across cores.
func Prove(c *compiler.Circuit, pk *compiler.ProvingKey, w *witness.Witness) (*Proof, error) {
	if !bytes.Equal(c.Fingerprint[:], pk.Fingerprint[:]) {
		return nil, &KeyMismatchError{Circuit: c.Fingerprint, Key: pk.Fingerprint}
	}
	if !bytes.Equal(c.Fingerprint[:], w.Fingerprint[:]) {
		return nil, &KeyMismatchError{Circuit: c.Fingerprint, Key: w.Fingerprint}
	}

	proof, err := plonk.Prove(c.CS, pk.PK, w.Full)
	if err != nil {
		// the witness generator guarantees satisfying assignments; a solver
		// failure here can only be a pipeline defect
		return nil, &UnsatisfiedConstraintError{Err: err}
	}

	log := logger.Logger()
	log.Info().Int("nbConstraints", c.CS.GetNbConstraints()).Msg("proof generated")
	return &Proof{Proof: proof, Fingerprint: c.Fingerprint}, nil
}
