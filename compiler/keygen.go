package compiler

import (
	"fmt"

	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/logger"
	"github.com/consensys/gnark/test/unsafekzg"
)

// ProvingKey is the prover's key material, bound to one compilation by the
// circuit fingerprint.
type ProvingKey struct {
	PK          plonk.ProvingKey
	Fingerprint [32]byte
}

// VerifyingKey is the minimal, safely publishable data needed to check
// proofs. The fingerprint doubles as the circuit-version tag: a proof or
// public input produced under a different compilation never verifies.
type VerifyingKey struct {
	VK          plonk.VerifyingKey
	Fingerprint [32]byte
	// NbPublic is the public output wire count, needed to rebuild the
	// public witness without the circuit.
	NbPublic int
	// Outputs echoes the circuit's output layout so the verifier can map
	// claimed tensors to instance wires.
	Outputs []TensorSpec
}

// Setup derives the proving and verifying keys from a compiled circuit. The
// commitment setup itself (the structured reference string) is an external
// cryptographic primitive; here it comes from gnark's test-grade KZG
// generator, and a production deployment substitutes an MPC-generated SRS.
func Setup(c *Circuit) (*ProvingKey, *VerifyingKey, error) {
	srs, srsLagrange, err := unsafekzg.NewSRS(c.CS)
	if err != nil {
		return nil, nil, fmt.Errorf("keygen: srs: %w", err)
	}
	pk, vk, err := plonk.Setup(c.CS, srs, srsLagrange)
	if err != nil {
		return nil, nil, fmt.Errorf("keygen: setup: %w", err)
	}

	log := logger.Logger()
	log.Info().Int("nbConstraints", c.CS.GetNbConstraints()).Msg("keys generated")

	return &ProvingKey{PK: pk, Fingerprint: c.Fingerprint},
		&VerifyingKey{
			VK:          vk,
			Fingerprint: c.Fingerprint,
			NbPublic:    c.Layout.NbOutputWires(),
			Outputs:     c.Layout.Outputs,
		}, nil
}
