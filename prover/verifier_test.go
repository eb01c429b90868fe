package prover

import (
	"errors"
	"fmt"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/kzg"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	require.Equal(t, OpeningFailure, classify(kzg.ErrVerifyOpeningProof))
	require.Equal(t, OpeningFailure, classify(fmt.Errorf("verify: %w", kzg.ErrVerifyOpeningProof)))
	require.Equal(t, OpeningFailure, classify(errors.New("pairing check failed")))
	require.Equal(t, CommitmentMismatch, classify(errors.New("claimed quotient is not as expected")))
}

func TestNilInputsRejected(t *testing.T) {
	ok, reason := Verify(nil, nil, nil)
	require.False(t, ok)
	require.Equal(t, MalformedProof, reason)

	ok, reason = Verify(nil, &Proof{}, nil)
	require.False(t, ok)
	require.Equal(t, MalformedProof, reason)
}
