// Package artifact persists the pipeline's long-lived objects (circuit
// layout, proving key, verifying key, proof) as versioned binary blobs. Every
// blob carries a magic tag, the artifact format version and the circuit
// fingerprint; readers validate all three before touching the payload.
package artifact

import (
	"bytes"
	"fmt"
	"io"

	"github.com/blang/semver/v4"
	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/plonk"
	cs_bn254 "github.com/consensys/gnark/constraint/bn254"
	"github.com/fxamacker/cbor/v2"

	"github.com/tensorzk/tensorzk/compiler"
	"github.com/tensorzk/tensorzk/graph"
	"github.com/tensorzk/tensorzk/prover"
	"github.com/tensorzk/tensorzk/quantize"
)

// Version is the artifact format version. Readers accept blobs whose major
// version matches; anything else is a VersionMismatchError.
const Version = "1.0.0"

// maxVersionLen bounds the header's version-string length field, which is
// read from untrusted input before any allocation.
const maxVersionLen = 64

var (
	magicCircuit      = [4]byte{'T', 'Z', 'C', '1'}
	magicProvingKey   = [4]byte{'T', 'Z', 'P', '1'}
	magicVerifyingKey = [4]byte{'T', 'Z', 'V', '1'}
	magicProof        = [4]byte{'T', 'Z', 'F', '1'}
)

// VersionMismatchError reports an artifact written under an incompatible
// format version or for a different circuit compilation.
type VersionMismatchError struct {
	Got  string
	Want string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("artifact: version %q incompatible with %q", e.Got, e.Want)
}

func writeHeader(w io.Writer, magic [4]byte, fingerprint [32]byte) error {
	var o outputBuf
	o.buf = append(o.buf, magic[:]...)
	o.appendBytes([]byte(Version))
	o.buf = append(o.buf, fingerprint[:]...)
	_, err := w.Write(o.bytes())
	return err
}

func readHeader(r io.Reader, magic [4]byte) ([32]byte, error) {
	var fp [32]byte
	head := make([]byte, 8)
	if _, err := io.ReadFull(r, head); err != nil {
		return fp, fmt.Errorf("artifact: header: %w", err)
	}
	if !bytes.Equal(head[:4], magic[:]) {
		return fp, fmt.Errorf("artifact: bad magic %q, want %q", head[:4], magic[:])
	}
	in := inputBuf{buf: head[4:]}
	n, err := in.readUint32()
	if err != nil {
		return fp, err
	}
	// the length is untrusted input; a semver string never comes close
	if n > maxVersionLen {
		return fp, fmt.Errorf("artifact: version string length %d exceeds %d", n, maxVersionLen)
	}
	verAndFp := make([]byte, int(n)+32)
	if _, err := io.ReadFull(r, verAndFp); err != nil {
		return fp, fmt.Errorf("artifact: header: %w", err)
	}
	if err := checkVersion(string(verAndFp[:n])); err != nil {
		return fp, err
	}
	copy(fp[:], verAndFp[n:])
	return fp, nil
}

func checkVersion(got string) error {
	gv, err := semver.Parse(got)
	if err != nil {
		return &VersionMismatchError{Got: got, Want: Version}
	}
	wv := semver.MustParse(Version)
	if gv.Major != wv.Major {
		return &VersionMismatchError{Got: got, Want: Version}
	}
	return nil
}

// circuitMeta is the cbor-encoded part of a circuit blob; the constraint
// system follows as the backend's own binary encoding.
type circuitMeta struct {
	Layout compiler.Layout `cbor:"1,keyasint"`
	Params quantize.Params `cbor:"2,keyasint"`
	Graph  *graph.Graph    `cbor:"3,keyasint"`
}

// WriteCircuit persists a compiled circuit.
func WriteCircuit(w io.Writer, c *compiler.Circuit) error {
	if err := writeHeader(w, magicCircuit, c.Fingerprint); err != nil {
		return err
	}
	meta, err := cbor.Marshal(circuitMeta{Layout: c.Layout, Params: c.Params, Graph: c.Graph})
	if err != nil {
		return fmt.Errorf("artifact: circuit meta: %w", err)
	}
	var o outputBuf
	o.appendBytes(meta)
	if _, err := w.Write(o.bytes()); err != nil {
		return err
	}
	_, err = c.CS.WriteTo(w)
	return err
}

// ReadCircuit loads a circuit blob. The fingerprint is restored verbatim
// from the header; it still binds the blob to its compilation.
func ReadCircuit(r io.Reader) (*compiler.Circuit, error) {
	fp, err := readHeader(r, magicCircuit)
	if err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("artifact: circuit meta: %w", err)
	}
	in := inputBuf{buf: lenBuf[:]}
	n, _ := in.readUint32()
	metaBuf := make([]byte, n)
	if _, err := io.ReadFull(r, metaBuf); err != nil {
		return nil, fmt.Errorf("artifact: circuit meta: %w", err)
	}
	var meta circuitMeta
	if err := cbor.Unmarshal(metaBuf, &meta); err != nil {
		return nil, fmt.Errorf("artifact: circuit meta: %w", err)
	}
	ccs := &cs_bn254.SparseR1CS{}
	if _, err := ccs.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("artifact: constraint system: %w", err)
	}
	return &compiler.Circuit{
		CS:          ccs,
		Layout:      meta.Layout,
		Params:      meta.Params,
		Graph:       meta.Graph,
		Fingerprint: fp,
	}, nil
}

// WriteProvingKey persists a proving key.
func WriteProvingKey(w io.Writer, pk *compiler.ProvingKey) error {
	if err := writeHeader(w, magicProvingKey, pk.Fingerprint); err != nil {
		return err
	}
	_, err := pk.PK.WriteTo(w)
	return err
}

// ReadProvingKey loads a proving key blob.
func ReadProvingKey(r io.Reader) (*compiler.ProvingKey, error) {
	fp, err := readHeader(r, magicProvingKey)
	if err != nil {
		return nil, err
	}
	pk := plonk.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("artifact: proving key: %w", err)
	}
	return &compiler.ProvingKey{PK: pk, Fingerprint: fp}, nil
}

type verifyingKeyMeta struct {
	NbPublic int                   `cbor:"1,keyasint"`
	Outputs  []compiler.TensorSpec `cbor:"2,keyasint"`
}

// WriteVerifyingKey persists a verifying key. The blob is safely publishable.
func WriteVerifyingKey(w io.Writer, vk *compiler.VerifyingKey) error {
	if err := writeHeader(w, magicVerifyingKey, vk.Fingerprint); err != nil {
		return err
	}
	meta, err := cbor.Marshal(verifyingKeyMeta{NbPublic: vk.NbPublic, Outputs: vk.Outputs})
	if err != nil {
		return fmt.Errorf("artifact: verifying key meta: %w", err)
	}
	var o outputBuf
	o.appendBytes(meta)
	if _, err := w.Write(o.bytes()); err != nil {
		return err
	}
	_, err = vk.VK.WriteTo(w)
	return err
}

// ReadVerifyingKey loads and version-checks a verifying key blob.
func ReadVerifyingKey(r io.Reader) (*compiler.VerifyingKey, error) {
	fp, err := readHeader(r, magicVerifyingKey)
	if err != nil {
		return nil, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("artifact: verifying key meta: %w", err)
	}
	in := inputBuf{buf: lenBuf[:]}
	n, _ := in.readUint32()
	metaBuf := make([]byte, n)
	if _, err := io.ReadFull(r, metaBuf); err != nil {
		return nil, fmt.Errorf("artifact: verifying key meta: %w", err)
	}
	var meta verifyingKeyMeta
	if err := cbor.Unmarshal(metaBuf, &meta); err != nil {
		return nil, fmt.Errorf("artifact: verifying key meta: %w", err)
	}
	vk := plonk.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("artifact: verifying key: %w", err)
	}
	return &compiler.VerifyingKey{
		VK:          vk,
		Fingerprint: fp,
		NbPublic:    meta.NbPublic,
		Outputs:     meta.Outputs,
	}, nil
}

// WriteProof persists a proof.
func WriteProof(w io.Writer, p *prover.Proof) error {
	if err := writeHeader(w, magicProof, p.Fingerprint); err != nil {
		return err
	}
	_, err := p.Proof.WriteTo(w)
	return err
}

// ReadProof loads a proof blob.
func ReadProof(r io.Reader) (*prover.Proof, error) {
	fp, err := readHeader(r, magicProof)
	if err != nil {
		return nil, err
	}
	proof := plonk.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("artifact: proof: %w", err)
	}
	return &prover.Proof{Proof: proof, Fingerprint: fp}, nil
}
