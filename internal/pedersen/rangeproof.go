package pedersen

import (
	"crypto/sha256"
	"math/big"

	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// rangeProofDomain tags the placeholder proof so it can never be
// confused with a real range proof's bytes.
const rangeProofDomain = "stealthsol-rangeproof-placeholder-v1"

// RangeProofSize is fixed at 128 bytes: a 32-byte tag plus the opening
// (v, r) the proof reveals. This is explicitly not a real Bulletproof
// — it proves nothing that a verifier couldn't learn
// from being handed v and r directly, and exists only so the rest of
// the system has a concrete prove/verifyRange contract to build
// against until a real scheme replaces it.
const RangeProofSize = 128

// RangeProof is the placeholder proof blob: tag(32) || v(32) || r(64).
type RangeProof struct {
	bytes [RangeProofSize]byte
}

// Bytes returns the proof's wire encoding.
func (p *RangeProof) Bytes() [RangeProofSize]byte {
	return p.bytes
}

func tagFor(c *Commitment, vBytes, rBytes []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(rangeProofDomain))
	h.Write(c.Point[:])
	h.Write(vBytes)
	h.Write(rBytes)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Prove produces a placeholder range proof binding (v, r) to c.
func Prove(c *Commitment, v, r *big.Int) (*RangeProof, error) {
	vBytes := leftPad(v.Bytes(), 32)
	rBytes := leftPad(r.Bytes(), 64)
	tag := tagFor(c, vBytes, rBytes)

	var proof RangeProof
	copy(proof.bytes[0:32], tag[:])
	copy(proof.bytes[32:64], vBytes)
	copy(proof.bytes[64:128], rBytes)
	return &proof, nil
}

// VerifyRange recomputes the tag from the proof's embedded opening
// and the commitment, and rejects if it doesn't recompute — the only
// check this placeholder scheme can offer.
func VerifyRange(c *Commitment, proof *RangeProof) (bool, error) {
	if proof == nil {
		return false, privacyerr.ErrMalformedInput
	}

	vBytes := proof.bytes[32:64]
	rBytes := proof.bytes[64:128]
	wantTag := tagFor(c, vBytes, rBytes)

	for i := 0; i < 32; i++ {
		if proof.bytes[i] != wantTag[i] {
			return false, nil
		}
	}

	v := new(big.Int).SetBytes(vBytes)
	r := new(big.Int).SetBytes(rBytes)
	return Verify(c, v, r)
}

func leftPad(b []byte, size int) []byte {
	out := make([]byte, size)
	if len(b) > size {
		copy(out, b[len(b)-size:])
		return out
	}
	copy(out[size-len(b):], b)
	return out
}
