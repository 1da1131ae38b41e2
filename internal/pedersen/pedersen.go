// Package pedersen implements Pedersen commitments on secp256k1: a
// NUMS-derived independent generator H, a commit/verify/
// homomorphic-add API, and JacobianPoint arithmetic via decred's
// dcrec secp256k1 implementation.
package pedersen

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// hDomain domain-separates the NUMS derivation of the second generator.
const hDomain = "stealthsol-pedersen-generator-h-v1"

var generatorH *secp256k1.JacobianPoint

func init() {
	generatorH = deriveH()
}

// deriveH derives H deterministically by hashing a domain-separated
// counter to a candidate x-coordinate until one parses as a valid
// compressed point. Nobody knows a discrete log of H relative to G.
func deriveH() *secp256k1.JacobianPoint {
	for counter := 0; counter < 256; counter++ {
		input := fmt.Sprintf("%s:%d", hDomain, counter)
		hash := sha256.Sum256([]byte(input))

		pointBytes := make([]byte, 33)
		pointBytes[0] = 0x02
		copy(pointBytes[1:], hash[:])

		pubKey, err := secp256k1.ParsePubKey(pointBytes)
		if err == nil {
			var result secp256k1.JacobianPoint
			pubKey.AsJacobian(&result)
			return &result
		}
	}
	panic("pedersen: failed to derive generator H after 256 attempts")
}

// Commitment is a compressed secp256k1 point C = v*G + r*H.
type Commitment struct {
	Point [33]byte
}

// valueScalar converts a non-negative value into a ModNScalar,
// reducing mod the group order if it overflows (values in this
// protocol are small denominations, so overflow never occurs in
// practice).
func valueScalar(v *big.Int) *secp256k1.ModNScalar {
	s := new(secp256k1.ModNScalar)
	s.SetByteSlice(v.Bytes())
	return s
}

// Commit produces C = v*G + r*H for a freshly drawn random blinding
// factor r, returning both.
func Commit(v *big.Int) (*Commitment, *big.Int, error) {
	blindingBytes := make([]byte, 32)
	if _, err := rand.Read(blindingBytes); err != nil {
		return nil, nil, err
	}
	r := new(big.Int).SetBytes(blindingBytes)

	c, err := CommitWithBlinding(v, r)
	if err != nil {
		return nil, nil, err
	}
	return c, r, nil
}

// CommitWithBlinding produces C = v*G + r*H for an explicit blinding
// factor.
func CommitWithBlinding(v, r *big.Int) (*Commitment, error) {
	rScalar := valueScalar(r)
	if rScalar.IsZero() {
		return nil, privacyerr.ErrMalformedInput
	}
	vScalar := valueScalar(v)

	var vG, rH, commitment secp256k1.JacobianPoint
	if v.Sign() == 0 {
		secp256k1.ScalarMultNonConst(rScalar, generatorH, &commitment)
	} else {
		secp256k1.ScalarBaseMultNonConst(vScalar, &vG)
		secp256k1.ScalarMultNonConst(rScalar, generatorH, &rH)
		secp256k1.AddNonConst(&vG, &rH, &commitment)
	}
	commitment.ToAffine()

	pub := secp256k1.NewPublicKey(&commitment.X, &commitment.Y)
	var out Commitment
	copy(out.Point[:], pub.SerializeCompressed())
	return &out, nil
}

// Verify recomputes C' = v*G + r*H and reports whether it equals c.
func Verify(c *Commitment, v, r *big.Int) (bool, error) {
	expected, err := CommitWithBlinding(v, r)
	if err != nil {
		return false, err
	}
	return expected.Point == c.Point, nil
}

// Add homomorphically combines two commitments: C1+C2 commits to
// v1+v2 under blinding r1+r2.
func Add(c1, c2 *Commitment) (*Commitment, error) {
	pub1, err := secp256k1.ParsePubKey(c1.Point[:])
	if err != nil {
		return nil, privacyerr.ErrMalformedInput
	}
	pub2, err := secp256k1.ParsePubKey(c2.Point[:])
	if err != nil {
		return nil, privacyerr.ErrMalformedInput
	}

	var p1, p2, sum secp256k1.JacobianPoint
	pub1.AsJacobian(&p1)
	pub2.AsJacobian(&p2)
	secp256k1.AddNonConst(&p1, &p2, &sum)
	sum.ToAffine()

	resultPub := secp256k1.NewPublicKey(&sum.X, &sum.Y)
	var out Commitment
	copy(out.Point[:], resultPub.SerializeCompressed())
	return &out, nil
}
