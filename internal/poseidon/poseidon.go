// Package poseidon computes the Poseidon hash over the BN254 scalar
// field at width 3: 8 full rounds, 57 partial rounds, an
// x^5 S-box. Poseidon is the hash underlying every commitment,
// nullifier, and Merkle node in the shielded pool and has to match
// other implementations bit-for-bit, so this
// package delegates the permutation itself to
// github.com/iden3/go-iden3-crypto/poseidon, the reference Go
// implementation of the same circomlib-derived parameter set used
// throughout the wider Poseidon/ZK ecosystem, rather than maintaining a
// local round-constant table that could only ever be self-consistent,
// never interoperable.
package poseidon

import (
	"math/big"

	iden3poseidon "github.com/iden3/go-iden3-crypto/poseidon"

	"github.com/stealthsol/privacycore/internal/fieldmath"
)

// Width is the Poseidon state width used throughout this package:
// one capacity element plus two rate elements.
const Width = 3

// Hash2 computes Poseidon(a, b), the building block for Merkle nodes
// and nullifier hashes.
func Hash2(a, b *big.Int) *big.Int {
	out, err := iden3poseidon.Hash([]*big.Int{fieldmath.Reduce(a), fieldmath.Reduce(b)})
	if err != nil {
		// go-iden3-crypto's Hash only rejects inputs that aren't valid
		// field elements or arities it doesn't have a constant table
		// for; Reduce above guarantees the former and this package only
		// ever calls it with two inputs.
		panic("poseidon: go-iden3-crypto Hash: " + err.Error())
	}
	return out
}

// Hash4 computes hash2(hash2(a,b), hash2(c,d)), used for note
// commitments: Poseidon(nullifier, secret, amount, recipient).
func Hash4(a, b, c, d *big.Int) *big.Int {
	left := Hash2(a, b)
	right := Hash2(c, d)
	return Hash2(left, right)
}
