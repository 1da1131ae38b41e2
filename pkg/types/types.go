// Package types defines the wire and field types shared across the
// privacy core: hashes, addresses, and the BN254 scalar field element
// used by Poseidon, the Merkle tree, and note commitments.
package types

import (
	"encoding/hex"
	"math/big"
)

// HashSize is the size of a generic hash in bytes (SHA-256 / SHA-512/256 domain).
const HashSize = 32

// Hash is a fixed-size 32-byte digest.
type Hash [HashSize]byte

// EmptyHash is the zero hash.
var EmptyHash = Hash{}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == EmptyHash
}

// String renders the hash as 0x-prefixed hex.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// BytesToHash truncates or zero-pads b into a Hash.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) >= HashSize {
		copy(h[:], b[:HashSize])
	} else {
		copy(h[HashSize-len(b):], b)
	}
	return h
}

// AddressSize is the size of an on-chain address placeholder.
const AddressSize = 32

// Address is an opaque 32-byte account identifier; the real chain
// integration that maps this to a wallet address lives outside this
// core.
type Address [AddressSize]byte

// EmptyAddress is the zero address, used as a recipient placeholder
// when the recipient is determined at withdrawal time.
var EmptyAddress = Address{}

// FieldElement is a fully reduced element of the BN254 scalar field,
// represented as a big.Int in [0, p). Every exported value from
// fieldmath, poseidon, and merkle is guaranteed reduced mod p.
type FieldElement = big.Int
