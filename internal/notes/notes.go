// Package notes implements the shielded pool's note lifecycle:
// minting a commitment, tracking it through the Merkle pool, and
// computing the nullifier hash that marks it spent. Persistence is
// intentionally left to an injected Store; this package holds no
// state of its own.
package notes

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/stealthsol/privacycore/internal/fieldmath"
	"github.com/stealthsol/privacycore/internal/poseidon"
	"github.com/stealthsol/privacycore/pkg/types"
)

// Note is a locally-held record of one shielded deposit.
type Note struct {
	Nullifier  *types.FieldElement
	Secret     *types.FieldElement
	Amount     *types.FieldElement
	Recipient  *types.FieldElement
	Commitment *types.FieldElement

	// LeafIndex is -1 until the commitment is confirmed inserted into
	// the pool's Merkle tree.
	LeafIndex int64

	// MerkleRoot and MerklePath are cached at insertion time so a
	// later withdrawal proof can be built without rescanning the tree.
	MerkleRoot *types.FieldElement
	MerklePath interface{}
}

// Store is the opaque persistence surface a caller injects; the core
// never holds note state itself.
type Store interface {
	Insert(ctx context.Context, note *Note) error
	ByCommitment(ctx context.Context, commitment *types.FieldElement) (*Note, bool, error)
	MarkSpent(ctx context.Context, nullifierHash *types.FieldElement) error
	IterUnspent(ctx context.Context) ([]*Note, error)
}

// randomFieldElement draws 31 random bytes and reduces mod p, keeping
// at least 240 bits of entropy per value.
func randomFieldElement() (*types.FieldElement, error) {
	buf := make([]byte, 31)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return fieldmath.Reduce(new(big.Int).SetBytes(buf)), nil
}

// MintNote draws a fresh nullifier and secret, binds amount and an
// optional recipient field element, and computes the note commitment
// via Poseidon hash4(nullifier, secret, amount, recipient).
func MintNote(amount *types.FieldElement, recipient *types.FieldElement) (*Note, error) {
	nullifier, err := randomFieldElement()
	if err != nil {
		return nil, err
	}
	secret, err := randomFieldElement()
	if err != nil {
		return nil, err
	}
	if recipient == nil {
		recipient = big.NewInt(0)
	}

	commitment := poseidon.Hash4(nullifier, secret, fieldmath.Reduce(amount), fieldmath.Reduce(recipient))

	return &Note{
		Nullifier:  nullifier,
		Secret:     secret,
		Amount:     fieldmath.Reduce(amount),
		Recipient:  fieldmath.Reduce(recipient),
		Commitment: commitment,
		LeafIndex:  -1,
	}, nil
}

// NullifierHash computes hash2(note.nullifier, 0), the value published
// at spend time to prevent double-spending without revealing which
// commitment it came from.
func NullifierHash(note *Note) *types.FieldElement {
	return poseidon.Hash2(note.Nullifier, big.NewInt(0))
}

// NullifierStore tracks spent nullifier hashes. Insert
// must be atomic: a caller that loses a race to insert the same hash
// must see ErrDoubleSpend, never a silently-accepted second insert.
// Contains is provided for read-only queries only; Spend never uses it
// to gate Insert, since a separate check-then-insert would reopen the
// race Insert's atomicity is meant to close.
type NullifierStore interface {
	Insert(ctx context.Context, nullifierHash *types.FieldElement) error
	Contains(ctx context.Context, nullifierHash *types.FieldElement) (bool, error)
}

// Spend records note as spent against nullifiers, returning the
// nullifier hash. Callers should only treat the note as irreversibly
// consumed once the spending transaction externally confirms.
func Spend(ctx context.Context, nullifiers NullifierStore, note *Note) (*types.FieldElement, error) {
	nh := NullifierHash(note)
	if err := nullifiers.Insert(ctx, nh); err != nil {
		return nil, err
	}
	return nh, nil
}
