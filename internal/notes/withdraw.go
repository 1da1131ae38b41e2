package notes

import (
	"context"

	"github.com/stealthsol/privacycore/internal/circuits"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
	"github.com/stealthsol/privacycore/pkg/types"
)

// ProofVerifier checks a withdraw proof against its compiled circuit.
// circuits.Manager satisfies this.
type ProofVerifier interface {
	Verify(ctx context.Context, proof *circuits.Proof) (bool, error)
}

// Withdraw verifies proof and spends note's nullifier as a single
// operation, collapsing every failure into the generic
// ErrWithdrawalRejected sentinel: a rejected proof and an
// already-spent nullifier must be indistinguishable to whatever called
// Withdraw, since the distinction would let an external observer tell
// an already-spent note from one that was never deposited. Callers
// that need the underlying cause for their own logging should inspect
// the error internally before it crosses this boundary, not rely on
// Withdraw's return value to carry it.
func Withdraw(ctx context.Context, verifier ProofVerifier, nullifiers NullifierStore, proof *circuits.Proof, note *Note) (*types.FieldElement, error) {
	ok, err := verifier.Verify(ctx, proof)
	if err != nil || !ok {
		return nil, privacyerr.ErrWithdrawalRejected
	}

	nh, err := Spend(ctx, nullifiers, note)
	if err != nil {
		return nil, privacyerr.ErrWithdrawalRejected
	}
	return nh, nil
}
