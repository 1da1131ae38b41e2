// Package privacyerr centralizes the error kinds the privacy core must
// distinguish, so callers across packages can errors.Is
// against one stable sentinel set instead of each package inventing
// its own near-duplicate error.
package privacyerr

import "errors"

var (
	// ErrMalformedInput covers bad base58, wrong lengths, non-canonical JSON.
	ErrMalformedInput = errors.New("malformed input")

	// ErrNonCanonicalPoint covers an off-curve Ed25519/X25519 point, or a
	// y=1 edwards coordinate that has no Montgomery conversion.
	ErrNonCanonicalPoint = errors.New("non-canonical curve point")

	// ErrNotInvertible covers a modular inverse that does not exist.
	ErrNotInvertible = errors.New("value not invertible")

	// ErrInvalidProof covers a Groth16 verification that returned false.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrInvalidSignature covers an RSA or Ed25519 signature failure.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrDoubleSpend covers a nullifier that is already present.
	ErrDoubleSpend = errors.New("double spend")

	// ErrTreeFull covers a Merkle tree at capacity.
	ErrTreeFull = errors.New("merkle tree is full")

	// ErrKeyGenExhausted covers RSA keygen failing to find suitable primes
	// within its attempt budget.
	ErrKeyGenExhausted = errors.New("key generation exhausted attempt budget")

	// ErrInsufficientSignatures covers a verifier quorum below threshold.
	ErrInsufficientSignatures = errors.New("insufficient signatures")

	// ErrSessionFull covers a CoinJoin session at its participant cap.
	ErrSessionFull = errors.New("session full")

	// ErrSessionExpired covers a CoinJoin phase deadline miss.
	ErrSessionExpired = errors.New("session expired")

	// ErrTimeout covers a deadline exceeded for an operation.
	ErrTimeout = errors.New("operation timed out")

	// ErrWithdrawalRejected is the single, generic error returned to
	// external callers for a failed withdrawal. Internally a failure may
	// be ErrDoubleSpend or ErrInvalidProof, but that distinction must
	// never leak past this boundary: it would let an observer tell an
	// already-spent note from one that was never deposited.
	ErrWithdrawalRejected = errors.New("withdrawal rejected")
)

// SessionAborted carries a reason for a CoinJoin session that moved to
// ABORTED or FAILED.
type SessionAborted struct {
	Reason string
}

func (e *SessionAborted) Error() string {
	return "session aborted: " + e.Reason
}
