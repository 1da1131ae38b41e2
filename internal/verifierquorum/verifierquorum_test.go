package verifierquorum

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stealthsol/privacycore/internal/circuits"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// acceptingChecker stands in for a compiled circuit manager that
// accepts every proof, so the tests exercise the quorum protocol
// itself rather than Groth16.
type acceptingChecker struct{}

func (acceptingChecker) Verify(ctx context.Context, proof *circuits.Proof) (bool, error) {
	return true, nil
}

// rejectingChecker rejects every proof.
type rejectingChecker struct{}

func (rejectingChecker) Verify(ctx context.Context, proof *circuits.Proof) (bool, error) {
	return false, nil
}

// loopbackPeer stands in for a remote peer verifier: it independently
// re-verifies the proof, recomputes the canonical message itself, and
// signs it under its own key.
type loopbackPeer struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	checker ProofChecker
}

func newLoopbackPeer(checker ProofChecker) (*loopbackPeer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, err
	}
	return &loopbackPeer{priv: priv, pub: pub, checker: checker}, nil
}

func (p *loopbackPeer) RequestAttestation(ctx context.Context, proof *circuits.Proof, publicInputs interface{}, timestamp int64) (*PartialAttestation, error) {
	ok, err := p.checker.Verify(ctx, proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	proofHash := sha256.Sum256(proof.Bytes)
	canonical, err := CanonicalBytes(publicInputs)
	if err != nil {
		return nil, err
	}
	publicInputsHash := sha256.Sum256(canonical)

	message := CanonicalMessage(proofHash, publicInputsHash, timestamp)
	sig := ed25519.Sign(p.priv, message)
	return &PartialAttestation{VerifierPub: p.pub, Signature: sig}, nil
}

// deadPeer never responds in time, exercising the below-threshold path.
type deadPeer struct{}

func (deadPeer) RequestAttestation(ctx context.Context, proof *circuits.Proof, publicInputs interface{}, timestamp int64) (*PartialAttestation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func testProof() *circuits.Proof {
	return &circuits.Proof{
		ProofType:    circuits.ProofTypeDeposit,
		Bytes:        []byte("serialized groth16 proof"),
		PublicInputs: []byte("serialized public witness"),
	}
}

// TestAggregatesThresholdSignaturesFromQuorum is the three-verifier,
// t=2 configuration: one local verifier, one responsive peer, one
// dead peer. The attestation must still collect at least two valid
// signatures.
func TestAggregatesThresholdSignaturesFromQuorum(t *testing.T) {
	ctx := context.Background()

	localPub, localPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	peer1, err := newLoopbackPeer(acceptingChecker{})
	require.NoError(t, err)

	cfg := Config{
		Threshold:      2,
		QuorumPubKeys:  []ed25519.PublicKey{localPub, peer1.pub},
		ValidityWindow: DefaultValidityWindow,
		RequestTimeout: 100 * time.Millisecond,
	}

	v := New(localPriv, acceptingChecker{}, []PeerClient{peer1, deadPeer{}}, cfg, zerolog.Nop())

	publicInputs := map[string]interface{}{"commitment": "abc123", "amount": "1"}
	att, err := v.Verify(ctx, testProof(), publicInputs)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(att.Signatures), 2)

	err = ValidateAttestation(att, cfg.QuorumPubKeys, cfg.Threshold, cfg.ValidityWindow, time.Now())
	require.NoError(t, err)
}

func TestInsufficientSignaturesWhenPeersUnresponsive(t *testing.T) {
	ctx := context.Background()

	localPub, localPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg := Config{
		Threshold:      2,
		QuorumPubKeys:  []ed25519.PublicKey{localPub},
		ValidityWindow: DefaultValidityWindow,
		RequestTimeout: 50 * time.Millisecond,
	}

	v := New(localPriv, acceptingChecker{}, []PeerClient{deadPeer{}, deadPeer{}}, cfg, zerolog.Nop())

	publicInputs := map[string]interface{}{"commitment": "unused"}
	_, err = v.Verify(ctx, testProof(), publicInputs)
	require.ErrorIs(t, err, privacyerr.ErrInsufficientSignatures)
}

func TestLocalRejectionFailsWithInvalidProof(t *testing.T) {
	ctx := context.Background()

	localPub, localPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	cfg := Config{
		Threshold:      1,
		QuorumPubKeys:  []ed25519.PublicKey{localPub},
		ValidityWindow: DefaultValidityWindow,
		RequestTimeout: 100 * time.Millisecond,
	}

	v := New(localPriv, rejectingChecker{}, nil, cfg, zerolog.Nop())

	_, err = v.Verify(ctx, testProof(), map[string]interface{}{})
	require.ErrorIs(t, err, privacyerr.ErrInvalidProof)
}

func TestRejectsSignaturesFromOutsideQuorum(t *testing.T) {
	ctx := context.Background()

	localPub, localPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	// The peer signs validly, but its key is not in the quorum set, so
	// its signature must not count toward the threshold.
	outsider, err := newLoopbackPeer(acceptingChecker{})
	require.NoError(t, err)

	cfg := Config{
		Threshold:      2,
		QuorumPubKeys:  []ed25519.PublicKey{localPub},
		ValidityWindow: DefaultValidityWindow,
		RequestTimeout: 100 * time.Millisecond,
	}

	v := New(localPriv, acceptingChecker{}, []PeerClient{outsider}, cfg, zerolog.Nop())

	_, err = v.Verify(ctx, testProof(), map[string]interface{}{"k": "v"})
	require.ErrorIs(t, err, privacyerr.ErrInsufficientSignatures)
}

func TestValidateAttestationRejectsStaleTimestamp(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	proofHash := sha256.Sum256([]byte("proof"))
	publicInputsHash := sha256.Sum256([]byte("inputs"))
	staleTimestamp := time.Now().Add(-10 * time.Minute).Unix()
	message := CanonicalMessage(proofHash, publicInputsHash, staleTimestamp)

	att := &Attestation{
		ProofHash:        proofHash,
		PublicInputsHash: publicInputsHash,
		Timestamp:        staleTimestamp,
		Signatures:       []PartialAttestation{{VerifierPub: pub, Signature: ed25519.Sign(priv, message)}},
	}

	err = ValidateAttestation(att, []ed25519.PublicKey{pub}, 1, DefaultValidityWindow, time.Now())
	require.Error(t, err)
}
