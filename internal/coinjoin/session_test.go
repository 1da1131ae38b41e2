package coinjoin

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stealthsol/privacycore/internal/blindsig"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

func testConfig() Config {
	return Config{
		MinParticipants:     3,
		MaxParticipants:     5,
		Denomination:        big.NewInt(1),
		MaxBroadcastRetries: 1,
	}
}

// joinParticipant signs the JOIN message and admits a participant,
// returning its ed25519 keypair and assigned participantId.
func joinParticipant(t *testing.T, s *Session, denomination *big.Int) (ed25519.PublicKey, ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	timestamp := time.Now().Unix()
	nonce := uuid.NewString()
	message := joinSigningMessage(denomination, timestamp, nonce)
	sig := ed25519.Sign(priv, message)

	id, err := s.Join(pub, denomination, timestamp, nonce, sig)
	require.NoError(t, err)
	return pub, priv, id
}

type fakeBroadcaster struct {
	fail  bool
	calls int
}

func (f *fakeBroadcaster) Broadcast(commitments []*big.Int, signatures map[string][]byte) error {
	f.calls++
	if f.fail {
		return fmt.Errorf("simulated broadcast failure")
	}
	return nil
}

// TestFullSessionLifecycleAssemblesShuffledTransaction runs
// minParticipants=3, maxParticipants=5, denomination=1: three
// participants carry a session from WAITING through COMPLETED.
func TestFullSessionLifecycleAssemblesShuffledTransaction(t *testing.T) {
	coordKey, err := blindsig.GenerateKeyPair(blindsig.MinBits)
	require.NoError(t, err)

	s := NewSession("session-s5", testConfig(), coordKey)
	require.Equal(t, StateWaiting, s.CurrentState())

	type participant struct {
		id           string
		commitment   *big.Int
		blindingR    *big.Int
		pseudonym    string
		unblindedSig *big.Int
	}

	participants := make([]*participant, 3)
	for i := range participants {
		_, _, id := joinParticipant(t, s, big.NewInt(1))
		participants[i] = &participant{id: id}
	}
	require.Equal(t, StateCollectingBlinded, s.CurrentState())

	for i, p := range participants {
		commitment := big.NewInt(int64(1000 + i))
		p.commitment = commitment

		blinded, r, err := blindsig.Blind(commitment, &coordKey.PublicKey)
		require.NoError(t, err)
		p.blindingR = r

		blindSig, err := s.SubmitBlinded(p.id, blinded)
		require.NoError(t, err)

		unblinded, err := blindsig.Unblind(blindSig, r, coordKey.N)
		require.NoError(t, err)
		require.True(t, blindsig.Verify(commitment, unblinded, &coordKey.PublicKey))
		p.unblindedSig = unblinded
		p.pseudonym = uuid.NewString()
	}
	require.Equal(t, StateCollectingUnblinded, s.CurrentState())

	for _, p := range participants {
		err := s.SubmitUnblinded(p.pseudonym, p.commitment, p.unblindedSig)
		require.NoError(t, err)
	}
	require.Equal(t, StateSigningTransaction, s.CurrentState())

	shuffled := s.ShuffledCommitments()
	require.Len(t, shuffled, 3)

	originalByValue := make(map[string]bool, 3)
	for _, p := range participants {
		originalByValue[p.commitment.String()] = true
	}
	for _, c := range shuffled {
		require.True(t, originalByValue[c.String()], "shuffled commitment %s not among submitted commitments", c)
	}

	for _, p := range participants {
		sig := make([]byte, 64)
		_, err := rand.Read(sig)
		require.NoError(t, err)
		err = s.SubmitSignature(p.pseudonym, sig)
		require.NoError(t, err)
	}
	require.Equal(t, StateBroadcasting, s.CurrentState())

	b := &fakeBroadcaster{}
	require.NoError(t, s.Broadcast(b))
	require.Equal(t, StateCompleted, s.CurrentState())
	require.Equal(t, 1, b.calls)
}

func TestJoinRejectsOnceSessionFull(t *testing.T) {
	coordKey, err := blindsig.GenerateKeyPair(blindsig.MinBits)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MaxParticipants = 3
	s := NewSession("session-full", cfg, coordKey)

	for i := 0; i < 3; i++ {
		joinParticipant(t, s, big.NewInt(1))
	}

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	timestamp := time.Now().Unix()
	nonce := uuid.NewString()
	sig := ed25519.Sign(priv, joinSigningMessage(big.NewInt(1), timestamp, nonce))

	_, err = s.Join(pub, big.NewInt(1), timestamp, nonce, sig)
	require.ErrorIs(t, err, privacyerr.ErrSessionFull)
}

func TestJoinRejectsStaleTimestamp(t *testing.T) {
	coordKey, err := blindsig.GenerateKeyPair(blindsig.MinBits)
	require.NoError(t, err)

	s := NewSession("session-stale", testConfig(), coordKey)

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	timestamp := time.Now().Add(-10 * time.Minute).Unix()
	nonce := uuid.NewString()
	sig := ed25519.Sign(priv, joinSigningMessage(big.NewInt(1), timestamp, nonce))

	_, err = s.Join(pub, big.NewInt(1), timestamp, nonce, sig)
	require.Error(t, err)
}

func TestJoinRejectsForgedSignature(t *testing.T) {
	coordKey, err := blindsig.GenerateKeyPair(blindsig.MinBits)
	require.NoError(t, err)

	s := NewSession("session-forged", testConfig(), coordKey)

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	timestamp := time.Now().Unix()
	nonce := uuid.NewString()
	sig := ed25519.Sign(otherPriv, joinSigningMessage(big.NewInt(1), timestamp, nonce))

	_, err = s.Join(pub, big.NewInt(1), timestamp, nonce, sig)
	require.Error(t, err)
}

// TestSessionFailsWhenTooFewUnblindedSubmissionsVerify covers a
// participant that submits a signature which fails verification: the
// collection window still closes once every participant has
// submitted once, but with only 2 of 3 valid the session can't reach
// minParticipants and moves to FAILED.
func TestSessionFailsWhenTooFewUnblindedSubmissionsVerify(t *testing.T) {
	coordKey, err := blindsig.GenerateKeyPair(blindsig.MinBits)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.MinParticipants = 3
	s := NewSession("session-discard", cfg, coordKey)

	ids := make([]string, 3)
	for i := range ids {
		_, _, id := joinParticipant(t, s, big.NewInt(1))
		ids[i] = id
	}

	commitments := make([]*big.Int, 3)
	blindSigs := make([]*big.Int, 3)
	rs := make([]*big.Int, 3)
	for i, id := range ids {
		commitments[i] = big.NewInt(int64(2000 + i))
		blinded, r, err := blindsig.Blind(commitments[i], &coordKey.PublicKey)
		require.NoError(t, err)
		rs[i] = r
		sig, err := s.SubmitBlinded(id, blinded)
		require.NoError(t, err)
		blindSigs[i] = sig
	}

	for i := 0; i < 2; i++ {
		unblinded, err := blindsig.Unblind(blindSigs[i], rs[i], coordKey.N)
		require.NoError(t, err)
		err = s.SubmitUnblinded(uuid.NewString(), commitments[i], unblinded)
		require.NoError(t, err)
	}

	// Third participant submits a signature that does not verify
	// against the coordinator's key (wrong commitment value).
	forgedCommitment := big.NewInt(9999)
	unblinded, err := blindsig.Unblind(blindSigs[2], rs[2], coordKey.N)
	require.NoError(t, err)
	err = s.SubmitUnblinded(uuid.NewString(), forgedCommitment, unblinded)
	// This is the third and final expected submission, so it also
	// closes the collection window; with only 2 of 3 valid the
	// session can't reach minParticipants and reports failure here.
	require.Error(t, err)

	require.Equal(t, StateFailed, s.CurrentState())
}

func TestSubmitBlindedRejectsDoubleSubmission(t *testing.T) {
	coordKey, err := blindsig.GenerateKeyPair(blindsig.MinBits)
	require.NoError(t, err)

	s := NewSession("session-double", testConfig(), coordKey)
	for i := 0; i < 2; i++ {
		joinParticipant(t, s, big.NewInt(1))
	}
	_, _, id := joinParticipant(t, s, big.NewInt(1))

	commitment := big.NewInt(42)
	blinded, _, err := blindsig.Blind(commitment, &coordKey.PublicKey)
	require.NoError(t, err)

	_, err = s.SubmitBlinded(id, blinded)
	require.NoError(t, err)

	_, err = s.SubmitBlinded(id, blinded)
	require.Error(t, err)
}

func TestCheckDeadlineAbortsExpiredSession(t *testing.T) {
	coordKey, err := blindsig.GenerateKeyPair(blindsig.MinBits)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Deadlines.Join = time.Millisecond
	s := NewSession("session-deadline", cfg, coordKey)

	s.CheckDeadline(time.Now().Add(time.Second))
	require.Equal(t, StateAborted, s.CurrentState())
}
