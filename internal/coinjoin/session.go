// Package coinjoin implements the blind-signature CoinJoin
// coordination protocol: a finite state machine that
// takes a set of participants through blinded commitment signing,
// unblinded resubmission over a fresh pseudonym, transaction assembly
// with a shuffled output order, and signature collection.
package coinjoin

import (
	"crypto/ed25519"
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stealthsol/privacycore/internal/blindsig"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// State is one node in the CoinJoinSession state machine.
type State string

const (
	StateWaiting             State = "WAITING"
	StateCollectingBlinded   State = "COLLECTING_BLINDED"
	StateSigning             State = "SIGNING"
	StateCollectingUnblinded State = "COLLECTING_UNBLINDED"
	StateBuildingTransaction State = "BUILDING_TRANSACTION"
	StateSigningTransaction  State = "SIGNING_TRANSACTION"
	StateBroadcasting        State = "BROADCASTING"
	StateCompleted           State = "COMPLETED"
	StateFailed              State = "FAILED"
	StateAborted             State = "ABORTED"
)

// joinSignatureWindow bounds how stale a JOIN signature's timestamp
// may be (±5 min).
const joinSignatureWindow = 5 * time.Minute

// PhaseDeadlines configures the per-phase timeout budget.
type PhaseDeadlines struct {
	Join                time.Duration
	CollectingBlinded   time.Duration
	CollectingUnblinded time.Duration
	SigningTransaction  time.Duration
	Broadcasting        time.Duration
}

// DefaultPhaseDeadlines gives each phase a 30s-5min deadline.
func DefaultPhaseDeadlines() PhaseDeadlines {
	return PhaseDeadlines{
		Join:                5 * time.Minute,
		CollectingBlinded:   2 * time.Minute,
		CollectingUnblinded: 2 * time.Minute,
		SigningTransaction:  time.Minute,
		Broadcasting:        30 * time.Second,
	}
}

// Participant is known to the coordinator only by an opaque ID, never
// a wallet address.
type Participant struct {
	ID        string
	PublicKey ed25519.PublicKey
}

// Config is a session's static parameters.
type Config struct {
	MinParticipants     int
	MaxParticipants     int
	Denomination        *big.Int
	Deadlines           PhaseDeadlines
	MaxBroadcastRetries int
}

// Session is one CoinJoin round, serialized behind a single mutex
// (the coordinator is the single writer for session
// state).
type Session struct {
	mu sync.Mutex

	ID     string
	Cfg    Config
	State  State
	Reason string

	coordinatorKey *blindsig.PrivateKey

	participants map[string]*Participant // keyed by blinded-phase participantId
	blinded      map[string]*big.Int     // participantId -> blinded commitment
	blindSigs    map[string]*big.Int     // participantId -> blind signature

	unblinded []unblindedEntry // keyed by a fresh pseudonym, unrelated to participantId

	shuffledCommitments []*big.Int

	inputs     map[string]string // pseudonym -> address
	signatures map[string][]byte // pseudonym -> transaction signature

	phaseDeadline      time.Time
	broadcastAttempts  int
	unblindedSubmitted int // counts every SubmitUnblinded call, including discarded ones
}

type unblindedEntry struct {
	Pseudonym  string
	Commitment *big.Int
}

// NewSession creates a session in WAITING, pinned to a fresh
// coordinator RSA blind-signing key.
func NewSession(id string, cfg Config, coordinatorKey *blindsig.PrivateKey) *Session {
	if cfg.Deadlines == (PhaseDeadlines{}) {
		cfg.Deadlines = DefaultPhaseDeadlines()
	}
	return &Session{
		ID:             id,
		Cfg:            cfg,
		State:          StateWaiting,
		coordinatorKey: coordinatorKey,
		participants:   make(map[string]*Participant),
		blinded:        make(map[string]*big.Int),
		blindSigs:      make(map[string]*big.Int),
		inputs:         make(map[string]string),
		signatures:     make(map[string][]byte),
		phaseDeadline:  time.Now().Add(cfg.Deadlines.Join),
	}
}

// Join admits a participant once its signature over
// {denomination, timestamp, nonce} verifies and the timestamp is
// within the join window. Fails with ErrSessionFull once
// maxParticipants is reached.
func (s *Session) Join(pub ed25519.PublicKey, denomination *big.Int, timestamp int64, nonce string, sig []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateWaiting && s.State != StateCollectingBlinded {
		return "", privacyerr.ErrMalformedInput
	}
	if len(s.participants) >= s.Cfg.MaxParticipants {
		return "", privacyerr.ErrSessionFull
	}
	if denomination.Cmp(s.Cfg.Denomination) != 0 {
		return "", privacyerr.ErrMalformedInput
	}

	now := time.Now().Unix()
	age := now - timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > joinSignatureWindow {
		return "", privacyerr.ErrTimeout
	}

	message := joinSigningMessage(denomination, timestamp, nonce)
	if !ed25519.Verify(pub, message, sig) {
		return "", privacyerr.ErrInvalidSignature
	}

	id := uuid.NewString()
	s.participants[id] = &Participant{ID: id, PublicKey: pub}

	if s.State == StateWaiting && len(s.participants) >= s.Cfg.MinParticipants {
		s.State = StateCollectingBlinded
		s.phaseDeadline = time.Now().Add(s.Cfg.Deadlines.CollectingBlinded)
	}

	return id, nil
}

func joinSigningMessage(denomination *big.Int, timestamp int64, nonce string) []byte {
	msg := make([]byte, 0, 64)
	msg = append(msg, denomination.Bytes()...)
	msg = append(msg, byte(timestamp>>56), byte(timestamp>>48), byte(timestamp>>40), byte(timestamp>>32),
		byte(timestamp>>24), byte(timestamp>>16), byte(timestamp>>8), byte(timestamp))
	msg = append(msg, []byte(nonce)...)
	return msg
}

// SubmitBlinded records participantId's blinded commitment and signs
// it exactly once with the coordinator's blind key. The coordinator
// never observes the plaintext commitment.
func (s *Session) SubmitBlinded(participantID string, blinded *big.Int) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateCollectingBlinded {
		return nil, privacyerr.ErrMalformedInput
	}
	if _, ok := s.participants[participantID]; !ok {
		return nil, privacyerr.ErrMalformedInput
	}
	if _, already := s.blinded[participantID]; already {
		return nil, privacyerr.ErrMalformedInput
	}

	s.blinded[participantID] = blinded
	sig := blindsig.SignBlinded(blinded, s.coordinatorKey)
	s.blindSigs[participantID] = sig

	if len(s.blinded) >= len(s.participants) {
		s.State = StateSigning
		s.advanceToCollectingUnblindedLocked()
	}

	return sig, nil
}

func (s *Session) advanceToCollectingUnblindedLocked() {
	s.State = StateCollectingUnblinded
	s.phaseDeadline = time.Now().Add(s.Cfg.Deadlines.CollectingUnblinded)
}

// SubmitUnblinded accepts (commitment, blindSignature) over a fresh
// pseudonym, unrelated to the blinded-phase participantId, and
// verifies the signature against the coordinator's public key.
// Commitments whose signature fails verification are discarded
// silently rather than erroring the whole session. The collection
// window closes once as many submissions (valid or not) have arrived
// as there are participants; if too few of those verified, the
// session moves to FAILED rather than hanging until its deadline.
func (s *Session) SubmitUnblinded(pseudonym string, commitment, blindSignature *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateCollectingUnblinded {
		return privacyerr.ErrMalformedInput
	}

	s.unblindedSubmitted++

	if blindsig.Verify(commitment, blindSignature, &s.coordinatorKey.PublicKey) {
		duplicate := false
		for _, e := range s.unblinded {
			if e.Pseudonym == pseudonym {
				duplicate = true
				break
			}
		}
		if duplicate {
			return privacyerr.ErrMalformedInput
		}
		s.unblinded = append(s.unblinded, unblindedEntry{Pseudonym: pseudonym, Commitment: commitment})
	}

	if s.unblindedSubmitted >= len(s.participants) {
		return s.tryBuildTransactionLocked()
	}
	return nil
}

func (s *Session) tryBuildTransactionLocked() error {
	if len(s.unblinded) < s.Cfg.MinParticipants {
		s.State = StateFailed
		s.Reason = "fewer than minParticipants unblinded commitments verified"
		return &privacyerr.SessionAborted{Reason: s.Reason}
	}

	commitments := make([]*big.Int, len(s.unblinded))
	for i, e := range s.unblinded {
		commitments[i] = e.Commitment
	}
	fisherYatesShuffle(commitments)
	s.shuffledCommitments = commitments

	s.State = StateBuildingTransaction
	s.State = StateSigningTransaction
	s.phaseDeadline = time.Now().Add(s.Cfg.Deadlines.SigningTransaction)
	return nil
}

// fisherYatesShuffle performs a uniform random in-place permutation
// (output ordering must be independent of input order).
func fisherYatesShuffle(xs []*big.Int) {
	for i := len(xs) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// ShuffledCommitments returns the assembled transaction's commitment
// order once BUILDING_TRANSACTION has completed.
func (s *Session) ShuffledCommitments() []*big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*big.Int, len(s.shuffledCommitments))
	copy(out, s.shuffledCommitments)
	return out
}

// SubmitSignature records pseudonym's transaction input signature.
// Once every participant that survived to the unblinded phase has
// signed, the session moves to BROADCASTING.
func (s *Session) SubmitSignature(pseudonym string, sig []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateSigningTransaction {
		return privacyerr.ErrMalformedInput
	}

	s.signatures[pseudonym] = sig
	if len(s.signatures) >= len(s.unblinded) {
		s.State = StateBroadcasting
		s.phaseDeadline = time.Now().Add(s.Cfg.Deadlines.Broadcasting)
	}
	return nil
}

// SubmitInput records pseudonym's chosen input address for the
// assembled transaction.
func (s *Session) SubmitInput(pseudonym, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateBuildingTransaction && s.State != StateSigningTransaction {
		return privacyerr.ErrMalformedInput
	}
	s.inputs[pseudonym] = address
	return nil
}

// Broadcaster publishes the assembled, fully-signed transaction.
// Implementations are injected so tests can supply a fake; this
// package has no opinion on chain-specific serialization.
type Broadcaster interface {
	Broadcast(commitments []*big.Int, signatures map[string][]byte) error
}

// Broadcast attempts to publish the session's transaction, retrying
// up to Cfg.MaxBroadcastRetries times before failing the session.
func (s *Session) Broadcast(b Broadcaster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateBroadcasting {
		return privacyerr.ErrMalformedInput
	}

	maxAttempts := s.Cfg.MaxBroadcastRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for s.broadcastAttempts < maxAttempts {
		s.broadcastAttempts++
		if err := b.Broadcast(s.shuffledCommitments, s.signatures); err == nil {
			s.State = StateCompleted
			return nil
		}
	}

	s.State = StateFailed
	s.Reason = "broadcast retry budget exhausted"
	return &privacyerr.SessionAborted{Reason: s.Reason}
}

// Abort moves the session to ABORTED with reason, returned to all
// participants.
func (s *Session) Abort(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = StateAborted
	s.Reason = reason
}

// CheckDeadline moves the session to ABORTED if the current phase's
// deadline has passed.
func (s *Session) CheckDeadline(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isTerminal(s.State) {
		return
	}
	if now.After(s.phaseDeadline) {
		s.State = StateAborted
		s.Reason = "phase deadline exceeded"
	}
}

func isTerminal(st State) bool {
	return st == StateCompleted || st == StateFailed || st == StateAborted
}

// CurrentState returns the session's state under lock.
func (s *Session) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}
