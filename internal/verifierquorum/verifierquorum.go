// Package verifierquorum implements threshold attestation over
// Groth16 proofs: a proof is locally verified, hashed into a 72-byte
// message together with its public inputs and a timestamp, signed
// under a local Ed25519 key, and combined with signatures fanned out
// to peer verifiers until t distinct valid signatures are collected.
package verifierquorum

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stealthsol/privacycore/internal/circuits"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// MessageSize is the fixed 72-byte attestation message length:
// proofHash(32) || publicInputsHash(32) || timestamp-LE(8).
const MessageSize = 32 + 32 + 8

// DefaultValidityWindow bounds how old an accepted attestation may
// be.
const DefaultValidityWindow = 5 * time.Minute

// PartialAttestation is one verifier's signature over the canonical
// message.
type PartialAttestation struct {
	VerifierPub ed25519.PublicKey
	Signature   []byte
}

// Attestation is the aggregated t-of-n result.
type Attestation struct {
	ProofHash        [32]byte
	PublicInputsHash [32]byte
	Timestamp        int64
	Signatures       []PartialAttestation
}

// CanonicalMessage builds the 72-byte message every verifier signs.
func CanonicalMessage(proofHash, publicInputsHash [32]byte, timestamp int64) []byte {
	msg := make([]byte, MessageSize)
	copy(msg[0:32], proofHash[:])
	copy(msg[32:64], publicInputsHash[:])
	binary.LittleEndian.PutUint64(msg[64:72], uint64(timestamp))
	return msg
}

// ProofChecker validates a Groth16 proof against its compiled
// circuit; *circuits.Manager satisfies it. It is injected so tests
// can drive the quorum protocol without compiling real circuits.
type ProofChecker interface {
	Verify(ctx context.Context, proof *circuits.Proof) (bool, error)
}

// PeerClient lets a verifier request a partial attestation from one
// peer. Implementations re-verify the proof themselves before
// signing; the interface is injected so tests can supply
// deterministic fakes instead of real network peers.
type PeerClient interface {
	RequestAttestation(ctx context.Context, proof *circuits.Proof, publicInputs interface{}, timestamp int64) (*PartialAttestation, error)
}

// Config is a verifier's quorum membership and thresholds.
type Config struct {
	Threshold      int
	QuorumPubKeys  []ed25519.PublicKey
	ValidityWindow time.Duration
	RequestTimeout time.Duration
}

// Verifier holds one node's local signing key, the circuit manager it
// verifies proofs against, and its peers.
type Verifier struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	circuits ProofChecker
	peers    []PeerClient
	cfg      Config

	log zerolog.Logger
}

// New constructs a Verifier. priv is this node's local Ed25519 key.
func New(priv ed25519.PrivateKey, checker ProofChecker, peers []PeerClient, cfg Config, log zerolog.Logger) *Verifier {
	return &Verifier{
		priv:     priv,
		pub:      priv.Public().(ed25519.PublicKey),
		circuits: checker,
		peers:    peers,
		cfg:      cfg,
		log:      log,
	}
}

// Verify runs the full attestation protocol: local proof check, local
// signature, peer fan-out, and threshold aggregation.
func (v *Verifier) Verify(ctx context.Context, proof *circuits.Proof, publicInputs interface{}) (*Attestation, error) {
	ok, err := v.circuits.Verify(ctx, proof)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, privacyerr.ErrInvalidProof
	}

	proofHash := sha256.Sum256(proof.Bytes)
	canonical, err := CanonicalBytes(publicInputs)
	if err != nil {
		return nil, err
	}
	publicInputsHash := sha256.Sum256(canonical)
	timestamp := time.Now().Unix()

	message := CanonicalMessage(proofHash, publicInputsHash, timestamp)
	localSig := ed25519.Sign(v.priv, message)

	collected := []PartialAttestation{{VerifierPub: v.pub, Signature: localSig}}

	peerResults := v.fanOutToPeers(ctx, proof, publicInputs, timestamp)
	for _, pa := range peerResults {
		if pa == nil {
			continue
		}
		if !ed25519.Verify(pa.VerifierPub, message, pa.Signature) {
			v.log.Warn().Str("verifier", hexPrefix(pa.VerifierPub)).Msg("rejected invalid peer attestation signature")
			continue
		}
		if !v.inQuorum(pa.VerifierPub) {
			v.log.Warn().Str("verifier", hexPrefix(pa.VerifierPub)).Msg("rejected attestation from non-quorum key")
			continue
		}
		collected = append(collected, *pa)
	}

	distinct := dedupeByKey(collected)
	if len(distinct) < v.cfg.Threshold {
		return nil, privacyerr.ErrInsufficientSignatures
	}

	return &Attestation{
		ProofHash:        proofHash,
		PublicInputsHash: publicInputsHash,
		Timestamp:        timestamp,
		Signatures:       distinct,
	}, nil
}

func (v *Verifier) fanOutToPeers(ctx context.Context, proof *circuits.Proof, publicInputs interface{}, timestamp int64) []*PartialAttestation {
	results := make([]*PartialAttestation, len(v.peers))

	reqCtx := ctx
	var cancel context.CancelFunc
	if v.cfg.RequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, v.cfg.RequestTimeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	for i, peer := range v.peers {
		wg.Add(1)
		go func(i int, peer PeerClient) {
			defer wg.Done()
			pa, err := peer.RequestAttestation(reqCtx, proof, publicInputs, timestamp)
			if err != nil {
				v.log.Debug().Err(err).Msg("peer attestation request failed")
				return
			}
			results[i] = pa
		}(i, peer)
	}
	wg.Wait()

	return results
}

func (v *Verifier) inQuorum(pub ed25519.PublicKey) bool {
	for _, q := range v.cfg.QuorumPubKeys {
		if string(q) == string(pub) {
			return true
		}
	}
	return false
}

func dedupeByKey(sigs []PartialAttestation) []PartialAttestation {
	seen := make(map[string]bool)
	out := make([]PartialAttestation, 0, len(sigs))
	for _, s := range sigs {
		key := string(s.VerifierPub)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func hexPrefix(b []byte) string {
	const n = 8
	if len(b) < n {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[:n])
}

// ValidateAttestation is run by a consumer of an aggregated
// Attestation (not the verifiers themselves): it rejects attestations
// outside the validity window, signatures that don't verify, and
// signing keys outside the published quorum, and requires at least
// threshold distinct valid signatures.
func ValidateAttestation(att *Attestation, quorumPubKeys []ed25519.PublicKey, threshold int, validityWindow time.Duration, now time.Time) error {
	age := now.Unix() - att.Timestamp
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > validityWindow {
		return privacyerr.ErrTimeout
	}

	quorum := make(map[string]bool, len(quorumPubKeys))
	for _, q := range quorumPubKeys {
		quorum[string(q)] = true
	}

	message := CanonicalMessage(att.ProofHash, att.PublicInputsHash, att.Timestamp)

	valid := make(map[string]bool)
	for _, sig := range att.Signatures {
		if !quorum[string(sig.VerifierPub)] {
			continue
		}
		if !ed25519.Verify(sig.VerifierPub, message, sig.Signature) {
			continue
		}
		valid[string(sig.VerifierPub)] = true
	}

	if len(valid) < threshold {
		return privacyerr.ErrInsufficientSignatures
	}
	return nil
}
