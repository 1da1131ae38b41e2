package coinjoin

import (
	"encoding/json"

	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// MessageType tags the JSON union exchanged between a CoinJoin client
// and the coordinator.
type MessageType string

// Client -> Coordinator message types.
const (
	MsgJoin            MessageType = "JOIN"
	MsgSubmitBlinded   MessageType = "SUBMIT_BLINDED"
	MsgSubmitUnblinded MessageType = "SUBMIT_UNBLINDED"
	MsgSubmitInput     MessageType = "SUBMIT_INPUT"
	MsgSubmitSignature MessageType = "SUBMIT_SIGNATURE"
	MsgReady           MessageType = "READY"
	MsgAbort           MessageType = "ABORT"
)

// Coordinator -> Client message types.
const (
	MsgJoined                     MessageType = "JOINED"
	MsgParticipantCount           MessageType = "PARTICIPANT_COUNT"
	MsgSessionStarting            MessageType = "SESSION_STARTING"
	MsgRequestBlindedCommitment   MessageType = "REQUEST_BLINDED_COMMITMENT"
	MsgBlindSignature             MessageType = "BLIND_SIGNATURE"
	MsgRequestUnblindedCommitment MessageType = "REQUEST_UNBLINDED_COMMITMENT"
	MsgCommitmentsCollected       MessageType = "COMMITMENTS_COLLECTED"
	MsgRequestInputAddress        MessageType = "REQUEST_INPUT_ADDRESS"
	MsgTransactionReady           MessageType = "TRANSACTION_READY"
	MsgRequestSignature           MessageType = "REQUEST_SIGNATURE"
	MsgTransactionComplete        MessageType = "TRANSACTION_COMPLETE"
	MsgSessionAborted             MessageType = "SESSION_ABORTED"
	MsgError                      MessageType = "ERROR"
)

// Envelope is the wire shape every message travels in: a type tag plus
// a raw payload whose fields depend on Type. Unknown tags are rejected
// outright rather than tolerated.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is the client's JOIN request.
type JoinPayload struct {
	Denomination string `json:"denomination"` // decimal string
	PublicKey    string `json:"publicKey"`     // hex-encoded Ed25519 public key
	Timestamp    int64  `json:"timestamp"`
	Nonce        string `json:"nonce"`
	Signature    string `json:"signature"` // hex-encoded Ed25519 signature
}

// SubmitBlindedPayload carries a blinded commitment.
type SubmitBlindedPayload struct {
	BlindedCommitment string `json:"blindedCommitment"` // decimal string
}

// SubmitUnblindedPayload carries an unblinded commitment and its
// signature, submitted over a fresh pseudonymous channel.
type SubmitUnblindedPayload struct {
	Commitment     string `json:"commitment"`
	BlindSignature string `json:"blindSignature"`
}

// SubmitInputPayload carries an input address for the assembled
// transaction.
type SubmitInputPayload struct {
	Address string `json:"address"`
}

// SubmitSignaturePayload carries a participant's transaction
// signature.
type SubmitSignaturePayload struct {
	Signature string `json:"signature"`
}

// SessionAbortedPayload carries the reason a session moved to ABORTED.
type SessionAbortedPayload struct {
	Reason string `json:"reason"`
}

// ErrorPayload carries a generic error message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ParseEnvelope decodes an Envelope and validates Type against the
// known set, failing closed on anything unrecognized.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, privacyerr.ErrMalformedInput
	}
	if !knownMessageTypes[env.Type] {
		return nil, privacyerr.ErrMalformedInput
	}
	return &env, nil
}

var knownMessageTypes = map[MessageType]bool{
	MsgJoin: true, MsgSubmitBlinded: true, MsgSubmitUnblinded: true,
	MsgSubmitInput: true, MsgSubmitSignature: true, MsgReady: true, MsgAbort: true,
	MsgJoined: true, MsgParticipantCount: true, MsgSessionStarting: true,
	MsgRequestBlindedCommitment: true, MsgBlindSignature: true,
	MsgRequestUnblindedCommitment: true, MsgCommitmentsCollected: true,
	MsgRequestInputAddress: true, MsgTransactionReady: true,
	MsgRequestSignature: true, MsgTransactionComplete: true,
	MsgSessionAborted: true, MsgError: true,
}

// Encode marshals type t with payload p into an Envelope.
func Encode(t MessageType, p interface{}) ([]byte, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}
