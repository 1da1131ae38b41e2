package coinjoin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEnvelopeRoundTrip(t *testing.T) {
	data, err := Encode(MsgJoin, JoinPayload{
		Denomination: "1",
		PublicKey:    "abcd",
		Timestamp:    1234,
		Nonce:        "n-1",
		Signature:    "ef01",
	})
	require.NoError(t, err)

	env, err := ParseEnvelope(data)
	require.NoError(t, err)
	require.Equal(t, MsgJoin, env.Type)
}

func TestParseEnvelopeRejectsUnknownTag(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"type":"SELF_DESTRUCT","payload":{}}`))
	require.Error(t, err)
}

func TestParseEnvelopeRejectsMalformedJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"type":`))
	require.Error(t, err)
}
