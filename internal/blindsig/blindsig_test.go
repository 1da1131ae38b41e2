package blindsig

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairRejectsSmallBits(t *testing.T) {
	_, err := GenerateKeyPair(1024)
	require.Error(t, err)
}

func TestGenerateKeyPairSatisfiesRSAInvariants(t *testing.T) {
	priv, err := GenerateKeyPair(MinBits)
	require.NoError(t, err)

	require.Equal(t, 1, priv.P.Cmp(priv.Q), "primes are ordered p > q")
	require.Greater(t, priv.N.BitLen(), MinBits-2)

	check := new(big.Int).Mod(new(big.Int).Mul(priv.E, priv.D), priv.Lambda)
	require.Equal(t, int64(1), check.Int64())
}

// TestBlindSignUnblindRoundTrip uses bits=2048,
// m = SHA-256("hello") mod n, and an explicit small blinding factor
// r=3 to pin the arithmetic down to a single deterministic path
// alongside the randomized Blind helper.
func TestBlindSignUnblindRoundTrip(t *testing.T) {
	priv, err := GenerateKeyPair(MinBits)
	require.NoError(t, err)

	m := HashToRSA([]byte("hello"), priv.N)

	r := big.NewInt(3)
	rE := new(big.Int).Exp(r, priv.E, priv.N)
	blinded := new(big.Int).Mod(new(big.Int).Mul(m, rE), priv.N)

	blindedSig := SignBlinded(blinded, priv)
	sig, err := Unblind(blindedSig, r, priv.N)
	require.NoError(t, err)

	require.True(t, Verify(m, sig, &priv.PublicKey))
}

func TestBlindRoundTripViaHelpers(t *testing.T) {
	priv, err := GenerateKeyPair(MinBits)
	require.NoError(t, err)

	m := HashToRSA([]byte("a coinjoin commitment"), priv.N)

	blinded, r, err := Blind(m, &priv.PublicKey)
	require.NoError(t, err)

	blindedSig := SignBlinded(blinded, priv)
	sig, err := Unblind(blindedSig, r, priv.N)
	require.NoError(t, err)

	require.True(t, Verify(m, sig, &priv.PublicKey))
}

func TestVerifyRejectsSignatureOutOfRange(t *testing.T) {
	priv, err := GenerateKeyPair(MinBits)
	require.NoError(t, err)

	require.False(t, Verify(big.NewInt(1), big.NewInt(0), &priv.PublicKey))
	require.False(t, Verify(big.NewInt(1), new(big.Int).Set(priv.N), &priv.PublicKey))
}

func TestVerifyRejectsForgedSignature(t *testing.T) {
	priv, err := GenerateKeyPair(MinBits)
	require.NoError(t, err)

	m := HashToRSA([]byte("real message"), priv.N)
	forged := big.NewInt(12345)
	require.False(t, Verify(m, forged, &priv.PublicKey))
}
