package pedersen

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCommitVerifyRoundTrip(t *testing.T) {
	v := big.NewInt(42)
	c, r, err := Commit(v)
	require.NoError(t, err)

	ok, err := Verify(c, v, r)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsWrongValue(t *testing.T) {
	v := big.NewInt(42)
	c, r, err := Commit(v)
	require.NoError(t, err)

	ok, err := Verify(c, big.NewInt(43), r)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCommitZeroUsesOnlyH(t *testing.T) {
	r := big.NewInt(12345)
	c, err := CommitWithBlinding(big.NewInt(0), r)
	require.NoError(t, err)

	ok, err := Verify(c, big.NewInt(0), r)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAddIsHomomorphic(t *testing.T) {
	r1 := big.NewInt(111)
	r2 := big.NewInt(222)

	c1, err := CommitWithBlinding(big.NewInt(10), r1)
	require.NoError(t, err)
	c2, err := CommitWithBlinding(big.NewInt(20), r2)
	require.NoError(t, err)

	sum, err := Add(c1, c2)
	require.NoError(t, err)

	want, err := CommitWithBlinding(big.NewInt(30), new(big.Int).Add(r1, r2))
	require.NoError(t, err)

	require.Equal(t, want.Point, sum.Point)
}

func TestRangeProofRoundTrip(t *testing.T) {
	v := big.NewInt(7)
	r := big.NewInt(99)
	c, err := CommitWithBlinding(v, r)
	require.NoError(t, err)

	proof, err := Prove(c, v, r)
	require.NoError(t, err)

	ok, err := VerifyRange(c, proof)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRangeProofRejectsTamperedTag(t *testing.T) {
	v := big.NewInt(7)
	r := big.NewInt(99)
	c, err := CommitWithBlinding(v, r)
	require.NoError(t, err)

	proof, err := Prove(c, v, r)
	require.NoError(t, err)

	b := proof.Bytes()
	b[0] ^= 0xff
	tampered := &RangeProof{bytes: b}

	ok, err := VerifyRange(c, tampered)
	require.NoError(t, err)
	require.False(t, ok)
}
