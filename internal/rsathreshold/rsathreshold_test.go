package rsathreshold

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stealthsol/privacycore/internal/blindsig"
)

// testPub is a fixed stand-in public key for tests that only exercise
// Shamir splitting/reconstruction, not real RSA signing.
var testPub = &blindsig.PublicKey{N: big.NewInt(3233), E: big.NewInt(17)}

func TestSplitRejectsInvalidThreshold(t *testing.T) {
	_, err := Split(big.NewInt(5), testPub, 1, 5)
	require.Error(t, err)
	_, err = Split(big.NewInt(5), testPub, 6, 5)
	require.Error(t, err)
}

// TestReconstructFromAnyTOfNShares is property 6: any t of the n
// shares reconstruct the original secret exactly mod FieldPrime.
func TestReconstructFromAnyTOfNShares(t *testing.T) {
	d := big.NewInt(12345)
	shares, err := Split(d, testPub, 3, 5)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	subsets := [][]int{{0, 1, 2}, {0, 2, 4}, {1, 3, 4}}
	for _, idxs := range subsets {
		subset := []KeyShare{shares[idxs[0]], shares[idxs[1]], shares[idxs[2]]}
		got, err := Reconstruct(subset)
		require.NoError(t, err)
		require.Equal(t, 0, got.Cmp(d))
	}
}

func TestReconstructRejectsTooFewShares(t *testing.T) {
	shares, err := Split(big.NewInt(7), testPub, 3, 5)
	require.NoError(t, err)
	_, err = Reconstruct(shares[:1])
	require.Error(t, err)
}

// TestSplitShareHashDetectsTampering asserts ShareHash changes if
// either the share value or the bound public key changes, so a
// participant can detect a substituted share.
func TestSplitShareHashDetectsTampering(t *testing.T) {
	shares, err := Split(big.NewInt(999), testPub, 2, 3)
	require.NoError(t, err)

	original := shares[0].ShareHash
	want := shareHash(shares[0].Index, shares[0].Share, shares[0].PublicKey)
	require.Equal(t, want, original)

	tampered := shareHash(shares[0].Index, big.NewInt(0).Add(shares[0].Share, big.NewInt(1)), shares[0].PublicKey)
	require.NotEqual(t, original, tampered)

	otherPub := &blindsig.PublicKey{N: big.NewInt(9991), E: big.NewInt(17)}
	swappedKey := shareHash(shares[0].Index, shares[0].Share, otherPub)
	require.NotEqual(t, original, swappedKey)
}

// TestCombineRecoversExactSignatureUnderNoWraparound exercises the
// partial-signature combination with hand-picked share values small
// enough that no modulus-P wraparound occurs during evaluation, so
// the truncated-integer Lagrange coefficients are exact. This is the
// narrow condition under which the simplified combination
// scheme happens to be correct; outside it (large coefficients,
// wraparound in Split) the scheme is only approximate — see the
// commentary on lagrangeIntegerAt0.
func TestCombineRecoversExactSignatureUnderNoWraparound(t *testing.T) {
	n := big.NewInt(3233) // classic textbook RSA modulus, p=61, q=53
	d := big.NewInt(413)
	m := big.NewInt(65)

	// f(x) = d + 5x evaluated at x=1,2, with a1=5 small enough that
	// neither value approaches FieldPrime.
	shares := []KeyShare{
		{Index: 1, Share: big.NewInt(418)},
		{Index: 2, Share: big.NewInt(423)},
	}

	partials := []*big.Int{
		PartialSign(shares[0], m, n),
		PartialSign(shares[1], m, n),
	}

	combined := Combine(shares, partials, n)
	want := new(big.Int).Exp(m, d, n)
	require.Equal(t, 0, combined.Cmp(want))
}
