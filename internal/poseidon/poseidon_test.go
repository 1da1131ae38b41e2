package poseidon

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stealthsol/privacycore/internal/fieldmath"
)

func TestHash2Deterministic(t *testing.T) {
	a := big.NewInt(7)
	b := big.NewInt(11)

	h1 := Hash2(a, b)
	h2 := Hash2(a, b)
	require.Equal(t, 0, h1.Cmp(h2), "hash2 must be constant across calls")
}

func TestHash2SensitiveToInputs(t *testing.T) {
	h1 := Hash2(big.NewInt(1), big.NewInt(2))
	h2 := Hash2(big.NewInt(2), big.NewInt(1))
	require.NotEqual(t, 0, h1.Cmp(h2), "hash2 must not be commutative by accident")
}

func TestHash4MatchesNestedHash2(t *testing.T) {
	a, b, c, d := big.NewInt(7), big.NewInt(11), big.NewInt(1), big.NewInt(0)
	got := Hash4(a, b, c, d)
	want := Hash2(Hash2(a, b), Hash2(c, d))
	require.Equal(t, 0, got.Cmp(want))
}

func TestHashReducedModP(t *testing.T) {
	h := Hash2(big.NewInt(0), big.NewInt(0))
	require.True(t, h.Cmp(big.NewInt(0)) >= 0)
	require.True(t, h.Cmp(fieldmath.Modulus()) < 0)
}

// TestHash2KnownVector pins Hash2(1, 2) to the published circomlib/
// go-iden3-crypto Poseidon(t=3) test vector, so a regression that
// silently swaps in a non-canonical parameter set (the bug this
// package used to have) fails a test instead of only failing
// interoperability with other implementations at integration time.
func TestHash2KnownVector(t *testing.T) {
	want, ok := new(big.Int).SetString(
		"7853200120776062878684798364095072458815029376092732009249414926327459813530", 10)
	require.True(t, ok)

	got := Hash2(big.NewInt(1), big.NewInt(2))
	require.Equal(t, 0, got.Cmp(want), "Hash2(1,2) must match the canonical Poseidon(t=3) vector")
}
