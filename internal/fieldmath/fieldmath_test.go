package fieldmath

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddSubRoundTrip(t *testing.T) {
	a := big.NewInt(12345)
	b := big.NewInt(67890)

	sum := Add(a, b)
	back := Sub(sum, b)
	require.Equal(t, 0, back.Cmp(a))
}

func TestMulLargeOperands(t *testing.T) {
	// Exercise operands well beyond 512 bits of intermediate product.
	a := new(big.Int).Lsh(big.NewInt(1), 300)
	b := new(big.Int).Lsh(big.NewInt(1), 300)
	product := Mul(a, b)
	require.True(t, product.Cmp(Modulus()) < 0, "product must be reduced mod p")
}

func TestInvZeroFails(t *testing.T) {
	_, err := Inv(big.NewInt(0))
	require.Error(t, err)
}

func TestInvRoundTrip(t *testing.T) {
	a := big.NewInt(424242)
	inv, err := Inv(a)
	require.NoError(t, err)

	one := Mul(a, inv)
	require.Equal(t, int64(1), one.Int64())
}

func TestExtendedGCD(t *testing.T) {
	a := big.NewInt(240)
	b := big.NewInt(46)
	g, x, y := ExtendedGCD(a, b)
	require.Equal(t, int64(2), g.Int64())

	check := new(big.Int).Add(new(big.Int).Mul(a, x), new(big.Int).Mul(b, y))
	require.Equal(t, 0, check.Cmp(g))
}

func TestModInverseRejectsNonCoprime(t *testing.T) {
	_, err := ModInverse(big.NewInt(6), big.NewInt(9))
	require.Error(t, err)
}
