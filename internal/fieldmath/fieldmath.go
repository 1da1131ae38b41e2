// Package fieldmath implements BN254 scalar-field arithmetic and the
// arbitrary-precision integer routines (gcd, extended gcd, modular
// inverse) shared with RSA key generation. All exported values are
// fully reduced into [0, p) for field operations; the gcd/extgcd
// routines operate over plain integers for use outside the field.
package fieldmath

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// Modulus returns the BN254 scalar-field prime p.
func Modulus() *big.Int {
	m := fr.Modulus()
	return new(big.Int).Set(m)
}

// toElement reduces an arbitrary integer into a field element.
func toElement(v *big.Int) fr.Element {
	var e fr.Element
	e.SetBigInt(v)
	return e
}

func toBigInt(e fr.Element) *big.Int {
	var out big.Int
	e.BigInt(&out)
	return &out
}

// Reduce fully reduces v into [0, p).
func Reduce(v *big.Int) *big.Int {
	return toBigInt(toElement(v))
}

// Add returns (a + b) mod p.
func Add(a, b *big.Int) *big.Int {
	ea, eb := toElement(a), toElement(b)
	var r fr.Element
	r.Add(&ea, &eb)
	return toBigInt(r)
}

// Sub returns (a - b) mod p.
func Sub(a, b *big.Int) *big.Int {
	ea, eb := toElement(a), toElement(b)
	var r fr.Element
	r.Sub(&ea, &eb)
	return toBigInt(r)
}

// Mul returns (a * b) mod p. Intermediate products are carried in the
// field element's internal Montgomery representation, which handles
// operands well beyond 512 bits before the final reduction.
func Mul(a, b *big.Int) *big.Int {
	ea, eb := toElement(a), toElement(b)
	var r fr.Element
	r.Mul(&ea, &eb)
	return toBigInt(r)
}

// Pow computes a^e mod p via square-and-multiply. Exponentiation is
// variable-time; constant-time handling of secret exponents is an open
// hardening item.
func Pow(a *big.Int, e *big.Int) *big.Int {
	ea := toElement(a)
	var r fr.Element
	r.Exp(ea, e)
	return toBigInt(r)
}

// Inv returns the multiplicative inverse of a mod p. Fails with
// ErrNotInvertible for a == 0.
func Inv(a *big.Int) (*big.Int, error) {
	ea := toElement(a)
	if ea.IsZero() {
		return nil, privacyerr.ErrNotInvertible
	}
	var r fr.Element
	r.Inverse(&ea)
	return toBigInt(r), nil
}

// GCD returns gcd(a, b) over plain integers (used by RSA key
// generation and blinding-factor selection, which operate over the RSA
// modulus rather than the BN254 field).
func GCD(a, b *big.Int) *big.Int {
	g := new(big.Int)
	g.GCD(nil, nil, new(big.Int).Abs(a), new(big.Int).Abs(b))
	return g
}

// ExtendedGCD returns (g, x, y) such that a*x + b*y = g = gcd(a, b).
func ExtendedGCD(a, b *big.Int) (g, x, y *big.Int) {
	g = new(big.Int)
	x = new(big.Int)
	y = new(big.Int)
	g.GCD(x, y, a, b)
	return g, x, y
}

// ModInverse returns a^-1 mod n over plain integers (used by RSA,
// where n is the modulus lambda(n) or the RSA modulus itself, not the
// BN254 field prime). Fails with ErrNotInvertible if gcd(a, n) != 1.
func ModInverse(a, n *big.Int) (*big.Int, error) {
	inv := new(big.Int).ModInverse(a, n)
	if inv == nil {
		return nil, privacyerr.ErrNotInvertible
	}
	return inv, nil
}
