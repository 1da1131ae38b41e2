// Package rsathreshold implements Shamir secret sharing of an RSA
// private exponent and a simplified, only approximately correct
// partial-signature combination scheme (see lagrangeIntegerAt0). It
// assumes a trusted dealer who holds the full RSA private key during
// the splitting step; distributed key generation is out of scope.
package rsathreshold

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"

	"github.com/stealthsol/privacycore/internal/blindsig"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// FieldPrime is the fixed 256-bit prime field shares are computed
// over: the secp256k1 group order. It is smaller than a 2048-bit RSA
// private exponent d, so reconstruction over this field only recovers
// d mod FieldPrime, not the full exponent. A complete scheme would
// share over lambda(n) instead; see DESIGN.md.
var FieldPrime, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

// KeyShare is one participant's share of a split private exponent.
// PublicKey lets a holder verify a partial signature's modulus
// without access to the dealer's private key; ShareHash binds the
// share to that public key so a participant who receives a share over
// an unauthenticated channel can detect substitution by recomputing
// and comparing it against a value published through an authenticated
// one.
type KeyShare struct {
	Index     int
	Share     *big.Int
	PublicKey *blindsig.PublicKey
	ShareHash [32]byte
}

// shareHash binds index, share, and the public modulus together so a
// tampered share (or one swapped for a different key's share) changes
// the hash.
func shareHash(index int, share *big.Int, pub *blindsig.PublicKey) [32]byte {
	h := sha256.New()
	h.Write(big.NewInt(int64(index)).Bytes())
	h.Write(share.Bytes())
	h.Write(pub.N.Bytes())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Split draws t-1 random coefficients over FieldPrime and evaluates
// f(x) = d + a1*x + ... + a(t-1)*x^(t-1) at x = 1..n, returning one
// share per participant, each bound to pub via ShareHash. Requires
// 2 <= t <= n.
func Split(d *big.Int, pub *blindsig.PublicKey, t, n int) ([]KeyShare, error) {
	if t < 2 || t > n {
		return nil, privacyerr.ErrMalformedInput
	}

	coeffs := make([]*big.Int, t)
	coeffs[0] = new(big.Int).Mod(d, FieldPrime)
	for i := 1; i < t; i++ {
		c, err := rand.Int(rand.Reader, FieldPrime)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	shares := make([]KeyShare, n)
	for i := 1; i <= n; i++ {
		x := big.NewInt(int64(i))
		share := evalPoly(coeffs, x)
		shares[i-1] = KeyShare{
			Index:     i,
			Share:     share,
			PublicKey: pub,
			ShareHash: shareHash(i, share, pub),
		}
	}
	return shares, nil
}

func evalPoly(coeffs []*big.Int, x *big.Int) *big.Int {
	result := new(big.Int).Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coeffs[i])
		result.Mod(result, FieldPrime)
	}
	return result
}

// lagrangeCoefficientAt0 computes L_i(0) = prod_{j != i} (-j)/(i-j) mod
// FieldPrime for the share at shares[i], exactly, using modular
// inverse over the field.
func lagrangeCoefficientAt0(shares []KeyShare, i int) (*big.Int, error) {
	xi := big.NewInt(int64(shares[i].Index))
	num := big.NewInt(1)
	den := big.NewInt(1)

	for j := range shares {
		if j == i {
			continue
		}
		xj := big.NewInt(int64(shares[j].Index))

		num.Mul(num, new(big.Int).Neg(xj))
		num.Mod(num, FieldPrime)

		diff := new(big.Int).Sub(xi, xj)
		diff.Mod(diff, FieldPrime)
		den.Mul(den, diff)
		den.Mod(den, FieldPrime)
	}

	denInv := new(big.Int).ModInverse(den, FieldPrime)
	if denInv == nil {
		return nil, privacyerr.ErrNotInvertible
	}
	return new(big.Int).Mod(new(big.Int).Mul(num, denInv), FieldPrime), nil
}

// Reconstruct recovers d mod FieldPrime from any t of the shares via
// Lagrange interpolation at x=0: d = sum(s_i * L_i(0)) mod FieldPrime.
func Reconstruct(shares []KeyShare) (*big.Int, error) {
	if len(shares) < 2 {
		return nil, privacyerr.ErrMalformedInput
	}

	sum := big.NewInt(0)
	for i := range shares {
		li, err := lagrangeCoefficientAt0(shares, i)
		if err != nil {
			return nil, err
		}
		term := new(big.Int).Mul(shares[i].Share, li)
		sum.Add(sum, term)
		sum.Mod(sum, FieldPrime)
	}
	return sum, nil
}

// PartialSign computes sigma_i = m^{s_i} mod n, one participant's
// contribution to a threshold RSA signature over modulus n.
func PartialSign(share KeyShare, m, n *big.Int) *big.Int {
	return new(big.Int).Exp(m, share.Share, n)
}

// lagrangeIntegerAt0 approximates L_i(0) as a truncated integer
// quotient num/den rather than a field element, and each partial
// signature is raised to that integer coefficient. The result is only
// approximately correct: share exponents live mod FieldPrime but
// signatures must combine mod lambda(n), so no exact reconciliation
// is possible without a proper scheme such as Shoup's. A real
// deployment should replace this.
func lagrangeIntegerAt0(shares []KeyShare, i int) *big.Int {
	xi := big.NewInt(int64(shares[i].Index))
	num := big.NewInt(1)
	den := big.NewInt(1)

	for j := range shares {
		if j == i {
			continue
		}
		xj := big.NewInt(int64(shares[j].Index))
		num.Mul(num, new(big.Int).Neg(xj))
		den.Mul(den, new(big.Int).Sub(xi, xj))
	}

	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(num, den)
}

// Combine multiplies sigma_i^{L_i(0)} mod n across the provided
// partial signatures, where L_i(0) is the truncated-integer Lagrange
// coefficient from lagrangeIntegerAt0. See that function's comment:
// this is an approximate combination, not an exact threshold-RSA
// reconstruction.
func Combine(shares []KeyShare, partials []*big.Int, n *big.Int) *big.Int {
	result := big.NewInt(1)
	for i := range shares {
		li := lagrangeIntegerAt0(shares, i)
		exp := new(big.Int).Abs(li)
		term := new(big.Int).Exp(partials[i], exp, n)
		if li.Sign() < 0 {
			inv := new(big.Int).ModInverse(term, n)
			if inv != nil {
				term = inv
			}
		}
		result.Mul(result, term)
		result.Mod(result, n)
	}
	return result
}
