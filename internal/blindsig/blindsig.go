// Package blindsig implements Chaum-style RSA blind signatures: a
// coordinator signs a value it cannot read, which underlies the
// CoinJoin commitment-signing round in internal/coinjoin.
package blindsig

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"

	"github.com/stealthsol/privacycore/internal/fieldmath"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// MinBits is the minimum accepted RSA modulus size.
const MinBits = 2048

// DefaultExponent is the fixed public exponent used across keys.
const DefaultExponent = 65537

// maxKeyGenAttempts bounds prime-pair search.
const maxKeyGenAttempts = 100

// millerRabinRounds is the Miller-Rabin witness count used on top of
// rand.Prime's own testing.
const millerRabinRounds = 64

// PublicKey is the RSA public half, (n, e).
type PublicKey struct {
	N *big.Int
	E *big.Int
}

// PrivateKey is the RSA key pair; P, Q, Lambda are retained for
// threshold splitting (internal/rsathreshold) and are not required by
// plain signing.
type PrivateKey struct {
	PublicKey
	D      *big.Int
	P, Q   *big.Int
	Lambda *big.Int
}

// GenerateKeyPair draws two primes of bits/2 length each, with the top
// and bottom bits forced to 1, rejects close or equal primes, and
// derives d = e^-1 mod lambda(n). Fails with ErrMalformedInput for
// bits < MinBits and ErrKeyGenExhausted after maxKeyGenAttempts
// unsuccessful prime pairs.
func GenerateKeyPair(bits int) (*PrivateKey, error) {
	return GenerateKeyPairWithRounds(bits, millerRabinRounds)
}

// GenerateKeyPairWithRounds is GenerateKeyPair with an explicit
// Miller-Rabin witness count; rounds below the default are clamped up
// so a config typo can't weaken primality testing.
func GenerateKeyPairWithRounds(bits, rounds int) (*PrivateKey, error) {
	if bits < MinBits {
		return nil, privacyerr.ErrMalformedInput
	}
	if rounds < millerRabinRounds {
		rounds = millerRabinRounds
	}

	e := big.NewInt(DefaultExponent)
	half := bits / 2
	minDiff := new(big.Int).Lsh(big.NewInt(1), uint(half-100))

	for attempt := 0; attempt < maxKeyGenAttempts; attempt++ {
		p, err := generatePrime(half, rounds)
		if err != nil {
			return nil, err
		}
		q, err := generatePrime(half, rounds)
		if err != nil {
			return nil, err
		}

		if p.Cmp(q) == 0 {
			continue
		}
		if p.Cmp(q) < 0 {
			p, q = q, p
		}
		diff := new(big.Int).Sub(p, q)
		if diff.Cmp(minDiff) < 0 {
			continue
		}

		pMinus1 := new(big.Int).Sub(p, big.NewInt(1))
		qMinus1 := new(big.Int).Sub(q, big.NewInt(1))
		g := fieldmath.GCD(pMinus1, qMinus1)
		lambda := new(big.Int).Div(new(big.Int).Mul(pMinus1, qMinus1), g)

		if fieldmath.GCD(e, lambda).Cmp(big.NewInt(1)) != 0 {
			continue
		}

		d, err := fieldmath.ModInverse(e, lambda)
		if err != nil {
			continue
		}

		// e*d ≡ 1 (mod lambda) sanity check.
		check := new(big.Int).Mod(new(big.Int).Mul(e, d), lambda)
		if check.Cmp(big.NewInt(1)) != 0 {
			continue
		}

		n := new(big.Int).Mul(p, q)
		return &PrivateKey{
			PublicKey: PublicKey{N: n, E: e},
			D:         d,
			P:         p,
			Q:         q,
			Lambda:    lambda,
		}, nil
	}

	return nil, privacyerr.ErrKeyGenExhausted
}

// generatePrime draws a random odd candidate of the given bit length
// with top and bottom bits forced to 1, and tests it with trial
// division against small primes followed by Miller-Rabin.
func generatePrime(bits, rounds int) (*big.Int, error) {
	for {
		candidate, err := rand.Prime(rand.Reader, bits)
		if err != nil {
			return nil, err
		}
		// rand.Prime already guarantees the top bit set and primality
		// to a strong probabilistic bound; the extra Miller-Rabin
		// rounds push the error bound to 2^-2*rounds.
		if candidate.ProbablyPrime(rounds) {
			return candidate, nil
		}
	}
}

// HashToRSA reduces msg to a signable scalar mod n via
// SHA-256(msg) interpreted big-endian mod n.
func HashToRSA(msg []byte, n *big.Int) *big.Int {
	h := sha256.Sum256(msg)
	return new(big.Int).Mod(new(big.Int).SetBytes(h[:]), n)
}

// Blind draws a uniform blinding factor r in [2, n-1] with gcd(r,n)=1
// and returns (m*r^e mod n, r).
func Blind(message *big.Int, pub *PublicKey) (blinded *big.Int, r *big.Int, err error) {
	n := pub.N
	upper := new(big.Int).Sub(n, big.NewInt(1))

	for {
		candidate, err := rand.Int(rand.Reader, new(big.Int).Sub(upper, big.NewInt(2)))
		if err != nil {
			return nil, nil, err
		}
		candidate.Add(candidate, big.NewInt(2))

		if fieldmath.GCD(candidate, n).Cmp(big.NewInt(1)) != 0 {
			continue
		}
		r = candidate
		break
	}

	rE := new(big.Int).Exp(r, pub.E, n)
	blinded = new(big.Int).Mod(new(big.Int).Mul(message, rE), n)
	return blinded, r, nil
}

// SignBlinded computes blindedMessage^d mod n, the coordinator's role
// in the protocol: it signs a value it cannot read.
func SignBlinded(blindedMessage *big.Int, priv *PrivateKey) *big.Int {
	return new(big.Int).Exp(blindedMessage, priv.D, priv.N)
}

// Unblind removes the blinding factor: blindedSig * r^-1 mod n.
func Unblind(blindedSig, r, n *big.Int) (*big.Int, error) {
	rInv, err := fieldmath.ModInverse(r, n)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mod(new(big.Int).Mul(blindedSig, rInv), n), nil
}

// Verify checks sig^e mod n == message, returning false (not an error)
// for signatures outside (0, n). The comparison runs over the hex
// representation in constant time.
func Verify(message, signature *big.Int, pub *PublicKey) bool {
	if signature.Sign() <= 0 || signature.Cmp(pub.N) >= 0 {
		return false
	}
	recovered := new(big.Int).Exp(signature, pub.E, pub.N)

	want := []byte(message.Text(16))
	got := []byte(recovered.Text(16))
	if len(want) != len(got) {
		return false
	}
	return subtle.ConstantTimeCompare(want, got) == 1
}
