// Package stealth implements dual-key stealth address derivation
// (DKSAP): a recipient publishes a meta-address
// (scanPub, spendPub); a sender derives a one-time on-chain address
// from it via X25519 ECDH; the recipient rescans announcements with
// their scan key to discover payments without exposing the spend key.
//
// The construction is Ed25519-based for wire compatibility with an
// Ed25519 chain: scan and spend keys are Ed25519 keypairs, and the
// ECDH step converts them to X25519 form rather than working over a
// separate curve.
package stealth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"
	"strings"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/curve25519"

	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// MetaAddressTag is the fixed ASCII prefix for an encoded meta-address.
const MetaAddressTag = "stealth:"

// sharedSecretDomain domain-separates the ECDH shared secret derivation.
const sharedSecretDomain = "stealthsol_v1"

// p25519 is the Curve25519 base field prime 2^255 - 19.
var p25519 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(19))

// Keypair is an Ed25519 key pair used for either the scan or spend role.
type Keypair struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// StealthKeypair holds the two independent key pairs that make up a
// recipient's identity: scan keys discover payments,
// spend keys control them.
type StealthKeypair struct {
	Scan  Keypair
	Spend Keypair
}

// MetaAddress is the published (scanPub, spendPub) pair.
type MetaAddress struct {
	ScanPub  ed25519.PublicKey
	SpendPub ed25519.PublicKey
}

// Announcement is published by a sender: the ephemeral public key and
// the resulting one-time stealth address.
type Announcement struct {
	EphemeralPub   ed25519.PublicKey
	StealthAddress ed25519.PublicKey
	Timestamp      int64
}

// DeriveKeypairs derives a StealthKeypair deterministically from a
// 32-byte seed via tagged SHA-256 hashing:
// scanSeed = H("scan:" || seed), spendSeed = H("spend:" || seed).
func DeriveKeypairs(seed [32]byte) (*StealthKeypair, error) {
	scanSeed := sha256.Sum256(append([]byte("scan:"), seed[:]...))
	spendSeed := sha256.Sum256(append([]byte("spend:"), seed[:]...))

	scanPriv := ed25519.NewKeyFromSeed(scanSeed[:])
	spendPriv := ed25519.NewKeyFromSeed(spendSeed[:])

	return &StealthKeypair{
		Scan:  Keypair{Private: scanPriv, Public: scanPriv.Public().(ed25519.PublicKey)},
		Spend: Keypair{Private: spendPriv, Public: spendPriv.Public().(ed25519.PublicKey)},
	}, nil
}

// MetaAddress returns the public meta-address published by a recipient.
func (k *StealthKeypair) MetaAddress() *MetaAddress {
	return &MetaAddress{ScanPub: k.Scan.Public, SpendPub: k.Spend.Public}
}

// Encode renders a meta-address as "stealth:" + base58(scanPub || spendPub).
func (m *MetaAddress) Encode() string {
	buf := make([]byte, 0, 64)
	buf = append(buf, m.ScanPub...)
	buf = append(buf, m.SpendPub...)
	return MetaAddressTag + base58.Encode(buf)
}

// ParseMetaAddress decodes a "stealth:"-prefixed, base58-encoded
// meta-address. Fails with ErrMalformedInput on a bad prefix, invalid
// base58 alphabet, or the wrong decoded length.
func ParseMetaAddress(s string) (*MetaAddress, error) {
	if !strings.HasPrefix(s, MetaAddressTag) {
		return nil, privacyerr.ErrMalformedInput
	}
	decoded := base58.Decode(strings.TrimPrefix(s, MetaAddressTag))
	if len(decoded) != 2*ed25519.PublicKeySize {
		return nil, privacyerr.ErrMalformedInput
	}
	return &MetaAddress{
		ScanPub:  append(ed25519.PublicKey{}, decoded[:ed25519.PublicKeySize]...),
		SpendPub: append(ed25519.PublicKey{}, decoded[ed25519.PublicKeySize:]...),
	}, nil
}

// edwardsYToMontgomeryU converts an Ed25519 public key's edwards
// y-coordinate to its Curve25519 Montgomery u-coordinate via
// u = (1+y) / (1-y) mod p25519. It validates the point
// is on-curve first (ErrNonCanonicalPoint) and fails the same way for
// the non-convertible y=1 case.
func edwardsYToMontgomeryU(pub ed25519.PublicKey) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, privacyerr.ErrMalformedInput
	}

	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, privacyerr.ErrNonCanonicalPoint
	}

	// The public key encoding is the little-endian y-coordinate with the
	// sign of x folded into the top bit; clear it to recover y.
	yBytes := append([]byte{}, pub...)
	yBytes[31] &= 0x7f
	y := reverseAndBig(yBytes)

	one := big.NewInt(1)
	numerator := new(big.Int).Mod(new(big.Int).Add(one, y), p25519)
	denominator := new(big.Int).Mod(new(big.Int).Sub(one, y), p25519)

	if denominator.Sign() == 0 {
		return nil, privacyerr.ErrNonCanonicalPoint
	}

	denomInv := new(big.Int).ModInverse(denominator, p25519)
	if denomInv == nil {
		return nil, privacyerr.ErrNonCanonicalPoint
	}

	u := new(big.Int).Mod(new(big.Int).Mul(numerator, denomInv), p25519)
	return leftPadReversed(u, 32), nil
}

func reverseAndBig(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

func leftPadReversed(v *big.Int, size int) []byte {
	be := v.Bytes()
	be32 := make([]byte, size)
	copy(be32[size-len(be):], be)
	le := make([]byte, size)
	for i, b := range be32 {
		le[size-1-i] = b
	}
	return le
}

// ed25519ToX25519Scalar converts an Ed25519 private key's seed into a
// clamped X25519 scalar: the first 32 bytes of SHA-512(seed), with
// standard RFC 7748 clamping.
func ed25519ToX25519Scalar(priv ed25519.PrivateKey) []byte {
	seed := priv.Seed()
	h := sha512.Sum512(seed)
	scalar := append([]byte{}, h[:32]...)
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64
	return scalar
}

func deriveSharedAndStealthSeed(ecdh []byte, spendPub ed25519.PublicKey) [32]byte {
	shared := sha256.Sum256(append([]byte(sharedSecretDomain), ecdh...))
	stealthSeed := sha256.Sum256(append(shared[:], spendPub...))
	return stealthSeed
}

// DeriveForSender computes the one-time stealth address a sender
// publishes for a recipient's meta-address, using a fresh ephemeral
// Ed25519 keypair derived from ephemeralSeed.
func DeriveForSender(meta *MetaAddress, ephemeralSeed [32]byte, timestamp int64) (*Announcement, error) {
	ephPriv := ed25519.NewKeyFromSeed(ephemeralSeed[:])
	ephPub := ephPriv.Public().(ed25519.PublicKey)

	scanPubX, err := edwardsYToMontgomeryU(meta.ScanPub)
	if err != nil {
		return nil, err
	}

	ephPrivX := ed25519ToX25519Scalar(ephPriv)
	ecdh, err := curve25519.X25519(ephPrivX, scanPubX)
	if err != nil {
		return nil, privacyerr.ErrNonCanonicalPoint
	}

	stealthSeed := deriveSharedAndStealthSeed(ecdh, meta.SpendPub)
	stealthPriv := ed25519.NewKeyFromSeed(stealthSeed[:])

	return &Announcement{
		EphemeralPub:   ephPub,
		StealthAddress: stealthPriv.Public().(ed25519.PublicKey),
		Timestamp:      timestamp,
	}, nil
}

// ScanResult is returned by Scan on a successful match.
type ScanResult struct {
	StealthPriv ed25519.PrivateKey
	StealthPub  ed25519.PublicKey
}

// Scan checks whether an announcement was addressed to keys, and if
// so returns the derived one-time spending keypair. It rejects
// announcements whose ephemeral key does not decode to an on-curve
// point (ErrNonCanonicalPoint).
func Scan(keys *StealthKeypair, ann *Announcement) (*ScanResult, bool, error) {
	ephPubX, err := edwardsYToMontgomeryU(ann.EphemeralPub)
	if err != nil {
		return nil, false, err
	}

	scanPrivX := ed25519ToX25519Scalar(keys.Scan.Private)
	ecdh, err := curve25519.X25519(scanPrivX, ephPubX)
	if err != nil {
		return nil, false, privacyerr.ErrNonCanonicalPoint
	}

	stealthSeed := deriveSharedAndStealthSeed(ecdh, keys.Spend.Public)
	stealthPriv := ed25519.NewKeyFromSeed(stealthSeed[:])
	stealthPub := stealthPriv.Public().(ed25519.PublicKey)

	if !publicKeysEqual(stealthPub, ann.StealthAddress) {
		return nil, false, nil
	}

	return &ScanResult{StealthPriv: stealthPriv, StealthPub: stealthPub}, true, nil
}

func publicKeysEqual(a, b ed25519.PublicKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GenerateEphemeralSeed draws a fresh random 32-byte seed for
// DeriveForSender, using crypto/rand.
func GenerateEphemeralSeed() ([32]byte, error) {
	var seed [32]byte
	_, err := rand.Read(seed[:])
	return seed, err
}
