// Package circuits compiles and proves the shielded pool's Groth16
// deposit and withdraw statements: proving a commitment opens
// correctly, and proving membership plus correct nullifier derivation
// against a historical Merkle root.
package circuits

import (
	"crypto/sha256"
	"math/big"

	"github.com/consensys/gnark/frontend"

	"github.com/stealthsol/privacycore/internal/fieldmath"
)

// gadgetFullRounds/gadgetPartialRounds mirror internal/poseidon's round
// schedule (8 full rounds, 57 partial rounds), but this
// gadget does NOT share internal/poseidon's constants: that package
// delegates its hashing to github.com/iden3/go-iden3-crypto/poseidon's
// canonical, cross-implementation-interoperable parameter set, which
// has no gnark-circuit-friendly accessor this package can reuse inside
// an R1CS. This gadget instead runs the same permutation shape over a
// locally derived, explicitly non-canonical constant table, so the
// deposit and withdraw circuits stay internally self-consistent for
// their own prove/verify round trip. Wiring the circuit against the
// exact canonical constants, so a proof attests to the same commitment
// hash stored outside the circuit, is open future work (see
// DESIGN.md).
const (
	gadgetFullRounds    = 8
	gadgetPartialRounds = 57
	gadgetWidth         = 3
)

var (
	gadgetRoundConstants [gadgetFullRounds + gadgetPartialRounds][gadgetWidth]*big.Int
	gadgetMDS            [gadgetWidth][gadgetWidth]*big.Int
)

func init() {
	p := fieldmath.Modulus()
	for round := 0; round < gadgetFullRounds+gadgetPartialRounds; round++ {
		for pos := 0; pos < gadgetWidth; pos++ {
			gadgetRoundConstants[round][pos] = expandGadgetConstant("CIRCUIT_POSEIDON_W3_RC", round, pos, p)
		}
	}

	xs := make([]*big.Int, gadgetWidth)
	ys := make([]*big.Int, gadgetWidth)
	for i := 0; i < gadgetWidth; i++ {
		xs[i] = expandGadgetConstant("CIRCUIT_POSEIDON_W3_MDS_X", i, 0, p)
		ys[i] = expandGadgetConstant("CIRCUIT_POSEIDON_W3_MDS_Y", i, 0, p)
	}
	for i := 0; i < gadgetWidth; i++ {
		for j := 0; j < gadgetWidth; j++ {
			denom := fieldmath.Sub(xs[i], ys[j])
			inv, err := fieldmath.Inv(denom)
			if err != nil {
				// xs/ys are drawn from a wide hash expansion; a
				// collision x_i == y_j is astronomically unlikely and
				// would be a programming bug, not a runtime condition.
				panic("circuits: degenerate gadget MDS Cauchy matrix, adjust domain tags")
			}
			gadgetMDS[i][j] = inv
		}
	}
}

// expandGadgetConstant derives a deterministic field element from a
// domain tag and two integer indices via repeated SHA-256 expansion,
// reduced mod p. Only used to build this package's own circuit-local,
// explicitly non-canonical Poseidon parameters.
func expandGadgetConstant(tag string, a, b int, p *big.Int) *big.Int {
	h := sha256.New()
	h.Write([]byte(tag))
	h.Write([]byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)})
	h.Write([]byte{byte(b >> 24), byte(b >> 16), byte(b >> 8), byte(b)})
	digest := h.Sum(nil)

	h2 := sha256.New()
	h2.Write(digest)
	h2.Write([]byte("expand"))
	extra := h2.Sum(nil)

	buf := append(append([]byte{}, digest...), extra[:16]...)
	v := new(big.Int).SetBytes(buf)
	return v.Mod(v, p)
}

// nativeGadgetHash2/nativeGadgetHash4 run the exact same permutation
// as poseidonGadget, but over plain *big.Int outside any circuit. They
// exist only so tests can build a witness (a commitment, a Merkle
// root) using the same constants the circuit itself checks against —
// internal/poseidon's canonical Hash2/Hash4 cannot be used for that
// purpose, since its constants are now deliberately different from
// this gadget's (see the package doc comment above). Production
// commitment/nullifier computation always goes through
// internal/poseidon; these two functions are test-only scaffolding.
func nativeGadgetHash2(a, b *big.Int) *big.Int {
	return nativeGadgetPermute([3]*big.Int{big.NewInt(0), a, b})[0]
}

func nativeGadgetHash4(a, b, c, d *big.Int) *big.Int {
	return nativeGadgetHash2(nativeGadgetHash2(a, b), nativeGadgetHash2(c, d))
}

func nativeGadgetPermute(state [3]*big.Int) [3]*big.Int {
	half := gadgetFullRounds / 2
	round := 0
	for i := 0; i < half; i++ {
		state = nativeGadgetFullRound(state, round)
		round++
	}
	for i := 0; i < gadgetPartialRounds; i++ {
		state = nativeGadgetPartialRound(state, round)
		round++
	}
	for i := 0; i < half; i++ {
		state = nativeGadgetFullRound(state, round)
		round++
	}
	return state
}

func nativeGadgetFullRound(state [3]*big.Int, round int) [3]*big.Int {
	for i := 0; i < 3; i++ {
		state[i] = fieldmath.Add(state[i], gadgetRoundConstants[round][i])
		state[i] = nativeGadgetSbox(state[i])
	}
	return nativeGadgetApplyMDS(state)
}

func nativeGadgetPartialRound(state [3]*big.Int, round int) [3]*big.Int {
	for i := 0; i < 3; i++ {
		state[i] = fieldmath.Add(state[i], gadgetRoundConstants[round][i])
	}
	state[0] = nativeGadgetSbox(state[0])
	return nativeGadgetApplyMDS(state)
}

func nativeGadgetSbox(x *big.Int) *big.Int {
	x2 := fieldmath.Mul(x, x)
	x4 := fieldmath.Mul(x2, x2)
	return fieldmath.Mul(x4, x)
}

func nativeGadgetApplyMDS(state [3]*big.Int) [3]*big.Int {
	var out [3]*big.Int
	for i := 0; i < 3; i++ {
		acc := fieldmath.Mul(gadgetMDS[i][0], state[0])
		for j := 1; j < 3; j++ {
			acc = fieldmath.Add(acc, fieldmath.Mul(gadgetMDS[i][j], state[j]))
		}
		out[i] = acc
	}
	return out
}

// poseidonGadget runs the Poseidon permutation shape inside an R1CS
// circuit (gadgetRoundConstants/gadgetMDS above), for the deposit and
// withdraw circuits' own internal commitment and nullifier checks.
type poseidonGadget struct {
	api frontend.API
}

func newPoseidonGadget(api frontend.API) *poseidonGadget {
	return &poseidonGadget{api: api}
}

// hash2 computes the in-circuit Poseidon-shaped hash of (a, b).
func (g *poseidonGadget) hash2(a, b frontend.Variable) frontend.Variable {
	return g.permute([3]frontend.Variable{0, a, b})[0]
}

// hash4 computes hash2(hash2(a,b), hash2(c,d)) in-circuit, the same
// nested construction as poseidon.Hash4.
func (g *poseidonGadget) hash4(a, b, c, d frontend.Variable) frontend.Variable {
	return g.hash2(g.hash2(a, b), g.hash2(c, d))
}

func (g *poseidonGadget) permute(state [3]frontend.Variable) [3]frontend.Variable {
	half := gadgetFullRounds / 2

	round := 0
	for i := 0; i < half; i++ {
		state = g.fullRound(state, round)
		round++
	}
	for i := 0; i < gadgetPartialRounds; i++ {
		state = g.partialRound(state, round)
		round++
	}
	for i := 0; i < half; i++ {
		state = g.fullRound(state, round)
		round++
	}
	return state
}

func (g *poseidonGadget) fullRound(state [3]frontend.Variable, round int) [3]frontend.Variable {
	api := g.api
	for i := 0; i < 3; i++ {
		state[i] = api.Add(state[i], gadgetRoundConstants[round][i])
		state[i] = g.sbox(state[i])
	}
	return g.applyMDS(state)
}

func (g *poseidonGadget) partialRound(state [3]frontend.Variable, round int) [3]frontend.Variable {
	api := g.api
	for i := 0; i < 3; i++ {
		state[i] = api.Add(state[i], gadgetRoundConstants[round][i])
	}
	state[0] = g.sbox(state[0])
	return g.applyMDS(state)
}

func (g *poseidonGadget) sbox(x frontend.Variable) frontend.Variable {
	api := g.api
	x2 := api.Mul(x, x)
	x4 := api.Mul(x2, x2)
	return api.Mul(x4, x)
}

func (g *poseidonGadget) applyMDS(state [3]frontend.Variable) [3]frontend.Variable {
	api := g.api
	var out [3]frontend.Variable
	for i := 0; i < 3; i++ {
		acc := api.Mul(gadgetMDS[i][0], state[0])
		for j := 1; j < 3; j++ {
			acc = api.Add(acc, api.Mul(gadgetMDS[i][j], state[j]))
		}
		out[i] = acc
	}
	return out
}
