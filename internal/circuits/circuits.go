package circuits

import (
	"bytes"
	"context"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"

	"github.com/stealthsol/privacycore/internal/merkle"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
)

// ProofType distinguishes the two circuits the shielded pool needs.
type ProofType uint8

const (
	// ProofTypeDeposit proves a commitment is well-formed: it opens
	// to (nullifier, secret, amount, recipient) via Poseidon hash4.
	ProofTypeDeposit ProofType = iota
	// ProofTypeWithdraw proves the spender knows a note whose
	// commitment is included in the tree at merkleRoot, and that
	// nullifierHash is the correct derivation from that note's
	// nullifier.
	ProofTypeWithdraw
)

// MerkleDepth fixes the withdraw circuit's path length to the
// off-chain tree depth.
const MerkleDepth = merkle.DefaultDepth

// DepositCircuit proves Commitment = Poseidon4(Nullifier, Secret,
// Amount, Recipient) without revealing the private fields.
type DepositCircuit struct {
	Commitment frontend.Variable `gnark:",public"`
	Amount     frontend.Variable `gnark:",public"`

	Nullifier frontend.Variable
	Secret    frontend.Variable
	Recipient frontend.Variable
}

// Define implements frontend.Circuit.
func (c *DepositCircuit) Define(api frontend.API) error {
	g := newPoseidonGadget(api)
	commitment := g.hash4(c.Nullifier, c.Secret, c.Amount, c.Recipient)
	api.AssertIsEqual(commitment, c.Commitment)
	return nil
}

// WithdrawCircuit proves knowledge of a note included in the tree at
// MerkleRoot whose nullifier hashes to NullifierHash, without
// revealing which leaf it is.
type WithdrawCircuit struct {
	MerkleRoot    frontend.Variable `gnark:",public"`
	NullifierHash frontend.Variable `gnark:",public"`
	Amount        frontend.Variable `gnark:",public"`
	Recipient     frontend.Variable `gnark:",public"`

	Nullifier    frontend.Variable
	Secret       frontend.Variable
	PathElements [MerkleDepth]frontend.Variable
	PathBits     [MerkleDepth]frontend.Variable // 0 or 1
}

// Define implements frontend.Circuit.
func (c *WithdrawCircuit) Define(api frontend.API) error {
	g := newPoseidonGadget(api)

	commitment := g.hash4(c.Nullifier, c.Secret, c.Amount, c.Recipient)

	current := commitment
	for level := 0; level < MerkleDepth; level++ {
		api.AssertIsBoolean(c.PathBits[level])
		sibling := c.PathElements[level]

		left := api.Select(c.PathBits[level], sibling, current)
		right := api.Select(c.PathBits[level], current, sibling)
		current = g.hash2(left, right)
	}
	api.AssertIsEqual(current, c.MerkleRoot)

	nullifierHash := g.hash2(c.Nullifier, 0)
	api.AssertIsEqual(nullifierHash, c.NullifierHash)

	return nil
}

// CompiledCircuit bundles an R1CS with its Groth16 keys.
type CompiledCircuit struct {
	ConstraintSystem constraint.ConstraintSystem
	ProvingKey       groth16.ProvingKey
	VerifyingKey     groth16.VerifyingKey
}

// Manager holds compiled circuits and their keys, indexed by
// ProofType, guarded by a single RWMutex. Compilation is rare and
// happens at startup; verification is frequent and concurrent.
type Manager struct {
	mu       sync.RWMutex
	circuits map[ProofType]*CompiledCircuit
}

// NewManager creates an empty circuit manager.
func NewManager() *Manager {
	return &Manager{circuits: make(map[ProofType]*CompiledCircuit)}
}

// CompileDeposit compiles the deposit circuit and runs the Groth16
// trusted setup for it.
func (m *Manager) CompileDeposit() error {
	return m.compile(ProofTypeDeposit, &DepositCircuit{})
}

// CompileWithdraw compiles the withdraw circuit and runs the Groth16
// trusted setup for it.
func (m *Manager) CompileWithdraw() error {
	var c WithdrawCircuit
	for i := range c.PathElements {
		c.PathElements[i] = frontend.Variable(0)
		c.PathBits[i] = frontend.Variable(0)
	}
	return m.compile(ProofTypeWithdraw, &c)
}

func (m *Manager) compile(pt ProofType, circuit frontend.Circuit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return err
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return err
	}

	m.circuits[pt] = &CompiledCircuit{ConstraintSystem: cs, ProvingKey: pk, VerifyingKey: vk}
	return nil
}

// Proof holds a generated proof plus its serialized public inputs.
type Proof struct {
	ProofType    ProofType
	Bytes        []byte
	PublicInputs []byte
}

// Prove generates a proof for the given witness under the compiled
// circuit pt.
func (m *Manager) Prove(ctx context.Context, pt ProofType, witness frontend.Circuit) (*Proof, error) {
	m.mu.RLock()
	compiled, ok := m.circuits[pt]
	m.mu.RUnlock()
	if !ok {
		return nil, privacyerr.ErrMalformedInput
	}

	w, err := frontend.NewWitness(witness, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	proof, err := groth16.Prove(compiled.ConstraintSystem, compiled.ProvingKey, w)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, err
	}

	publicWitness, err := w.Public()
	if err != nil {
		return nil, err
	}
	publicBytes, err := publicWitness.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return &Proof{ProofType: pt, Bytes: buf.Bytes(), PublicInputs: publicBytes}, nil
}

// Verify runs Groth16.Verify for the proof's circuit against its
// verifying key. It never returns a Go error for a rejected proof;
// callers should treat any false, nil result as ErrInvalidProof.
func (m *Manager) Verify(ctx context.Context, proof *Proof) (bool, error) {
	m.mu.RLock()
	compiled, ok := m.circuits[proof.ProofType]
	m.mu.RUnlock()
	if !ok {
		return false, privacyerr.ErrMalformedInput
	}

	p := groth16.NewProof(ecc.BN254)
	if _, err := p.ReadFrom(bytes.NewReader(proof.Bytes)); err != nil {
		return false, err
	}

	publicWitness, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return false, err
	}
	if err := publicWitness.UnmarshalBinary(proof.PublicInputs); err != nil {
		return false, err
	}

	if err := groth16.Verify(p, compiled.VerifyingKey, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}

// VerifyingKey returns the verifying key for pt, so a verifier can be
// provisioned without needing the proving key or original circuit.
func (m *Manager) VerifyingKey(pt ProofType) (groth16.VerifyingKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	compiled, ok := m.circuits[pt]
	if !ok {
		return nil, privacyerr.ErrMalformedInput
	}
	return compiled.VerifyingKey, nil
}

