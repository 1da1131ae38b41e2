// Package merkle implements the incremental, fixed-depth Poseidon
// Merkle tree used to accumulate note commitments: filled-subtree
// bookkeeping, an injected Store, O(depth) inserts, and RootForPrefix,
// which snapshots a historical root so a prover can bind a withdrawal
// to the tree state as it existed at deposit time.
package merkle

import (
	"context"
	"math/big"
	"sync"

	"github.com/stealthsol/privacycore/internal/poseidon"
	"github.com/stealthsol/privacycore/pkg/privacyerr"
	"github.com/stealthsol/privacycore/pkg/types"
)

// DefaultDepth gives the off-chain pool a capacity of 2^20 leaves.
const DefaultDepth = 20

// Store persists tree nodes so a Tree can be reconstructed across
// restarts. Implementations are never called concurrently with
// overlapping level/index pairs because Tree serializes all mutation
// through a single writer lock.
type Store interface {
	GetLeaf(ctx context.Context, index uint64) (*types.FieldElement, bool, error)
	SetLeaf(ctx context.Context, index uint64, value *types.FieldElement) error
	Len(ctx context.Context) (uint64, error)
}

// Path is a Merkle inclusion proof: the sibling at each level and the
// left/right bit that selects ordering when recomputing the root.
type Path struct {
	Root     *types.FieldElement
	Siblings []*types.FieldElement
	PathBits []bool // PathBits[l] == true means the current node is the right child at level l
	Leaf     *types.FieldElement
	Index    uint64
}

// Tree is an append-only, fixed-depth Merkle tree over Poseidon.
type Tree struct {
	mu sync.RWMutex

	depth int
	store Store

	leaves         []*types.FieldElement // leaves[0:nextIndex], cached for proof/prefix recomputation
	nextIndex      uint64
	filledSubtrees []*types.FieldElement // filledSubtrees[l]: leftmost completed subtree hash at level l
	root           *types.FieldElement
	zero           []*types.FieldElement // zero[0]=0, zero[i+1]=H(zero[i],zero[i])
}

// New creates a Tree of the given depth (0 selects DefaultDepth),
// backed by store, and loads any existing leaves from it.
func New(ctx context.Context, store Store, depth int) (*Tree, error) {
	if depth == 0 {
		depth = DefaultDepth
	}

	t := &Tree{
		depth: depth,
		store: store,
		zero:  computeZeroHashes(depth),
	}
	t.filledSubtrees = make([]*types.FieldElement, depth+1)
	copy(t.filledSubtrees, t.zero)
	t.root = t.zero[depth]

	n, err := store.Len(ctx)
	if err != nil {
		return nil, err
	}
	t.leaves = make([]*types.FieldElement, 0, n)
	for i := uint64(0); i < n; i++ {
		leaf, ok, err := store.GetLeaf(ctx, i)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if _, err := t.insertLocked(ctx, leaf); err != nil {
			return nil, err
		}
	}

	return t, nil
}

func computeZeroHashes(depth int) []*types.FieldElement {
	zero := make([]*types.FieldElement, depth+1)
	zero[0] = big.NewInt(0)
	for i := 1; i <= depth; i++ {
		zero[i] = poseidon.Hash2(zero[i-1], zero[i-1])
	}
	return zero
}

// Insert appends leaf at the tree's current nextIndex, updates the
// filled-subtree cache and root in O(depth), and returns the assigned
// index. Fails with ErrTreeFull once capacity 2^depth is reached.
func (t *Tree) Insert(ctx context.Context, leaf *types.FieldElement) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(ctx, leaf)
}

func (t *Tree) insertLocked(ctx context.Context, leaf *types.FieldElement) (uint64, error) {
	maxLeaves := uint64(1) << uint(t.depth)
	if t.nextIndex >= maxLeaves {
		return 0, privacyerr.ErrTreeFull
	}

	index := t.nextIndex
	if err := t.store.SetLeaf(ctx, index, leaf); err != nil {
		return 0, err
	}
	t.leaves = append(t.leaves, leaf)

	current := leaf
	idx := index
	for level := 0; level < t.depth; level++ {
		var left, right *types.FieldElement
		if idx%2 == 0 {
			left, right = current, t.zero[level]
			t.filledSubtrees[level] = current
		} else {
			left, right = t.filledSubtrees[level], current
		}
		current = poseidon.Hash2(left, right)
		idx /= 2
	}

	t.root = current
	t.nextIndex++
	return index, nil
}

// Root returns the current Merkle root.
func (t *Tree) Root() *types.FieldElement {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.root)
}

// Size returns the number of leaves inserted so far.
func (t *Tree) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.nextIndex
}

// Proof returns the inclusion path for the leaf at index. PathBits is
// the little-endian binary expansion of index, and an unfilled right
// sibling uses the canonical zero[level] hash, never an arbitrary
// value.
func (t *Tree) Proof(index uint64) (*Path, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if index >= t.nextIndex {
		return nil, privacyerr.ErrMalformedInput
	}

	siblings := make([]*types.FieldElement, t.depth)
	bits := make([]bool, t.depth)

	nodes := t.levelZero()
	idx := index
	for level := 0; level < t.depth; level++ {
		siblingIdx := idx ^ 1
		bits[level] = idx%2 == 1

		if siblingIdx < uint64(len(nodes)) {
			siblings[level] = nodes[siblingIdx]
		} else {
			siblings[level] = t.zero[level]
		}

		nodes = nextLevel(nodes, t.zero[level])
		idx /= 2
	}

	return &Path{
		Root:     new(big.Int).Set(t.root),
		Siblings: siblings,
		PathBits: bits,
		Leaf:     new(big.Int).Set(t.leaves[index]),
		Index:    index,
	}, nil
}

// levelZero returns the live leaf level as a defensive copy.
func (t *Tree) levelZero() []*types.FieldElement {
	out := make([]*types.FieldElement, len(t.leaves))
	copy(out, t.leaves)
	return out
}

func nextLevel(nodes []*types.FieldElement, zero *types.FieldElement) []*types.FieldElement {
	out := make([]*types.FieldElement, (len(nodes)+1)/2)
	for i := range out {
		leftIdx := 2 * i
		rightIdx := leftIdx + 1
		left := nodes[leftIdx]
		var right *types.FieldElement
		if rightIdx < len(nodes) {
			right = nodes[rightIdx]
		} else {
			right = zero
		}
		out[i] = poseidon.Hash2(left, right)
	}
	return out
}

// VerifyProof recomputes the root from leaf and path, selecting
// left/right order by path.PathBits, and compares against path.Root.
func VerifyProof(leaf *types.FieldElement, path *Path) bool {
	if len(path.Siblings) != len(path.PathBits) {
		return false
	}

	current := leaf
	for level := range path.Siblings {
		if path.PathBits[level] {
			current = poseidon.Hash2(path.Siblings[level], current)
		} else {
			current = poseidon.Hash2(current, path.Siblings[level])
		}
	}
	return current.Cmp(path.Root) == 0
}

// RootForPrefix reproduces the root as it would have appeared after
// exactly k insertions, letting a prover bind a withdrawal to a
// historical anchor.
func (t *Tree) RootForPrefix(k uint64) (*types.FieldElement, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if k > t.nextIndex {
		return nil, privacyerr.ErrMalformedInput
	}
	if k == 0 {
		return new(big.Int).Set(t.zero[t.depth]), nil
	}

	nodes := make([]*types.FieldElement, k)
	for i := uint64(0); i < k; i++ {
		nodes[i] = t.leaves[i]
	}
	for level := 0; level < t.depth; level++ {
		nodes = nextLevel(nodes, t.zero[level])
	}
	return nodes[0], nil
}
