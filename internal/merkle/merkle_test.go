package merkle

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stealthsol/privacycore/internal/poseidon"
)

func TestInsertAndVerifyProof(t *testing.T) {
	ctx := context.Background()
	tree, err := New(ctx, NewMemStore(), 8)
	require.NoError(t, err)

	leaves := make([]*big.Int, 10)
	for i := 0; i < 10; i++ {
		leaves[i] = poseidon.Hash2(big.NewInt(int64(i)), big.NewInt(0))
		idx, err := tree.Insert(ctx, leaves[i])
		require.NoError(t, err)
		require.Equal(t, uint64(i), idx)
	}

	path, err := tree.Proof(5)
	require.NoError(t, err)
	require.True(t, VerifyProof(leaves[5], path))
	require.Equal(t, 0, path.Root.Cmp(tree.Root()))

	require.False(t, VerifyProof(big.NewInt(999), path))
}

func TestTreeFull(t *testing.T) {
	ctx := context.Background()
	tree, err := New(ctx, NewMemStore(), 1) // capacity 2
	require.NoError(t, err)

	_, err = tree.Insert(ctx, big.NewInt(1))
	require.NoError(t, err)
	_, err = tree.Insert(ctx, big.NewInt(2))
	require.NoError(t, err)

	_, err = tree.Insert(ctx, big.NewInt(3))
	require.Error(t, err)
}

func TestRootForPrefixMatchesHistoricalRoot(t *testing.T) {
	ctx := context.Background()
	tree, err := New(ctx, NewMemStore(), 8)
	require.NoError(t, err)

	var rootAtThree *big.Int
	for i := 0; i < 5; i++ {
		leaf := poseidon.Hash2(big.NewInt(int64(i)), big.NewInt(1))
		_, err := tree.Insert(ctx, leaf)
		require.NoError(t, err)
		if i == 2 {
			rootAtThree = tree.Root()
		}
	}

	got, err := tree.RootForPrefix(3)
	require.NoError(t, err)
	require.Equal(t, 0, got.Cmp(rootAtThree))
}

func TestEmptyTreeRootIsZeroHashChain(t *testing.T) {
	ctx := context.Background()
	tree, err := New(ctx, NewMemStore(), 4)
	require.NoError(t, err)

	expected := big.NewInt(0)
	for i := 0; i < 4; i++ {
		expected = poseidon.Hash2(expected, expected)
	}
	require.Equal(t, 0, expected.Cmp(tree.Root()))
}
