package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockHashDeterministic(t *testing.T) {
	b := Block{
		Chain: "main", Version: 1, Height: 1,
		Slices:            []Hash{{9}},
		From:              "BWSxxxx",
		Created:           1700000000,
		LastHash:          Hash{1, 2, 3},
		TransactionsCount: 3,
	}
	require.Equal(t, b.ComputeHash(), b.ComputeHash())

	other := b
	other.Height = 2
	require.NotEqual(t, b.ComputeHash(), other.ComputeHash())
}

func TestBlockIsGenesis(t *testing.T) {
	genesis := Block{Height: 0, LastHash: ZeroHash}
	require.True(t, genesis.IsGenesis())

	child := Block{Height: 1, LastHash: Hash{1}}
	require.False(t, child.IsGenesis())
}

func TestBlockValidateRequiresParentHashUnlessGenesis(t *testing.T) {
	b := Block{Height: 1, From: "BWSxxxx", LastHash: ZeroHash}
	require.Error(t, b.Validate())

	b.LastHash = Hash{7}
	require.NoError(t, b.Validate())
}
