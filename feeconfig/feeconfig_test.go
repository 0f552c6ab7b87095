package feeconfig

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bywise/chain"
	"bywise/envstore"
	"bywise/kv"
)

// fakeResolver maps height -> commit hash directly, standing in for
// pipeline's block-height-to-commit index.
type fakeResolver struct {
	commits map[uint64]chain.Hash
}

func (f *fakeResolver) CommitAt(chainID string, height uint64) (chain.Hash, bool) {
	h, ok := f.commits[height]
	return h, ok
}

func TestComputeFeeZeroInFirstBlock(t *testing.T) {
	store := envstore.New(kv.NewMemory(), nil)
	eng := New(store, &fakeResolver{commits: map[uint64]chain.Hash{}})

	tx := &chain.Transaction{Amount: []string{"10"}, Data: chain.NoneData{}}
	fee, err := eng.ComputeFee("main", 0, tx, decimal.Zero)
	require.NoError(t, err)
	require.True(t, fee.IsZero())
}

func TestConfigChangeDelayedByActivationWindow(t *testing.T) {
	store := envstore.New(kv.NewMemory(), nil)
	resolver := &fakeResolver{commits: map[uint64]chain.Hash{}}
	eng := New(store, resolver)

	// Height 0: feeBasic unset (defaults to zero).
	resolver.commits[0] = chain.ZeroHash

	// Commit feeBasic=0.1 as of block height 5.
	ctx := envstore.NewContext("main", chain.ZeroHash)
	store.Set(ctx, "config:feeBasic", []byte("0.1"))
	commitAt5, err := store.Commit(ctx, "block-5")
	require.NoError(t, err)
	resolver.commits[5] = commitAt5

	tx := &chain.Transaction{Amount: []string{}, Data: chain.NoneData{}}

	// At height 10 (5+10=15 < 5+100), the ancestor used is height 10-100=0
	// (floored), so the old value (unset, zero) still applies.
	fee, err := eng.ComputeFee("main", 10, tx, decimal.Zero)
	require.NoError(t, err)
	require.True(t, fee.IsZero())

	// Past the activation delay: ancestor height = 106-100 = 6, which maps
	// to the same commit as height 5 in this fake (no block at 6 registered,
	// so CommitAt(6) is not found and the engine falls back to zero hash
	// unless we wire it). Register height 6 pointing at commitAt5 to model
	// "no further change since height 5".
	resolver.commits[6] = commitAt5
	fee, err = eng.ComputeFee("main", 106, tx, decimal.Zero)
	require.NoError(t, err)
	require.True(t, fee.Equal(decimal.RequireFromString("0.1")))
}

func TestComputeFeeSumsCoefficients(t *testing.T) {
	store := envstore.New(kv.NewMemory(), nil)
	resolver := &fakeResolver{commits: map[uint64]chain.Hash{}}
	eng := New(store, resolver)

	ctx := envstore.NewContext("main", chain.ZeroHash)
	store.Set(ctx, "config:feeBasic", []byte("1"))
	store.Set(ctx, "config:feeCoefAmount", []byte("0.01"))
	store.Set(ctx, "config:feeCoefSize", []byte("0.001"))
	store.Set(ctx, "config:feeCoefCost", []byte("2"))
	commit, err := store.Commit(ctx, "block-0")
	require.NoError(t, err)
	resolver.commits[0] = commit

	tx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"a"}, To: []chain.Address{"b"}, Amount: []string{"100"},
		Fee: "0", Type: chain.TxNone, Data: chain.NoneData{},
	}

	fee, err := eng.ComputeFee("main", 200, tx, decimal.NewFromInt(3))
	require.NoError(t, err)
	require.True(t, fee.GreaterThan(decimal.NewFromInt(1)))
}
