package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bywise/bus"
	"bywise/chain"
	"bywise/kv"
	"bywise/mempool"
	"bywise/pipeline"
)

type fakeTree struct {
	blocks map[chain.Hash]*chain.Block
}

func (f *fakeTree) Block(h chain.Hash) (*chain.Block, chain.BlockStatus, bool) {
	b, ok := f.blocks[h]
	if !ok {
		return nil, 0, false
	}
	return b, chain.BlockImmutable, true
}

func TestPersistImmutableBlocksWritesThroughOnEvent(t *testing.T) {
	pool := mempool.New(nil)

	tx := sampleTx("main", "BWSfrom", "BWSto", 1700000000, "fk1")
	pool.AddTx("main", tx)

	slice := &chain.Slice{
		Chain: "main", Version: 1, Height: 0, BlockHeight: 1,
		TransactionsCount: 1, Transactions: []chain.Hash{tx.Hash},
		From: "BWSvalidator", Created: 1700000001, End: true,
	}
	slice.Hash = slice.ComputeHash()
	pool.AddSlice(slice)

	block := &chain.Block{
		Chain: "main", Version: 1, Height: 1, Slices: []chain.Hash{slice.Hash},
		From: "BWSvalidator", Created: 1700000002, LastHash: chain.ZeroHash,
		TransactionsCount: 1,
	}
	block.Hash = block.ComputeHash()

	tree := &fakeTree{blocks: map[chain.Hash]*chain.Block{block.Hash: block}}
	r := New(kv.NewMemory())
	b := bus.New()

	stop, err := PersistImmutableBlocks(b, tree, pool, pool, r)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, bus.Publish(b, pipeline.TopicBlockImmutable, pipeline.BlockImmutable{
		Chain: "main", Height: 1, Hash: block.Hash,
	}))

	require.Eventually(t, func() bool {
		got, err := r.GetBlockByHash("main", block.Hash.Hex())
		return err == nil && got != nil
	}, time.Second, 10*time.Millisecond)

	gotSlice, err := r.GetSliceByHash("main", slice.Hash.Hex())
	require.NoError(t, err)
	require.Equal(t, slice.Hash, gotSlice.Hash)

	gotTx, err := r.GetTransactionByHash("main", tx.Hash.Hex())
	require.NoError(t, err)
	require.Equal(t, tx.Hash, gotTx.Hash)
}
