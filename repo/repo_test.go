package repo

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bywise/chain"
	"bywise/kv"
)

func sampleTx(chainID string, from, to chain.Address, created int64, fk string) *chain.Transaction {
	tx := &chain.Transaction{
		Chain:       chainID,
		Version:     1,
		From:        []chain.Address{from},
		To:          []chain.Address{to},
		Amount:      []string{"1"},
		Fee:         "0.01",
		Type:        chain.TxNone,
		Data:        chain.NoneData{},
		ForeignKeys: []string{fk},
		Created:     created,
		Sign:        [][]byte{{1, 2, 3}},
	}
	tx.Hash = tx.ComputeHash()
	return tx
}

func TestPutAndGetTransaction(t *testing.T) {
	r := New(kv.NewMemory())
	tx := sampleTx("main", "BWSfrom", "BWSto", 1700000000, "fk1")
	require.NoError(t, r.PutTransaction(tx))

	got, err := r.GetTransactionByHash("main", tx.Hash.Hex())
	require.NoError(t, err)
	require.Equal(t, tx.Hash, got.Hash)

	last, err := r.LastTransaction("main")
	require.NoError(t, err)
	require.Equal(t, tx.Hash, last.Hash)
}

func TestTransactionIndicesByFromToForeignKey(t *testing.T) {
	r := New(kv.NewMemory())
	tx1 := sampleTx("main", "BWSalice", "BWSbob", 1700000000, "order-1")
	tx2 := sampleTx("main", "BWSalice", "BWScarol", 1700000100, "order-2")
	require.NoError(t, r.PutTransaction(tx1))
	require.NoError(t, r.PutTransaction(tx2))

	fromAlice, err := r.TransactionsByFrom("main", "BWSalice")
	require.NoError(t, err)
	require.Len(t, fromAlice, 2)

	toBob, err := r.TransactionsByTo("main", "BWSbob")
	require.NoError(t, err)
	require.Equal(t, []string{tx1.Hash.Hex()}, toBob)

	byFK, err := r.TransactionsByForeignKey("main", "order-2")
	require.NoError(t, err)
	require.Equal(t, []string{tx2.Hash.Hex()}, byFK)
}

func TestBlockHeightIndexAndLastBlock(t *testing.T) {
	r := New(kv.NewMemory())
	for h := uint64(0); h < 3; h++ {
		b := &chain.Block{Chain: "main", Height: h, LastHash: chain.Hash{byte(h)}}
		b.Hash = b.ComputeHash()
		require.NoError(t, r.PutBlock(b))
	}

	last, err := r.LastBlock("main")
	require.NoError(t, err)
	require.Equal(t, uint64(2), last.Height)

	mid, err := r.GetBlockByHeight("main", 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), mid.Height)

	pack, err := r.BlockPack("main", 0, 10)
	require.NoError(t, err)
	require.Len(t, pack, 3)
}

func TestSlicesForBlockOrdering(t *testing.T) {
	r := New(kv.NewMemory())
	for h := uint64(0); h < 3; h++ {
		s := &chain.Slice{Chain: "main", BlockHeight: 5, Height: h, End: h == 2}
		s.Hash = s.ComputeHash()
		require.NoError(t, r.PutSlice(s))
	}

	slices, err := r.SlicesForBlock("main", 5)
	require.NoError(t, err)
	require.Len(t, slices, 3)
	require.True(t, slices[2].End)
}

func TestEventIndices(t *testing.T) {
	r := New(kv.NewMemory())
	events := []chain.Event{
		{Contract: "BWScontract", Name: "Transfer", Keys: []string{"to"}, Values: []string{"BWSbob"}},
	}
	require.NoError(t, r.PutEvents("main", "txhash1", events))

	byCE, err := r.EventsByContractEvent("main", "BWScontract", "Transfer")
	require.NoError(t, err)
	require.Len(t, byCE, 1)

	byKV, err := r.EventsByKeyValue("main", "BWScontract", "Transfer", "to", "BWSbob")
	require.NoError(t, err)
	require.Len(t, byKV, 1)
}
