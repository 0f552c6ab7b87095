package envstore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bywise/chain"
	"bywise/kv"
)

func TestGetSetWithinUncommittedContext(t *testing.T) {
	s := New(kv.NewMemory(), nil)
	ctx := NewContext("main", chain.ZeroHash)

	_, found, err := s.Get(ctx, "wallet:BWSalice:balance")
	require.NoError(t, err)
	require.False(t, found)

	s.Set(ctx, "wallet:BWSalice:balance", []byte("100"))
	v, found, err := s.Get(ctx, "wallet:BWSalice:balance")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("100"), v)
}

func TestCommitIsContentAddressedAndDeterministic(t *testing.T) {
	ctx1 := NewContext("main", chain.ZeroHash)
	ctx1.local["k"] = entry{value: []byte("v")}
	h1 := hashCommit(ctx1.Base, ctx1.local, "slice-1")

	ctx2 := NewContext("main", chain.ZeroHash)
	ctx2.local["k"] = entry{value: []byte("v")}
	h2 := hashCommit(ctx2.Base, ctx2.local, "slice-1")

	require.Equal(t, h1, h2)

	h3 := hashCommit(ctx2.Base, ctx2.local, "slice-2")
	require.NotEqual(t, h1, h3)
}

func TestCommitChainRead(t *testing.T) {
	s := New(kv.NewMemory(), nil)
	ctx := NewContext("main", chain.ZeroHash)
	s.Set(ctx, "k", []byte("v1"))
	h1, err := s.Commit(ctx, "slice-0")
	require.NoError(t, err)
	require.Equal(t, h1, ctx.Base)

	s.Set(ctx, "k2", []byte("v2"))
	h2, err := s.Commit(ctx, "slice-1")
	require.NoError(t, err)

	readCtx := NewContext("main", h2)
	v, found, err := s.Get(readCtx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v1"), v)

	v2, found, err := s.Get(readCtx, "k2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v2"), v2)
}

func TestDeleteProducesTombstoneNotAbsent(t *testing.T) {
	s := New(kv.NewMemory(), nil)
	ctx := NewContext("main", chain.ZeroHash)
	s.Set(ctx, "k", []byte("v"))
	h1, err := s.Commit(ctx, "slice-0")
	require.NoError(t, err)

	ctx2 := NewContext("main", h1)
	s.Delete(ctx2, "k")
	h2, err := s.Commit(ctx2, "slice-1")
	require.NoError(t, err)

	readCtx := NewContext("main", h2)
	_, found, err := s.Get(readCtx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestConsolidateIsIdempotentAndPersists(t *testing.T) {
	store := kv.NewMemory()
	s := New(store, nil)
	ctx := NewContext("main", chain.ZeroHash)
	s.Set(ctx, "wallet:BWSalice:balance", []byte("100"))
	h1, err := s.Commit(ctx, "block-0")
	require.NoError(t, err)

	require.NoError(t, s.Consolidate("main", h1))
	require.NoError(t, s.Consolidate("main", h1)) // idempotent: commit chain already gone

	v, err := store.Get(persistKey("main", "wallet:BWSalice:balance"))
	require.NoError(t, err)
	require.Equal(t, []byte("100"), v)

	readCtx := NewContext("main", chain.ZeroHash)
	v2, found, err := s.Get(readCtx, "wallet:BWSalice:balance")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("100"), v2)
}

func TestGetCorruptCommitChain(t *testing.T) {
	s := New(kv.NewMemory(), nil)
	bogus := chain.Hash{1, 2, 3}
	readCtx := NewContext("main", bogus)
	_, _, err := s.Get(readCtx, "k")
	require.ErrorIs(t, err, ErrCorruptCommitChain)
}
