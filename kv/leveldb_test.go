package kv

import (
	"testing"

	"github.com/stretchr/testify/require"

	"bywise/internal/testutil"
)

func openTestLevelStore(t *testing.T) *LevelStore {
	t.Helper()
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Cleanup() })

	store, err := OpenLevelStore(sb.Path("db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestLevelStorePutGetDelete(t *testing.T) {
	store := openTestLevelStore(t)

	_, err := store.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Put([]byte("k"), []byte("v1")))
	v, err := store.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	has, err := store.Has([]byte("k"))
	require.NoError(t, err)
	require.True(t, has)

	require.NoError(t, store.Delete([]byte("k")))
	_, err = store.Get([]byte("k"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLevelStoreBatchIsAtomic(t *testing.T) {
	store := openTestLevelStore(t)

	b := store.NewBatch()
	b.Put([]byte("blk-main-1"), []byte("a"))
	b.Put([]byte("blk-main-2"), []byte("b"))
	require.NoError(t, b.Write())

	v, err := store.Get([]byte("blk-main-1"))
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v)
}

func TestLevelStoreIteratorWalksPrefixInOrder(t *testing.T) {
	store := openTestLevelStore(t)

	require.NoError(t, store.Put([]byte("tx-main-0003"), []byte("c")))
	require.NoError(t, store.Put([]byte("tx-main-0001"), []byte("a")))
	require.NoError(t, store.Put([]byte("tx-main-0002"), []byte("b")))
	require.NoError(t, store.Put([]byte("blk-main-0001"), []byte("ignored")))

	it := store.Iterator([]byte("tx-main-"))
	defer it.Close()

	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"tx-main-0001", "tx-main-0002", "tx-main-0003"}, keys)
}

func TestLevelStorePersistsAcrossReopen(t *testing.T) {
	sb, err := testutil.NewSandbox()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Cleanup() })

	dir := sb.Path("db")
	store, err := OpenLevelStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put([]byte("durable"), []byte("yes")))
	require.NoError(t, store.Close())

	reopened, err := OpenLevelStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	v, err := reopened.Get([]byte("durable"))
	require.NoError(t, err)
	require.Equal(t, []byte("yes"), v)
}
