package kv

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"bywise/pkg/utils"
)

// LevelStore is the on-disk Store backend, wrapping goleveldb.
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens (creating if absent) a goleveldb database at dir.
func OpenLevelStore(dir string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, utils.Wrap(err, fmt.Sprintf("kv: open leveldb at %s", dir))
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Get(key []byte) ([]byte, error) {
	v, err := s.db.Get(key, nil)
	if err == errors.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *LevelStore) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *LevelStore) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

func (s *LevelStore) Has(key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

func (s *LevelStore) NewBatch() Batch {
	return &levelBatch{db: s.db, batch: new(leveldb.Batch)}
}

func (s *LevelStore) Iterator(prefix []byte) Iterator {
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	return &levelIterator{it: it, started: false}
}

func (s *LevelStore) Close() error { return s.db.Close() }

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)      { b.batch.Delete(key) }
func (b *levelBatch) Write() error           { return b.db.Write(b.batch, nil) }

type levelIterator struct {
	it      iterator
	started bool
}

// iterator narrows goleveldb's Iterator to what Store.Iterator needs.
type iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Release()
}

func (i *levelIterator) Next() bool {
	i.started = true
	return i.it.Next()
}

func (i *levelIterator) Key() []byte {
	k := i.it.Key()
	out := make([]byte, len(k))
	copy(out, k)
	return out
}

func (i *levelIterator) Value() []byte {
	v := i.it.Value()
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

func (i *levelIterator) Error() error { return i.it.Error() }

func (i *levelIterator) Close() error {
	i.it.Release()
	return nil
}
