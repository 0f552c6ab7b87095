package kv

import (
	"bytes"
	"sort"
	"sync"
)

// Memory is an in-process Store, grounded on the teacher's memState/memIter
// pair (core/ledger.go): a guarded map plus a prefix scan that materializes
// matching keys up front. Used by tests; the node itself always opens a
// LevelStore.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	cpy := make([]byte, len(v))
	copy(cpy, v)
	return cpy, nil
}

func (m *Memory) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cpy := make([]byte, len(value))
	copy(cpy, value)
	m.data[string(key)] = cpy
	return nil
}

func (m *Memory) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *Memory) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key)]
	return ok, nil
}

func (m *Memory) NewBatch() Batch {
	return &memBatch{m: m}
}

func (m *Memory) Iterator(prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys [][]byte
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, []byte(k))
		}
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m.data[string(k)]
	}
	return &memIterator{keys: keys, values: values, idx: -1}
}

func (m *Memory) Close() error { return nil }

type memBatch struct {
	m   *Memory
	ops []func(*Memory)
}

func (b *memBatch) Put(key, value []byte) {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)
	b.ops = append(b.ops, func(m *Memory) { m.data[string(k)] = v })
}

func (b *memBatch) Delete(key []byte) {
	k := append([]byte(nil), key...)
	b.ops = append(b.ops, func(m *Memory) { delete(m.data, string(k)) })
}

func (b *memBatch) Write() error {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	for _, op := range b.ops {
		op(b.m)
	}
	return nil
}

type memIterator struct {
	keys   [][]byte
	values [][]byte
	idx    int
}

func (it *memIterator) Next() bool { it.idx++; return it.idx < len(it.keys) }

func (it *memIterator) Key() []byte {
	if it.idx < 0 || it.idx >= len(it.keys) {
		return nil
	}
	return it.keys[it.idx]
}

func (it *memIterator) Value() []byte {
	if it.idx < 0 || it.idx >= len(it.values) {
		return nil
	}
	return it.values[it.idx]
}

func (it *memIterator) Error() error { return nil }
func (it *memIterator) Close() error { return nil }
