// Package kv is the node's ordered key/value layer (C1). It is the single
// point where every other package touches disk: repo's secondary indices
// and envstore's committed overlays read and write through the Store
// interface rather than any concrete engine. The mempool keeps its entries
// in memory and does not use it.
package kv

import "errors"

// ErrNotFound is returned by Get when key is absent.
var ErrNotFound = errors.New("kv: key not found")

// Store is the ordered key/value contract every persistence backend must
// satisfy. Keys sort lexicographically by byte value, matching the
// `<table>-<chain>-<index>-<id>` prefix scheme repo builds on top.
type Store interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)

	// NewBatch starts an atomic group of writes.
	NewBatch() Batch

	// Iterator walks all keys with the given prefix in ascending order.
	Iterator(prefix []byte) Iterator

	Close() error
}

// Batch groups writes for atomic commit, mirroring the teacher's
// transfer-then-commit pattern in Ledger.Transfer but generalized to
// arbitrary key/value pairs instead of balance fields.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Write() error
}

// Iterator walks a key range. Implementations must tolerate Close being
// called before Next returns false.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}
