// Package mempool implements C10: per-chain buffering of transactions and
// in-progress slices between client submission/gossip ingest and the
// pipeline state machine. It satisfies pipeline.SliceSource/pipeline.TxSource
// so the pipeline can drain it directly.
package mempool

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bywise/chain"
)

// DefaultTTL is how long an un-finalized transaction may sit in the pool
// before it is evicted (spec §4.9: "created + 3600s").
const DefaultTTL = 3600 * time.Second

// numShards bounds the lock contention of AddTx/RemoveTx/TxByHash: each tx
// hash maps to one of numShards buckets, each guarded by its own mutex,
// matching spec §6's "multi-writer (network + API), per-bucket locks keyed
// by hash-prefix" requirement.
const numShards = 256

type txEntry struct {
	tx      *chain.Transaction
	chainID string
}

type txShard struct {
	mu  sync.Mutex
	byH map[chain.Hash]*txEntry
}

// Pool is the mempool for every chain the node serves; entries are
// partitioned by chain ID but share the same shard/lock pool, since a single
// node-wide tx hash namespace matches how gossip delivers them.
type Pool struct {
	shards [numShards]*txShard

	sliceMu               sync.RWMutex
	sliceByHash           map[chain.Hash]*chain.Slice
	pendingSliceByProposer map[chain.Address]map[uint64]*chain.Slice

	log *logrus.Logger
}

func shardIndex(h chain.Hash) int { return int(h[0]) % numShards }

// New creates an empty pool. log may be nil, in which case a default logrus
// logger is used (teacher convention, as in pipeline.New).
func New(log *logrus.Logger) *Pool {
	if log == nil {
		log = logrus.New()
	}
	p := &Pool{
		sliceByHash:            make(map[chain.Hash]*chain.Slice),
		pendingSliceByProposer: make(map[chain.Address]map[uint64]*chain.Slice),
		log:                    log,
	}
	for i := range p.shards {
		p.shards[i] = &txShard{byH: make(map[chain.Hash]*txEntry)}
	}
	return p
}

// AddTx buffers tx for chainID. A transaction already present (same hash) is
// a no-op, matching spec §4.9's "duplicate detection is by hash".
func (p *Pool) AddTx(chainID string, tx *chain.Transaction) {
	s := p.shards[shardIndex(tx.Hash)]
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byH[tx.Hash]; exists {
		return
	}
	s.byH[tx.Hash] = &txEntry{tx: tx, chainID: chainID}
}

// RemoveTx drops a transaction, e.g. once its block reaches IMMUTABLE.
func (p *Pool) RemoveTx(h chain.Hash) {
	s := p.shards[shardIndex(h)]
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byH, h)
}

// TxByHash satisfies pipeline.TxSource.
func (p *Pool) TxByHash(h chain.Hash) (*chain.Transaction, bool) {
	s := p.shards[shardIndex(h)]
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byH[h]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Size returns the number of pending transactions across every chain.
func (p *Pool) Size() int {
	n := 0
	for _, s := range p.shards {
		s.mu.Lock()
		n += len(s.byH)
		s.mu.Unlock()
	}
	return n
}

// Drain returns up to limit pending transactions for chainID, for a
// validator assembling its next slice (spec §4.8: "drain the mempool of
// currently-valid txs, package up to a size limit"). It does not remove
// anything; the caller evicts once those txs are actually included and
// finalized. Iteration order follows shard order and is not otherwise
// meaningful, since map iteration order is random; mint.Engine uses the
// result in the order returned.
func (p *Pool) Drain(chainID string, limit int) []*chain.Transaction {
	var out []*chain.Transaction
	for _, s := range p.shards {
		s.mu.Lock()
		for _, e := range s.byH {
			if e.chainID != chainID {
				continue
			}
			out = append(out, e.tx)
			if len(out) >= limit {
				s.mu.Unlock()
				return out
			}
		}
		s.mu.Unlock()
	}
	return out
}

// EvictExpired drops every tx whose created+DefaultTTL is before now, and
// reports how many were removed.
func (p *Pool) EvictExpired(now int64) int {
	cutoff := now - int64(DefaultTTL/time.Second)
	n := 0
	for _, s := range p.shards {
		s.mu.Lock()
		for h, e := range s.byH {
			if e.tx.Created < cutoff {
				delete(s.byH, h)
				n++
			}
		}
		s.mu.Unlock()
	}
	return n
}

// Run evicts expired transactions on a fixed tick until stop fires, in the
// teacher's ticker/select loop shape (also used by pipeline.Engine.Run).
func (p *Pool) Run(stop <-chan struct{}, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := p.EvictExpired(time.Now().Unix()); n > 0 {
				p.log.WithField("evicted", n).Debug("mempool: ttl sweep")
			}
		}
	}
}
