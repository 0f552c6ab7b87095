// Package pipeline implements C9: the per-chain state machine that drains
// completed blocks through MEMPOOL → COMPLETE → EXECUTED → MINED →
// IMMUTABLE, and the reorg procedure that re-points the canonical chain
// when a sibling wins fork choice.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bywise/blocktree"
	"bywise/bus"
	"bywise/chain"
	"bywise/envstore"
	"bywise/errkind"
	"bywise/txexec"
)

// TopicBlockImmutable is the bus topic published whenever a block crosses
// MINED → IMMUTABLE (C13). Subscribers (e.g. repo's persistence hook) use
// it to learn which blocks are safe to write to durable storage without
// pipeline importing repo directly.
const TopicBlockImmutable = "pipeline.block_immutable"

// BlockImmutable is the payload for TopicBlockImmutable.
type BlockImmutable struct {
	Chain  string
	Height uint64
	Hash   chain.Hash
}

// DefaultReorgWindow is K from spec §9: a block is IMMUTABLE once the
// canonical tip is this many heights ahead of it.
const DefaultReorgWindow = 12

// SliceSource resolves a slice by hash from the local slice store (mempool
// plus persisted repo), used to decide MEMPOOL → COMPLETE readiness.
type SliceSource interface {
	SliceByHash(h chain.Hash) (*chain.Slice, bool)
}

// TxSource resolves a transaction by hash the same way.
type TxSource interface {
	TxByHash(h chain.Hash) (*chain.Transaction, bool)
}

// Engine drives one chain's blocks through their lifecycle.
type Engine struct {
	mu sync.Mutex

	chainID     string
	tree        *blocktree.Tree
	env         *envstore.Store
	txx         *txexec.Engine
	slices      SliceSource
	txs         TxSource
	reorgWindow uint64
	log         *logrus.Logger
	events      *bus.Bus

	// heightCommit maps a canonical block height to the environment commit
	// hash its execution produced, backing feeconfig.HeightResolver.
	heightCommit map[uint64]chain.Hash

	// blockCommit maps every EXECUTED block (canonical or not yet decided)
	// to the environment commit its own execution produced.
	blockCommit map[chain.Hash]chain.Hash
}

// New wires an Engine. log may be nil, in which case a default logrus
// logger is used (grounded on the teacher's consensus.go logger field).
func New(chainID string, tree *blocktree.Tree, env *envstore.Store, txx *txexec.Engine, slices SliceSource, txs TxSource, reorgWindow uint64, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	if reorgWindow == 0 {
		reorgWindow = DefaultReorgWindow
	}
	return &Engine{
		chainID: chainID, tree: tree, env: env, txx: txx,
		slices: slices, txs: txs, reorgWindow: reorgWindow, log: log,
		heightCommit: make(map[uint64]chain.Hash),
		blockCommit:  make(map[chain.Hash]chain.Hash),
	}
}

// SetEventBus wires an optional C13 bus for lifecycle notifications. Nil
// (the default) disables publishing; tests and single-process callers that
// don't need decoupled subscribers can skip it entirely.
func (e *Engine) SetEventBus(b *bus.Bus) {
	e.events = b
}

// SetTxExec replaces the engine's execution engine. feeconfig.Engine needs
// a HeightResolver that is itself the pipeline engine (to read config:* at
// an arbitrary already-committed height), so a fresh chain's wiring is
// necessarily two-phase: construct the pipeline with a placeholder txexec,
// then rebuild txexec's feeconfig.Engine around the now-existing pipeline
// and swap it in here.
func (e *Engine) SetTxExec(txx *txexec.Engine) {
	e.txx = txx
}

// Bootstrap executes a chain's genesis transactions (already sequenced by
// chain.BuildGenesisBlock) against the zero commit and records the result
// as height 0's canonical commit. It must be called once before Drain/Run
// for a freshly created chain; AddGenesis on the tree is the caller's
// responsibility (blocktree has no knowledge of tx execution).
func (e *Engine) Bootstrap(genesisHash chain.Hash, genesisTxs []chain.Transaction) error {
	base := chain.ZeroHash
	for i := range genesisTxs {
		tx := &genesisTxs[i]
		outcome, err := e.txx.Execute(e.chainID, base, tx, txexec.ExecOptions{BlockHeight: 0})
		if err != nil {
			return fmt.Errorf("pipeline: bootstrap tx %s: %w", tx.IDHex(), err)
		}
		if outcome.Output.Error != "" {
			return fmt.Errorf("pipeline: bootstrap tx %s reverted: %s", tx.IDHex(), outcome.Output.Error)
		}
		committed, cerr := e.env.Commit(outcome.Commit, tx.Hash.Hex())
		if cerr != nil {
			return cerr
		}
		base = committed
	}

	e.mu.Lock()
	e.blockCommit[genesisHash] = base
	e.heightCommit[0] = base
	e.mu.Unlock()
	return nil
}

// CommitAt satisfies feeconfig.HeightResolver.
func (e *Engine) CommitAt(chainID string, height uint64) (chain.Hash, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.heightCommit[height]
	return h, ok
}

// Run drives AdvanceBlock over the tip of every known chain on a fixed
// tick, in the teacher's ticker/select/ctx.Done loop shape
// (core/consensus.go's blockLoop).
func (e *Engine) Run(stop <-chan struct{}, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.Drain()
		}
	}
}

// Drain advances every block reachable from the tree's mined tip's children
// as far as it currently can, logging but not failing on a block that is
// still waiting on data.
func (e *Engine) Drain() {
	tip := e.tree.CurrentMinedTip()
	queue := []chain.Hash{tip}
	seen := map[chain.Hash]bool{}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if seen[h] {
			continue
		}
		seen[h] = true
		if err := e.AdvanceBlock(h); err != nil {
			if errkind.Is(err, errkind.Fatal) {
				// spec §7: corrupt commit chain / KV I/O error is process-fatal;
				// the operator restarts and the node resyncs from peers.
				e.log.WithField("block", h.Hex()).Fatal("advance: ", err)
			}
			e.log.WithField("block", h.Hex()).Debug("advance: ", err)
		}
		queue = append(queue, e.tree.Children(h)...)
	}
}

// AdvanceBlock runs hash through exactly one lifecycle transition, if it is
// ready. It is idempotent and restart-safe: calling it on a block already
// past the reachable transition is a no-op.
func (e *Engine) AdvanceBlock(hash chain.Hash) error {
	block, status, ok := e.tree.Block(hash)
	if !ok {
		return fmt.Errorf("pipeline: unknown block %s", hash.Hex())
	}

	switch status {
	case chain.BlockMempool:
		return e.tryComplete(block)
	case chain.BlockComplete:
		return e.tryExecute(block)
	case chain.BlockExecuted:
		return e.tryMine(block)
	case chain.BlockMined:
		return e.tryFinalize(block)
	default:
		return nil // IMMUTABLE, INVALID: terminal
	}
}

// tryComplete transitions MEMPOOL → COMPLETE once every slice the block
// references, and every tx those slices reference, is locally known.
func (e *Engine) tryComplete(block *chain.Block) error {
	for _, sh := range block.Slices {
		s, ok := e.slices.SliceByHash(sh)
		if !ok {
			return fmt.Errorf("pipeline: slice %s not yet materialized", sh.Hex())
		}
		for _, th := range s.Transactions {
			if _, ok := e.txs.TxByHash(th); !ok {
				return fmt.Errorf("pipeline: tx %s not yet materialized", th.Hex())
			}
		}
	}
	return e.tree.SetStatus(block.Hash, chain.BlockComplete)
}
