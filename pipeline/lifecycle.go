package pipeline

import (
	"fmt"

	"bywise/bus"
	"bywise/chain"
	"bywise/txexec"
)

// tryExecute transitions COMPLETE → EXECUTED: runs every tx referenced by
// the block's slices, in ascending slice height order, through txexec. A tx
// that fails *structural* validation marks the whole block INVALID (spec
// §4.5/§8's "no tx with an invalid sign[i] is ever included in an EXECUTED
// block" — signatures are already gated at mempool intake, so a structural
// failure here means corrupted local data, not a bad signature slipping
// through). A tx that executes but reverts (insufficient funds, a failed
// contract call) is a normal outcome: its fee is still charged and the
// block proceeds.
//
// Every tx's Output is attached here (it was previously computed and
// discarded), and a CONTRACT_EXE tx's host-call log is immediately
// replay-verified against the state it was computed from (spec §4.6): a
// mismatch is treated exactly like a hard execution error and marks the
// block INVALID rather than lands in an EXECUTED block.
func (e *Engine) tryExecute(block *chain.Block) error {
	base := e.parentCommit(block)

	for _, sh := range block.Slices {
		s, ok := e.slices.SliceByHash(sh)
		if !ok {
			return fmt.Errorf("pipeline: slice %s missing at execute time", sh.Hex())
		}
		for _, th := range s.Transactions {
			tx, ok := e.txs.TxByHash(th)
			if !ok {
				return fmt.Errorf("pipeline: tx %s missing at execute time", th.Hex())
			}
			outcome, err := e.txx.Execute(e.chainID, base, tx, txexec.ExecOptions{
				BlockHeight:   block.Height,
				SliceProposer: s.From,
			})
			if err != nil {
				e.log.WithField("block", block.Hash.Hex()).WithError(err).Warn("tx invalid, marking block INVALID")
				return e.tree.SetStatus(block.Hash, chain.BlockInvalid)
			}
			tx.Output = &outcome.Output
			if verr := e.txx.VerifyReplay(e.chainID, base, tx, s.From, block.Height); verr != nil {
				e.log.WithField("block", block.Hash.Hex()).WithError(verr).Warn("replay mismatch, marking block INVALID")
				return e.tree.SetStatus(block.Hash, chain.BlockInvalid)
			}
			committed, cerr := e.env.Commit(outcome.Commit, tx.Hash.Hex())
			if cerr != nil {
				return cerr
			}
			base = committed
		}
	}

	e.mu.Lock()
	e.blockCommit[block.Hash] = base
	e.mu.Unlock()
	return e.tree.SetStatus(block.Hash, chain.BlockExecuted)
}

// parentCommit resolves the environment commit a block should build on: its
// parent's recorded commit, or the zero hash for genesis.
func (e *Engine) parentCommit(block *chain.Block) chain.Hash {
	if block.LastHash.IsZero() {
		return chain.ZeroHash
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.blockCommit[block.LastHash]
}

// tryMine transitions EXECUTED → MINED once block wins fork choice among
// every EXECUTED sibling proposed on top of the same parent (spec §4.4).
func (e *Engine) tryMine(block *chain.Block) error {
	siblings := e.tree.Children(block.LastHash)
	var winner *chain.Block
	var winnerStatus chain.BlockStatus
	for _, sh := range siblings {
		b, status, ok := e.tree.Block(sh)
		if !ok || (status != chain.BlockExecuted && status != chain.BlockMined) {
			continue
		}
		if winner == nil || e.beats(b, winner) {
			winner = b
			winnerStatus = status
		}
	}
	if winner == nil || winner.Hash != block.Hash {
		return nil // not the winner yet; wait for more siblings or stay put
	}
	if winnerStatus == chain.BlockMined {
		return nil // already mined
	}

	e.mu.Lock()
	commit := e.blockCommit[block.Hash]
	e.heightCommit[block.Height] = commit
	e.mu.Unlock()

	return e.tree.SetStatus(block.Hash, chain.BlockMined)
}

// beats reports whether candidate has strictly smaller proposer distance
// than incumbent, tie-broken by lexicographically smaller hash.
func (e *Engine) beats(candidate, incumbent *chain.Block) bool {
	cd, ok1 := e.tree.NodeDistance(candidate.Hash)
	id, ok2 := e.tree.NodeDistance(incumbent.Hash)
	if !ok1 || !ok2 {
		return false
	}
	cmp := cd.Cmp(id)
	if cmp != 0 {
		return cmp < 0
	}
	return candidate.Hash.Hex() < incumbent.Hash.Hex()
}

// tryFinalize transitions MINED → IMMUTABLE once the canonical tip has
// advanced reorgWindow blocks past it, consolidating its environment
// overlay into durable storage.
func (e *Engine) tryFinalize(block *chain.Block) error {
	tip := e.tree.CurrentMinedTip()
	tipBlock, _, ok := e.tree.Block(tip)
	if !ok || tipBlock.Height < block.Height+e.reorgWindow {
		return nil
	}

	e.mu.Lock()
	commit := e.blockCommit[block.Hash]
	e.mu.Unlock()

	if err := e.env.Consolidate(e.chainID, commit); err != nil {
		return err
	}
	if err := e.tree.SetStatus(block.Hash, chain.BlockImmutable); err != nil {
		return err
	}
	if e.events != nil {
		bus.Publish(e.events, TopicBlockImmutable, BlockImmutable{
			Chain: e.chainID, Height: block.Height, Hash: block.Hash,
		})
	}
	return nil
}
