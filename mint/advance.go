package mint

import (
	"fmt"
	"time"

	"bywise/chain"
	"bywise/netp2p"
)

// tryAdvance emits a new slice if one is due, then decides whether the open
// block is ready to close.
func (e *Engine) tryAdvance(now time.Time) error {
	b := e.open

	if b.lastSliceAt.IsZero() || now.Sub(b.lastSliceAt) >= sliceInterval {
		if err := e.emitSlice(now, false); err != nil {
			return err
		}
	}

	closeNow, err := e.readyToClose(now)
	if err != nil {
		return err
	}
	if closeNow {
		return e.closeBlock(now)
	}
	return nil
}

// readyToClose is true once either: no other known validator has a
// competing slice train at this height for blockTime/2, or this block's
// slice train has reached the fullness limit (spec §4.8 step 5).
func (e *Engine) readyToClose(now time.Time) (bool, error) {
	b := e.open
	if b.txCount >= e.sliceTxLimit(b.height) {
		return true, nil
	}

	validators := e.validators.Validators(e.chainID)
	competing := false
	for _, v := range validators {
		if v == e.self {
			continue
		}
		if len(e.tree.GetBestSlice(v, b.height)) > 0 {
			competing = true
			break
		}
	}

	if competing {
		b.soleSince = time.Time{}
		return false, nil
	}
	if b.soleSince.IsZero() {
		b.soleSince = now
		return false, nil
	}
	return now.Sub(b.soleSince) >= e.blockTime()/2, nil
}

// emitSlice drains not-yet-included txs, as many as the block's tx limit
// still allows, signs the slice, and registers/broadcasts it. end marks the closing
// slice of the block's train.
func (e *Engine) emitSlice(now time.Time, end bool) error {
	b := e.open
	limit := e.sliceTxLimit(b.height) - b.txCount
	var txs []*chain.Transaction
	if limit > 0 {
		for _, tx := range e.pool.Drain(e.chainID, limit+len(b.included)) {
			if _, seen := b.included[tx.Hash]; seen {
				continue
			}
			txs = append(txs, tx)
			if len(txs) >= limit {
				break
			}
		}
	}

	hashes := make([]chain.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash
		b.included[tx.Hash] = struct{}{}
	}

	s := &chain.Slice{
		Chain:             e.chainID,
		Version:           1,
		Height:            b.sliceHeight,
		BlockHeight:       b.height,
		TransactionsCount: len(hashes),
		Transactions:      hashes,
		From:              e.self,
		Created:           now.Unix(),
		End:               end,
	}
	s.Hash = s.ComputeHash()

	sig, err := e.signer.Sign(e.self, s.Hash[:])
	if err != nil {
		return fmt.Errorf("mint: sign slice: %w", err)
	}
	s.Sign = sig

	if err := e.tree.AddSlice(s); err != nil {
		return fmt.Errorf("mint: register slice: %w", err)
	}
	e.pool.AddSlice(s)
	if e.gossip != nil {
		e.gossip.Broadcast(netp2p.TopicNewSlice, s.Hash.Hex(), s)
	}

	b.slices = append(b.slices, s.Hash)
	b.txCount += len(hashes)
	b.sliceHeight++
	b.lastSliceAt = now
	return nil
}

// closeBlock emits the closing (end=true) slice, assembles the block over
// the full accumulated slice train, signs, registers and broadcasts it, then
// clears the open state so the next tick can open a new one.
func (e *Engine) closeBlock(now time.Time) error {
	b := e.open
	if err := e.emitSlice(now, true); err != nil {
		return err
	}

	block := &chain.Block{
		Chain:             e.chainID,
		Version:           1,
		Height:            b.height,
		Slices:            b.slices,
		From:              e.self,
		Created:           now.Unix(),
		LastHash:          b.lastHash,
		TransactionsCount: b.txCount,
	}
	block.Hash = block.ComputeHash()

	sig, err := e.signer.Sign(e.self, block.Hash[:])
	if err != nil {
		return fmt.Errorf("mint: sign block: %w", err)
	}
	block.Sign = sig

	if _, err := e.tree.AddBlock(block); err != nil {
		return fmt.Errorf("mint: register block: %w", err)
	}
	if e.gossip != nil {
		e.gossip.Broadcast(netp2p.TopicNewBlock, block.Hash.Hex(), block)
	}

	e.open = nil
	return nil
}
