package mempool

import "bywise/chain"

// AddSlice buffers s under its proposer/blockHeight slot, keyed by the
// second pendingSliceByProposer index from spec §4.9, plus a flat
// sliceByHash index for pipeline.SliceSource lookups. A slice already
// present at that slot is replaced only if s carries a strictly higher
// transaction count. Unlike blocktree.supersedes, a tie on count keeps the
// existing slice: created and hash are not compared (the pool's copy is a
// staging area pending attachment to a block, not the canonical record).
func (p *Pool) AddSlice(s *chain.Slice) {
	p.sliceMu.Lock()
	defer p.sliceMu.Unlock()

	byHeight, ok := p.pendingSliceByProposer[s.From]
	if !ok {
		byHeight = make(map[uint64]*chain.Slice)
		p.pendingSliceByProposer[s.From] = byHeight
	}
	if existing, ok := byHeight[s.BlockHeight]; ok {
		if existing.Hash == s.Hash {
			return
		}
		if existing.TransactionsCount >= s.TransactionsCount {
			return
		}
		delete(p.sliceByHash, existing.Hash)
	}
	byHeight[s.BlockHeight] = s
	p.sliceByHash[s.Hash] = s
}

// SliceByHash satisfies pipeline.SliceSource.
func (p *Pool) SliceByHash(h chain.Hash) (*chain.Slice, bool) {
	p.sliceMu.RLock()
	defer p.sliceMu.RUnlock()
	s, ok := p.sliceByHash[h]
	return s, ok
}

// RemoveSlice drops a slice once its block has been committed to the tree,
// e.g. when pipeline.Engine.tryComplete has consumed it.
func (p *Pool) RemoveSlice(s *chain.Slice) {
	p.sliceMu.Lock()
	defer p.sliceMu.Unlock()
	delete(p.sliceByHash, s.Hash)
	if byHeight, ok := p.pendingSliceByProposer[s.From]; ok {
		if cur, ok := byHeight[s.BlockHeight]; ok && cur.Hash == s.Hash {
			delete(byHeight, s.BlockHeight)
		}
	}
}

// PendingSlice returns the slice currently staged for proposer at
// blockHeight, if any.
func (p *Pool) PendingSlice(proposer chain.Address, blockHeight uint64) (*chain.Slice, bool) {
	p.sliceMu.RLock()
	defer p.sliceMu.RUnlock()
	byHeight, ok := p.pendingSliceByProposer[proposer]
	if !ok {
		return nil, false
	}
	s, ok := byHeight[blockHeight]
	return s, ok
}
