package blocktree

import (
	"bytes"
	"fmt"
	"math/big"
	"sync"

	"bywise/chain"
)

// supersedes decides which of two slices at the same (proposer, blockHeight,
// height) wins: greater transactionsCount, tie-broken by greater created,
// then by smaller hash (Open Question decision: "newer overwrites older").
func supersedes(candidate, existing *chain.Slice) bool {
	if candidate.TransactionsCount != existing.TransactionsCount {
		return candidate.TransactionsCount > existing.TransactionsCount
	}
	if candidate.Created != existing.Created {
		return candidate.Created > existing.Created
	}
	return bytes.Compare(candidate.Hash[:], existing.Hash[:]) < 0
}

// nodeInfo is the tree's per-block bookkeeping: the block itself, its
// parent hash (redundant with block.LastHash but kept for clarity), status,
// and the distance of its proposer from its parent.
type nodeInfo struct {
	block    *chain.Block
	parent   chain.Hash
	status   chain.BlockStatus
	distance *big.Int
}

// sliceChain is one proposer's ordered slice train for a given block height.
type sliceChain struct {
	byHeight map[uint64]*chain.Slice
}

// Tree is the per-chain block/slice DAG (C5).
type Tree struct {
	mu sync.RWMutex

	chainID string

	nodes   map[chain.Hash]*nodeInfo
	orphans map[chain.Hash][]*chain.Block // keyed by missing parent hash

	// sliceChains[proposer][blockHeight]
	sliceChains map[chain.Address]map[uint64]*sliceChain

	zeroBlockHash   chain.Hash
	currentMinedTip chain.Hash
}

// New creates an empty tree for chainID.
func New(chainID string) *Tree {
	return &Tree{
		chainID:     chainID,
		nodes:       make(map[chain.Hash]*nodeInfo),
		orphans:     make(map[chain.Hash][]*chain.Block),
		sliceChains: make(map[chain.Address]map[uint64]*sliceChain),
	}
}

// AddGenesis seeds the tree with the chain's genesis block.
func (t *Tree) AddGenesis(b *chain.Block) error {
	if !b.IsGenesis() {
		return fmt.Errorf("blocktree: not a genesis block: height=%d lastHash=%s", b.Height, b.LastHash.Hex())
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.zeroBlockHash = b.Hash
	t.currentMinedTip = b.Hash
	t.nodes[b.Hash] = &nodeInfo{block: b, parent: chain.ZeroHash, status: chain.BlockMined, distance: new(big.Int)}
	return nil
}

// AddBlock appends b if its parent is known, or stashes it as an orphan and
// reports that find_block(lastHash) should be requested.
func (t *Tree) AddBlock(b *chain.Block) (needsParentFetch bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[b.Hash]; exists {
		return false, nil
	}

	if b.LastHash.IsZero() {
		t.nodes[b.Hash] = &nodeInfo{block: b, parent: chain.ZeroHash, status: chain.BlockMempool, distance: new(big.Int)}
		return false, nil
	}

	if _, ok := t.nodes[b.LastHash]; !ok {
		t.orphans[b.LastHash] = append(t.orphans[b.LastHash], b)
		return true, nil
	}

	d, err := Distance(b.LastHash, b.From)
	if err != nil {
		return false, err
	}
	t.nodes[b.Hash] = &nodeInfo{block: b, parent: b.LastHash, status: chain.BlockMempool, distance: d}

	// Resolve any orphans waiting on this block.
	pending := t.orphans[b.Hash]
	delete(t.orphans, b.Hash)
	for _, child := range pending {
		cd, derr := Distance(b.Hash, child.From)
		if derr != nil {
			continue
		}
		t.nodes[child.Hash] = &nodeInfo{block: child, parent: b.Hash, status: chain.BlockMempool, distance: cd}
	}
	return false, nil
}

// SetStatus transitions a known block's status. Callers (pipeline) are
// responsible for enforcing the legal transition order.
func (t *Tree) SetStatus(hash chain.Hash, status chain.BlockStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[hash]
	if !ok {
		return fmt.Errorf("blocktree: unknown block %s", hash.Hex())
	}
	n.status = status
	if status == chain.BlockMined {
		t.currentMinedTip = hash
	}
	return nil
}

// Block returns the block stored under hash, if any.
func (t *Tree) Block(hash chain.Hash) (*chain.Block, chain.BlockStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[hash]
	if !ok {
		return nil, "", false
	}
	return n.block, n.status, true
}

// CurrentMinedTip returns the tip of the currently-canonical chain.
func (t *Tree) CurrentMinedTip() chain.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.currentMinedTip
}

// NodeDistance returns the proposer distance recorded for hash when it was
// attached (spec §4.4), for fork-choice comparisons at the pipeline layer.
func (t *Tree) NodeDistance(hash chain.Hash) (*big.Int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[hash]
	if !ok {
		return nil, false
	}
	return n.distance, true
}

// Children returns every known block whose parent is hash.
func (t *Tree) Children(hash chain.Hash) []chain.Hash {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []chain.Hash
	for h, n := range t.nodes {
		if n.parent == hash {
			out = append(out, h)
		}
	}
	return out
}

// AddSlice appends s to (s.From, s.BlockHeight)'s slice train. It rejects
// gaps and plain duplicates, but accepts a higher-transactionsCount slice at
// an already-occupied height as a supersede (spec §4.2/§8 scenario 4).
func (t *Tree) AddSlice(s *chain.Slice) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	byHeight, ok := t.sliceChains[s.From]
	if !ok {
		byHeight = make(map[uint64]*sliceChain)
		t.sliceChains[s.From] = byHeight
	}
	sc, ok := byHeight[s.BlockHeight]
	if !ok {
		sc = &sliceChain{byHeight: make(map[uint64]*chain.Slice)}
		byHeight[s.BlockHeight] = sc
	}

	if existing, ok := sc.byHeight[s.Height]; ok {
		if s.Hash == existing.Hash {
			return nil // plain duplicate
		}
		if !supersedes(s, existing) {
			return fmt.Errorf("blocktree: slice at height %d for %s/%d already present with >= weight",
				s.Height, s.From, s.BlockHeight)
		}
		sc.byHeight[s.Height] = s
		return nil
	}

	if s.Height > 0 {
		if _, ok := sc.byHeight[s.Height-1]; !ok {
			return fmt.Errorf("blocktree: slice at height %d for %s/%d creates a gap", s.Height, s.From, s.BlockHeight)
		}
	}
	sc.byHeight[s.Height] = s
	return nil
}

// GetBestSlice returns the longest prefix of consecutively-numbered,
// present slices for (proposer, blockHeight), stopping at the first gap or
// at an end=true slice.
func (t *Tree) GetBestSlice(proposer chain.Address, blockHeight uint64) []chain.Slice {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byHeight, ok := t.sliceChains[proposer]
	if !ok {
		return nil
	}
	sc, ok := byHeight[blockHeight]
	if !ok {
		return nil
	}

	var out []chain.Slice
	for h := uint64(0); ; h++ {
		s, ok := sc.byHeight[h]
		if !ok {
			break
		}
		out = append(out, *s)
		if s.End {
			break
		}
	}
	return out
}
