package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"bywise/chain"
)

// reorgBackoffMin/Max bound the retry delay for a reorg fetch attempt
// blocked on missing data (spec §6 timeouts: "pipeline reorg retry
// back-off 60 ms→1 s"). reorgFetchTTL caps how long a single step retries
// before giving up (spec §9's "TTL 60 s then dropped").
const (
	reorgBackoffMin = 60 * time.Millisecond
	reorgBackoffMax = 1 * time.Second
	reorgFetchTTL   = 60 * time.Second
)

// FindCommonAncestor walks both chains back by LastHash until they meet,
// returning the ancestor hash.
func (e *Engine) FindCommonAncestor(a, b chain.Hash) (ancestor chain.Hash, err error) {
	pathA, err := e.ancestry(a)
	if err != nil {
		return chain.Hash{}, err
	}
	inA := make(map[chain.Hash]bool, len(pathA))
	for _, h := range pathA {
		inA[h] = true
	}

	cur := b
	for {
		if inA[cur] {
			return cur, nil
		}
		blk, _, ok := e.tree.Block(cur)
		if !ok {
			return chain.Hash{}, fmt.Errorf("pipeline: ancestry of %s is incomplete", b.Hex())
		}
		if blk.LastHash.IsZero() {
			return chain.Hash{}, fmt.Errorf("pipeline: no common ancestor between %s and %s", a.Hex(), b.Hex())
		}
		cur = blk.LastHash
	}
}

func (e *Engine) ancestry(tip chain.Hash) ([]chain.Hash, error) {
	var out []chain.Hash
	cur := tip
	for {
		out = append(out, cur)
		blk, _, ok := e.tree.Block(cur)
		if !ok {
			return nil, fmt.Errorf("pipeline: ancestry of %s is incomplete", tip.Hex())
		}
		if blk.LastHash.IsZero() {
			return out, nil
		}
		cur = blk.LastHash
	}
}

// Reorg re-points the canonical chain from oldTip to newTip: it finds their
// lowest common ancestor, rolls environment state back to the ancestor's
// commit by simply resuming execution from there (losing-branch overlays
// are left for DropUnreachable to reclaim once a GC pass runs), and
// re-executes newTip's branch from the ancestor up. Each fetch-dependent
// step is tagged with a uuid so a node operator can correlate retry
// attempts in logs (grounded on the teacher's storage.go use of
// google/uuid for request correlation).
func (e *Engine) Reorg(oldTip, newTip chain.Hash) error {
	reorgID := uuid.New().String()
	ancestor, err := e.FindCommonAncestor(oldTip, newTip)
	if err != nil {
		return fmt.Errorf("pipeline: reorg %s: %w", reorgID, err)
	}

	path, err := e.ancestry(newTip)
	if err != nil {
		return fmt.Errorf("pipeline: reorg %s: %w", reorgID, err)
	}

	// path runs from newTip down to the chain root; reverse it to
	// root..newTip so each block's parent commit already exists when we
	// reach it. Only the ancestor itself is skipped below; advanceWithBackoff
	// leaves any block already past COMPLETE as it is.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	for _, h := range path {
		if h == ancestor {
			continue
		}
		if err := e.advanceWithBackoff(reorgID, h); err != nil {
			return err
		}
	}
	return nil
}

// advanceWithBackoff drives h forward through AdvanceBlock until it reaches
// EXECUTED (or a later terminal status), in case a block/slice/tx it needs
// hasn't arrived yet. Each successful step tries the next one immediately;
// only a step blocked on missing data backs off, from reorgBackoffMin to
// reorgBackoffMax, giving up after reorgFetchTTL. Mining and finalization are
// left to the regular Drain loop once every replayed block is EXECUTED.
func (e *Engine) advanceWithBackoff(reorgID string, h chain.Hash) error {
	backoff := reorgBackoffMin
	deadline := time.Now().Add(reorgFetchTTL)
	for {
		_, status, ok := e.tree.Block(h)
		if !ok {
			return fmt.Errorf("pipeline: reorg %s: unknown block %s", reorgID, h.Hex())
		}
		if status != chain.BlockMempool && status != chain.BlockComplete {
			return nil
		}

		err := e.AdvanceBlock(h)
		if err == nil {
			continue // advanced one step; try the next immediately
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pipeline: reorg %s: block %s never became ready: %w", reorgID, h.Hex(), err)
		}
		e.log.WithField("reorg", reorgID).WithField("block", h.Hex()).WithError(err).Debug("reorg step waiting on data")
		time.Sleep(backoff)
		if backoff < reorgBackoffMax {
			backoff *= 2
			if backoff > reorgBackoffMax {
				backoff = reorgBackoffMax
			}
		}
	}
}
