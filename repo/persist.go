package repo

import (
	"bywise/bus"
	"bywise/chain"
	"bywise/pipeline"
)

// PersistImmutableBlocks subscribes to pipeline.TopicBlockImmutable and
// durably writes each block that crosses into IMMUTABLE, along with the
// slices and transactions it references, resolved through slices/txs (the
// same SliceSource/TxSource the pipeline engine itself reads through — the
// mempool while still pending, repo once another path has already written
// it). It runs until the returned stop func is called; pipeline never
// imports repo directly, keeping the dependency one-directional through
// the bus (C13), per spec §9's "no module-level mutable state" redesign.
func PersistImmutableBlocks(b *bus.Bus, tree blockSource, slices pipeline.SliceSource, txs pipeline.TxSource, r *Repo) (stop func(), err error) {
	sub, err := bus.Subscribe[pipeline.BlockImmutable](b, pipeline.TopicBlockImmutable)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case evt, ok := <-sub.C():
				if !ok {
					return
				}
				persistOne(tree, slices, txs, r, evt)
			case <-done:
				sub.Close()
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// blockSource is the subset of *blocktree.Tree persist needs, kept narrow
// so repo doesn't import blocktree for more than this one lookup.
type blockSource interface {
	Block(h chain.Hash) (*chain.Block, chain.BlockStatus, bool)
}

func persistOne(tree blockSource, slices pipeline.SliceSource, txs pipeline.TxSource, r *Repo, evt pipeline.BlockImmutable) {
	block, _, ok := tree.Block(evt.Hash)
	if !ok {
		return
	}
	if err := r.PutBlock(block); err != nil {
		return
	}
	seenTx := make(map[chain.Hash]struct{})
	for _, sh := range block.Slices {
		s, ok := slices.SliceByHash(sh)
		if !ok {
			continue
		}
		if err := r.PutSlice(s); err != nil {
			continue
		}
		for _, th := range s.Transactions {
			if _, dup := seenTx[th]; dup {
				continue
			}
			seenTx[th] = struct{}{}
			tx, ok := txs.TxByHash(th)
			if !ok {
				continue
			}
			_ = r.PutTransaction(tx)
		}
	}
}
