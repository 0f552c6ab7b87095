package main

import (
	"bywise/chain"
	"bywise/envstore"
	"bywise/pipeline"
	"bywise/txexec"
)

// tipResolver is the subset of *blocktree.Tree balanceReader/simulator need
// to find the environment commit backing the chain's current canonical
// state.
type tipResolver interface {
	CurrentMinedTip() chain.Hash
	Block(h chain.Hash) (*chain.Block, chain.BlockStatus, bool)
}

func tipCommit(tree tipResolver, pipe *pipeline.Engine) chain.Hash {
	tip, _, ok := tree.Block(tree.CurrentMinedTip())
	if !ok {
		return chain.ZeroHash
	}
	commit, ok := pipe.CommitAt(tip.Chain, tip.Height)
	if !ok {
		return chain.ZeroHash
	}
	return commit
}

// balanceReader implements netp2p.BalanceReader over the live envstore at
// the chain's current canonical tip.
type balanceReader struct {
	env  *envstore.Store
	txx  *txexec.Engine
	pipe *pipeline.Engine
	tree tipResolver
}

func (b *balanceReader) Balance(chainID string, address chain.Address) (string, bool, error) {
	ctx := envstore.NewContext(chainID, tipCommit(b.tree, b.pipe))
	bal, err := b.txx.Balance(ctx, address)
	if err != nil {
		return "", false, err
	}
	return bal, true, nil
}

// simulator implements netp2p.Simulator by running tx through txexec
// against the chain's current tip without committing the result.
type simulator struct {
	txx  *txexec.Engine
	pipe *pipeline.Engine
	tree tipResolver
}

func (s *simulator) Simulate(chainID string, tx *chain.Transaction) (*chain.TxOutput, error) {
	outcome, err := s.txx.Execute(chainID, tipCommit(s.tree, s.pipe), tx, txexec.ExecOptions{
		Simulate: true, SimulateWallet: true,
	})
	if err != nil {
		return nil, err
	}
	return &outcome.Output, nil
}
