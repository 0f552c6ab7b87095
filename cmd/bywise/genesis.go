package main

import (
	"fmt"
	"os"
	"path/filepath"

	"bywise/chain"
)

// newChain implements the `-new-chain <name>` flag: create a fresh chain
// directory, generate a validator identity for this node, and seed a
// genesis record with that identity as the chain's sole admin and
// validator. A production deployment would join an existing chain instead
// (nodes + an existing genesis.json fetched out of band); spec.md doesn't
// say how -new-chain seeds admins/validators/balances beyond "enumerates"
// them, so a single-validator bootstrap genesis is the only self-consistent
// default for a brand new directory.
func newChain(chainDir string) error {
	if _, err := os.Stat(chainDir); err == nil {
		return fmt.Errorf("new-chain: %s already exists", chainDir)
	}
	if err := os.MkdirAll(chainDir, 0o755); err != nil {
		return fmt.Errorf("new-chain: %w", err)
	}

	id, err := newIdentity()
	if err != nil {
		return fmt.Errorf("new-chain: generate identity: %w", err)
	}
	if err := saveIdentity(chainDir, id); err != nil {
		return fmt.Errorf("new-chain: %w", err)
	}

	g := genesisRecord{
		ChainID:    filepath.Base(chainDir),
		Admins:     []chain.Address{id.Address},
		Validators: []chain.Address{id.Address},
		Balances:   map[chain.Address]string{id.Address: "0"},
		Created:    0,
	}
	if err := saveGenesis(chainDir, g); err != nil {
		return fmt.Errorf("new-chain: %w", err)
	}

	fmt.Println("chain:    ", g.ChainID)
	fmt.Println("directory:", chainDir)
	fmt.Println("validator:", id.Address)
	fmt.Println("mnemonic: ", id.Mnemonic)
	return nil
}
