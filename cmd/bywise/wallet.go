package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bywise/chain"
	"bywise/cryptoutil"
)

// identity is the node's own validator key material, persisted alongside a
// chain directory as wallet.json. The mnemonic is kept only for operator
// backup; it is never read back by the running node.
type identity struct {
	Address  chain.Address `json:"address"`
	Mnemonic string        `json:"mnemonic,omitempty"`
	PrivHex  string        `json:"priv"`
}

func (id identity) privateKey() (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(id.PrivHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode private key: %w", err)
	}
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: private key has wrong size %d", len(b))
	}
	return ed25519.PrivateKey(b), nil
}

func walletPath(chainDir string) string {
	return filepath.Join(chainDir, "wallet.json")
}

// newIdentity generates a fresh validator keypair via the black-box wallet
// capability (spec §1 Non-goals: signing/address derivation stays outside
// the core; this only ever runs from the `-new-wallet` and `-new-chain` CLI
// paths, never on the execution hot path).
func newIdentity() (identity, error) {
	addr, mnemonic, priv, err := cryptoutil.NewWallet(256)
	if err != nil {
		return identity{}, err
	}
	return identity{
		Address:  chain.Address(addr),
		Mnemonic: mnemonic,
		PrivHex:  hex.EncodeToString(priv),
	}, nil
}

func saveIdentity(chainDir string, id identity) error {
	b, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(walletPath(chainDir), b, 0o600)
}

func loadIdentity(chainDir string) (identity, error) {
	b, err := os.ReadFile(walletPath(chainDir))
	if err != nil {
		return identity{}, fmt.Errorf("wallet: %w", err)
	}
	var id identity
	if err := json.Unmarshal(b, &id); err != nil {
		return identity{}, fmt.Errorf("wallet: parse %s: %w", walletPath(chainDir), err)
	}
	return id, nil
}

// runNewWallet implements the `-new-wallet` flag: print a fresh address and
// mnemonic to stdout without touching any chain directory.
func runNewWallet() error {
	id, err := newIdentity()
	if err != nil {
		return err
	}
	fmt.Println("address: ", id.Address)
	fmt.Println("mnemonic:", id.Mnemonic)
	return nil
}
