package cryptoutil

import (
	"crypto/ed25519"
	"fmt"

	bip39 "github.com/tyler-smith/go-bip39"
)

// NewWallet is the node-local convenience used by the `-new-wallet` CLI flag.
// It generates a BIP-39 mnemonic and an ed25519 key-pair derived from its
// seed, and returns the rendered address alongside the mnemonic the operator
// must write down. This never runs on the execution hot path: live client
// signing is out of scope (spec §1 Non-goals).
func NewWallet(entropyBits int) (address string, mnemonic string, priv ed25519.PrivateKey, err error) {
	if entropyBits != 128 && entropyBits != 256 {
		return "", "", nil, fmt.Errorf("cryptoutil: unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", "", nil, fmt.Errorf("cryptoutil: entropy: %w", err)
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", "", nil, fmt.Errorf("cryptoutil: mnemonic: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, "")
	if len(seed) < ed25519.SeedSize {
		return "", "", nil, fmt.Errorf("cryptoutil: derived seed too short")
	}
	priv = ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return "", "", nil, fmt.Errorf("cryptoutil: unexpected public key type")
	}
	address, _, err = DeriveAddress(pub)
	if err != nil {
		return "", "", nil, err
	}
	return address, mnemonic, priv, nil
}
