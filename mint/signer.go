package mint

import (
	"crypto/ed25519"
	"fmt"

	"bywise/chain"
)

// LocalSigner signs with the node's own validator key (the one produced by
// cryptoutil.NewWallet / the `-new-wallet` CLI flow), as opposed to signing
// on behalf of a remote client wallet, which stays out of scope (spec §1).
type LocalSigner struct {
	addr chain.Address
	priv ed25519.PrivateKey
}

// NewLocalSigner wires a Signer over the node's validator identity.
func NewLocalSigner(addr chain.Address, priv ed25519.PrivateKey) *LocalSigner {
	return &LocalSigner{addr: addr, priv: priv}
}

// Sign implements Signer. It refuses to sign for any address other than the
// one it was constructed with: mint should never be asked to sign as a
// different validator.
func (s *LocalSigner) Sign(addr chain.Address, hash []byte) ([]byte, error) {
	if addr != s.addr {
		return nil, fmt.Errorf("mint: local signer holds %s, asked to sign for %s", s.addr, addr)
	}
	return ed25519.Sign(s.priv, hash), nil
}
