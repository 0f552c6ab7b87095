// Package cryptoutil is the node's crypto capability surface (spec C3):
// hashing, signature verification and address decoding. Signing and key
// derivation for a live client wallet are treated as a black box per spec's
// Non-goals; the helpers here only ever verify, never sign on a client's
// behalf (NewWallet in wallet.go exists solely to back the node's own
// `-new-wallet`/`-new-chain` CLI conveniences and is not used on the hot
// execution path).
package cryptoutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // kept for address-layout compatibility with the teacher's wallet scheme
)

// AddressPrefix is prepended to every rendered address so a reader can tell
// the chain a key belongs to without decoding it.
const AddressPrefix = "BWS"

// RawAddress is the 20-byte decoded form of an Address.
type RawAddress [20]byte

// Hex renders the raw address as lower-case hex.
func (r RawAddress) Hex() string { return hex.EncodeToString(r[:]) }

// DeriveAddress hashes a public key down to the 20-byte address payload
// (sha256 then ripemd160, the same two-step digest the teacher's wallet used
// for its own address derivation) and renders it with the checksum prefix.
func DeriveAddress(pub ed25519.PublicKey) (string, RawAddress, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", RawAddress{}, fmt.Errorf("cryptoutil: bad public key size %d", len(pub))
	}
	sum := sha256.Sum256(pub)
	r := ripemd160.New()
	_, _ = r.Write(sum[:])
	digest := r.Sum(nil)

	var raw RawAddress
	copy(raw[:], digest)

	checksum := sha256.Sum256(append([]byte(AddressPrefix), raw[:]...))
	encoded := AddressPrefix + hex.EncodeToString(raw[:]) + hex.EncodeToString(checksum[:2])
	return encoded, raw, nil
}

// DecodeAddress validates the self-describing prefix and checksum of an
// address string, returning its 20-byte key.
func DecodeAddress(addr string) (RawAddress, error) {
	var raw RawAddress
	if !strings.HasPrefix(addr, AddressPrefix) {
		return raw, fmt.Errorf("cryptoutil: address %q missing %s prefix", addr, AddressPrefix)
	}
	body := addr[len(AddressPrefix):]
	if len(body) != 40+4 {
		return raw, fmt.Errorf("cryptoutil: address %q has wrong length", addr)
	}
	keyHex, checkHex := body[:40], body[40:]
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return raw, fmt.Errorf("cryptoutil: decode address key: %w", err)
	}
	wantChecksum, err := hex.DecodeString(checkHex)
	if err != nil {
		return raw, fmt.Errorf("cryptoutil: decode address checksum: %w", err)
	}
	sum := sha256.Sum256(append([]byte(AddressPrefix), key...))
	if !equalBytes(sum[:2], wantChecksum) {
		return raw, fmt.Errorf("cryptoutil: address %q failed checksum", addr)
	}
	copy(raw[:], key)
	return raw, nil
}

func equalBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Sha256 is the node-wide canonical hash function for blocks, slices, txs
// and environment commits.
func Sha256(b []byte) [32]byte { return sha256.Sum256(b) }

// VerifySignature checks that sig is a valid ed25519 signature of msg by
// pub. pub must be supplied by the caller (recovered from a
// prior handshake or from the transaction's embedded key); cryptoutil never
// stores key material itself.
func VerifySignature(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}
