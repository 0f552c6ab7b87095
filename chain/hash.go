package chain

import (
	"encoding/hex"
	"fmt"
)

// Hash is a 32-byte digest rendered as 64 hex characters on the wire.
type Hash [32]byte

// ZeroHash denotes "no parent" for a genesis block.
var ZeroHash = Hash{}

// Hex returns the lower-case hex encoding of h.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// String satisfies fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h equals ZeroHash.
func (h Hash) IsZero() bool { return h == ZeroHash }

// MarshalJSON renders the hash as its hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.Hex() + `"`), nil
}

// UnmarshalJSON parses a hex string into h.
func (h *Hash) UnmarshalJSON(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("chain: invalid hash literal")
	}
	s := string(b[1 : len(b)-1])
	return h.UnmarshalText([]byte(s))
}

// UnmarshalText parses the hex representation of a hash.
func (h *Hash) UnmarshalText(b []byte) error {
	decoded, err := hex.DecodeString(string(b))
	if err != nil {
		return fmt.Errorf("chain: decode hash: %w", err)
	}
	if len(decoded) != 32 {
		return fmt.Errorf("chain: hash must be 32 bytes, got %d", len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HashFromHex parses a hex string into a Hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	err := h.UnmarshalText([]byte(s))
	return h, err
}
