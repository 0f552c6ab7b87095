package cryptoutil

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveAndDecodeAddress(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	addr, raw, err := DeriveAddress(pub)
	require.NoError(t, err)
	require.True(t, len(addr) > len(AddressPrefix))

	decoded, err := DecodeAddress(addr)
	require.NoError(t, err)
	require.Equal(t, raw, decoded)
}

func TestDecodeAddressRejectsBadChecksum(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr, _, err := DeriveAddress(pub)
	require.NoError(t, err)

	tampered := addr[:len(addr)-1] + "0"
	_, err = DecodeAddress(tampered)
	require.Error(t, err)
}

func TestDecodeAddressRejectsBadLength(t *testing.T) {
	_, err := DecodeAddress(AddressPrefix + "deadbeef")
	require.Error(t, err)
}

func TestVerifySignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("hello bywise")
	sig := ed25519.Sign(priv, msg)

	require.True(t, VerifySignature(pub, msg, sig))
	require.False(t, VerifySignature(pub, []byte("tampered"), sig))
}

func TestNewWalletRoundTrip(t *testing.T) {
	addr, mnemonic, priv, err := NewWallet(128)
	require.NoError(t, err)
	require.NotEmpty(t, mnemonic)

	pub, ok := priv.Public().(ed25519.PublicKey)
	require.True(t, ok)
	wantAddr, _, err := DeriveAddress(pub)
	require.NoError(t, err)
	require.Equal(t, wantAddr, addr)
}
