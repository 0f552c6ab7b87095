package blocktree

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"bywise/chain"
	"bywise/cryptoutil"
)

// hashWithLow160 builds a Hash whose low 160 bits (last 20 bytes) equal v.
func hashWithLow160(v int64) chain.Hash {
	var h chain.Hash
	b := big.NewInt(v).Bytes()
	copy(h[32-len(b):], b)
	return h
}

// addressWithRaw160 builds a syntactically valid BWS address whose decoded
// raw bytes equal v, by round-tripping through DeriveAddress's checksum
// scheme on a fabricated raw value.
func addressWithRaw160(t *testing.T, v int64) chain.Address {
	t.Helper()
	var raw cryptoutil.RawAddress
	b := big.NewInt(v).Bytes()
	copy(raw[20-len(b):], b)

	checksum := cryptoutil.Sha256(append([]byte(cryptoutil.AddressPrefix), raw[:]...))
	addr := cryptoutil.AddressPrefix + rawHex(raw) + rawHex2(checksum[:2])
	return chain.Address(addr)
}

func rawHex(raw cryptoutil.RawAddress) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(raw)*2)
	for i, b := range raw {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

func rawHex2(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

func TestDistanceLiteralVector(t *testing.T) {
	addr := addressWithRaw160(t, 1100) // 0x44C
	require.Equal(t, int64(100), mustDistance(t, hashWithLow160(1000), addr).Int64())
	require.Equal(t, int64(200), mustDistance(t, hashWithLow160(1200), addr).Int64())
	require.Equal(t, int64(100), mustDistance(t, hashWithLow160(900), addr).Int64())
	require.Equal(t, int64(200), mustDistance(t, hashWithLow160(800), addr).Int64())
}

func mustDistance(t *testing.T, h chain.Hash, addr chain.Address) *big.Int {
	t.Helper()
	d, err := Distance(h, addr)
	require.NoError(t, err)
	return d
}

func TestCompareAddressPicksCloser(t *testing.T) {
	near := addressWithRaw160(t, 1000)
	far := addressWithRaw160(t, 5000)
	h := hashWithLow160(1010)

	winner, err := CompareAddress(h, near, far)
	require.NoError(t, err)
	require.Equal(t, near, winner)

	winner, err = CompareAddress(h, far, near)
	require.NoError(t, err)
	require.Equal(t, near, winner)
}

func TestCompareAddressRejectsInvalidAddress(t *testing.T) {
	near := addressWithRaw160(t, 1000)
	_, err := CompareAddress(hashWithLow160(1), near, "not-a-real-address")
	require.Error(t, err)
}

func TestChainDistanceSumsLinks(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addrStr, _, err := cryptoutil.DeriveAddress(pub)
	require.NoError(t, err)
	addr := chain.Address(addrStr)

	h := chain.Hash{1, 2, 3}
	links := []ChainLink{{ParentHash: h, Proposer: addr}, {ParentHash: h, Proposer: addr}}
	single, err := Distance(h, addr)
	require.NoError(t, err)

	sum, err := ChainDistance(links)
	require.NoError(t, err)
	require.Equal(t, new(big.Int).Mul(single, big.NewInt(2)), sum)
}

func TestCompareSuffixesRejectsMismatchedLength(t *testing.T) {
	_, err := CompareSuffixes([]ChainLink{{}}, chain.Hash{}, nil, chain.Hash{})
	require.Error(t, err)
}
