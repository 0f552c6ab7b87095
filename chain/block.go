package chain

import (
	"fmt"

	"bywise/cryptoutil"
)

// BlockStatus tracks a block's progress through the finality pipeline (C9).
type BlockStatus string

const (
	BlockMempool   BlockStatus = "MEMPOOL"
	BlockComplete  BlockStatus = "COMPLETE"
	BlockExecuted  BlockStatus = "EXECUTED"
	BlockMined     BlockStatus = "MINED"
	BlockImmutable BlockStatus = "IMMUTABLE"
	BlockInvalid   BlockStatus = "INVALID"
)

// Block is a chain's unit of finality (spec §3's Block). Its hash is a
// deterministic digest; its signature verifies against From.
type Block struct {
	Chain             string  `json:"chain"`
	Version           int     `json:"version"`
	Height            uint64  `json:"height"`
	Slices            []Hash  `json:"slices"`
	From              Address `json:"from"`
	Created           int64   `json:"created"`
	LastHash          Hash    `json:"lastHash"` // parent hash, ZeroHash for genesis
	TransactionsCount int     `json:"transactionsCount"`
	ExternalTxID      []string `json:"externalTxID,omitempty"`
	Hash              Hash    `json:"hash"`
	Sign              []byte  `json:"sign"`
}

// encodeCore is the canonical encoding a block's hash and signature are
// taken over.
func (b *Block) encodeCore() []byte {
	w := &encoder{}
	w.writeString(b.Chain)
	w.writeUint32(uint32(b.Version))
	w.writeUint64(b.Height)
	w.writeUint32(uint32(len(b.Slices)))
	for _, h := range b.Slices {
		w.writeBytes(h[:])
	}
	w.writeString(string(b.From))
	w.writeUint64(uint64(b.Created))
	w.writeBytes(b.LastHash[:])
	w.writeUint32(uint32(len(b.ExternalTxID)))
	for _, id := range b.ExternalTxID {
		w.writeString(id)
	}
	return w.bytes()
}

// ComputeHash deterministically hashes the block's canonical encoding.
func (b *Block) ComputeHash() Hash {
	return Hash(cryptoutil.Sha256(b.encodeCore()))
}

// VerifyHash reports whether b.Hash matches its recomputed digest.
func (b *Block) VerifyHash() bool {
	return b.ComputeHash() == b.Hash
}

// VerifySignature checks the proposer's signature over the block hash.
func (b *Block) VerifySignature(pub []byte) bool {
	return cryptoutil.VerifySignature(pub, b.Hash[:], b.Sign)
}

// IsGenesis reports whether b has no parent.
func (b *Block) IsGenesis() bool {
	return b.LastHash.IsZero() && b.Height == 0
}

// Validate checks structural invariants that do not require the block tree.
func (b *Block) Validate() error {
	if b.From == "" && !b.IsGenesis() {
		return fmt.Errorf("chain: block missing proposer")
	}
	if !b.IsGenesis() && b.LastHash.IsZero() {
		return fmt.Errorf("chain: non-genesis block at height %d has zero parent hash", b.Height)
	}
	return nil
}
