package chain

import (
	"fmt"

	"bywise/cryptoutil"
)

// Slice is a micro-batch of transactions proposed by a single validator
// while a block is being assembled (spec §3's Slice). Slices from the same
// proposer for the same block form a consecutive 0..k sequence with exactly
// one end=true slice at k.
type Slice struct {
	Chain             string  `json:"chain"`
	Version           int     `json:"version"`
	Height            uint64  `json:"height"`      // sequence within the forming block, 0-indexed
	BlockHeight       uint64  `json:"blockHeight"`  // height of the block being assembled
	TransactionsCount int     `json:"transactionsCount"`
	Transactions      []Hash  `json:"transactions"` // referenced tx hashes; bodies travel separately
	From              Address `json:"from"`
	Created           int64   `json:"created"`
	End               bool    `json:"end"`
	Hash              Hash    `json:"hash"`
	Sign              []byte  `json:"sign"`
}

// encodeCore is the canonical encoding a slice's hash and signature are taken
// over.
func (s *Slice) encodeCore() []byte {
	w := &encoder{}
	w.writeString(s.Chain)
	w.writeUint32(uint32(s.Version))
	w.writeUint64(s.Height)
	w.writeUint64(s.BlockHeight)
	w.writeUint32(uint32(len(s.Transactions)))
	for _, h := range s.Transactions {
		w.writeBytes(h[:])
	}
	w.writeString(string(s.From))
	w.writeUint64(uint64(s.Created))
	if s.End {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
	return w.bytes()
}

// ComputeHash deterministically hashes the slice's canonical encoding.
func (s *Slice) ComputeHash() Hash {
	return Hash(cryptoutil.Sha256(s.encodeCore()))
}

// VerifyHash reports whether s.Hash matches its recomputed digest.
func (s *Slice) VerifyHash() bool {
	return s.ComputeHash() == s.Hash
}

// VerifySignature checks the proposer's signature over the slice hash.
func (s *Slice) VerifySignature(pub []byte) bool {
	return cryptoutil.VerifySignature(pub, s.Hash[:], s.Sign)
}

// Validate checks structural invariants that do not require sibling slices.
func (s *Slice) Validate() error {
	if s.From == "" {
		return fmt.Errorf("chain: slice missing proposer")
	}
	if s.TransactionsCount != len(s.Transactions) {
		return fmt.Errorf("chain: slice transactionsCount %d does not match %d hashes",
			s.TransactionsCount, len(s.Transactions))
	}
	return nil
}

// SlicesConsecutive reports whether slices from one proposer for one block
// form a 0..n-1 sequence with no gaps or duplicates and exactly one terminal
// slice at the end.
func SlicesConsecutive(slices []Slice) error {
	if len(slices) == 0 {
		return fmt.Errorf("chain: empty slice set")
	}
	seen := make(map[uint64]bool, len(slices))
	var maxHeight uint64
	endCount := 0
	for _, s := range slices {
		if seen[s.Height] {
			return fmt.Errorf("chain: duplicate slice height %d", s.Height)
		}
		seen[s.Height] = true
		if s.Height > maxHeight {
			maxHeight = s.Height
		}
		if s.End {
			endCount++
		}
	}
	if uint64(len(slices)) != maxHeight+1 {
		return fmt.Errorf("chain: slice sequence has gaps: have %d slices, max height %d", len(slices), maxHeight)
	}
	for h := uint64(0); h <= maxHeight; h++ {
		if !seen[h] {
			return fmt.Errorf("chain: missing slice at height %d", h)
		}
	}
	if endCount != 1 {
		return fmt.Errorf("chain: expected exactly one terminal slice, found %d", endCount)
	}
	for i, s := range slices {
		isLast := s.Height == maxHeight
		if s.End != isLast {
			return fmt.Errorf("chain: slice %d end flag %v does not match terminal position", i, s.End)
		}
	}
	return nil
}
