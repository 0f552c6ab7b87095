package mint

import (
	"math/big"
	"time"

	"bywise/blocktree"
	"bywise/chain"
	"bywise/cryptoutil"
)

// tryOpen checks whether a new block is due at tip+1 and, if the local
// address is the best next proposer there, opens it.
func (e *Engine) tryOpen(now time.Time) error {
	tipHash := e.tree.CurrentMinedTip()
	tip, _, ok := e.tree.Block(tipHash)
	if !ok {
		return nil // genesis not yet bootstrapped
	}

	if now.Unix() < tip.Created+int64(e.blockTime()/time.Second) {
		return nil
	}

	validators := e.validators.Validators(e.chainID)
	if !isValidator(validators, e.self) {
		return nil
	}

	best, err := bestProposer(tipHash, validators)
	if err != nil {
		return err
	}
	if best != e.self {
		return nil
	}

	e.open = &pendingBlock{
		height:      tip.Height + 1,
		lastHash:    tipHash,
		opened:      now,
		lastSliceAt: time.Time{},
		included:    make(map[chain.Hash]struct{}),
	}
	return nil
}

func isValidator(validators []chain.Address, addr chain.Address) bool {
	for _, v := range validators {
		if v == addr {
			return true
		}
	}
	return false
}

// bestProposer picks whichever validator's address is closest to hash's
// low-160 bits (blocktree's distance rule), ties broken toward the
// numerically smaller address, matching blocktree.CompareAddress's
// pairwise rule folded over the whole set.
func bestProposer(hash chain.Hash, validators []chain.Address) (chain.Address, error) {
	if len(validators) == 0 {
		return "", nil
	}
	best := validators[0]
	bestDist, err := blocktree.Distance(hash, best)
	if err != nil {
		return "", err
	}
	for _, v := range validators[1:] {
		d, err := blocktree.Distance(hash, v)
		if err != nil {
			return "", err
		}
		if d.Cmp(bestDist) < 0 || (d.Cmp(bestDist) == 0 && addressLess(v, best)) {
			best, bestDist = v, d
		}
	}
	return best, nil
}

func addressLess(a, b chain.Address) bool {
	ra, errA := cryptoutil.DecodeAddress(string(a))
	rb, errB := cryptoutil.DecodeAddress(string(b))
	if errA != nil || errB != nil {
		return a < b
	}
	return new(big.Int).SetBytes(ra[:]).Cmp(new(big.Int).SetBytes(rb[:])) < 0
}
