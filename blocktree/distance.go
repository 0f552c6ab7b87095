// Package blocktree implements C5: the in-memory DAG of blocks and slices
// per chain, and the deterministic "distance" fork-choice rule (spec §4.4,
// §4.5) used for stateless per-height leader election.
package blocktree

import (
	"fmt"
	"math/big"

	"bywise/chain"
	"bywise/cryptoutil"
)

// low160 returns the last 20 bytes of h as a big.Int, the "H_low160"
// reference value the distance rule compares proposer addresses against.
func low160(h chain.Hash) *big.Int {
	return new(big.Int).SetBytes(h[12:])
}

// addr160 decodes addr to its 20-byte form and returns it as a big.Int.
func addr160(addr chain.Address) (*big.Int, error) {
	raw, err := cryptoutil.DecodeAddress(string(addr))
	if err != nil {
		return nil, fmt.Errorf("blocktree: invalid validator address %q: %w", addr, err)
	}
	return new(big.Int).SetBytes(raw[:]), nil
}

// Distance is the 160-bit unsigned absolute difference between the low 160
// bits of parentHash and a validator's decoded address.
func Distance(parentHash chain.Hash, validator chain.Address) (*big.Int, error) {
	a, err := addr160(validator)
	if err != nil {
		return nil, err
	}
	d := new(big.Int).Sub(low160(parentHash), a)
	return d.Abs(d), nil
}

// CompareAddress returns whichever of addrA/addrB is closer to hash's low
// 160 bits, the single-block collapse of the distance rule. Ties favor the
// numerically smaller address.
func CompareAddress(hash chain.Hash, addrA, addrB chain.Address) (chain.Address, error) {
	dA, err := Distance(hash, addrA)
	if err != nil {
		return "", err
	}
	dB, err := Distance(hash, addrB)
	if err != nil {
		return "", err
	}
	switch dA.Cmp(dB) {
	case -1:
		return addrA, nil
	case 1:
		return addrB, nil
	default:
		rawA, _ := addr160(addrA)
		rawB, _ := addr160(addrB)
		if rawA.Cmp(rawB) <= 0 {
			return addrA, nil
		}
		return addrB, nil
	}
}

// ChainLink is one (parentHash, proposer) step of a candidate block suffix.
type ChainLink struct {
	ParentHash chain.Hash
	Proposer   chain.Address
}

// ChainDistance sums Distance across every link of seq, per §4.4's
// chainDistance(seq) = Σ distance(parentHash_i, proposer_i).
func ChainDistance(seq []ChainLink) (*big.Int, error) {
	sum := new(big.Int)
	for _, link := range seq {
		d, err := Distance(link.ParentHash, link.Proposer)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, d)
	}
	return sum, nil
}

// CompareSuffixes picks the winning fork-choice suffix between two
// equal-length candidate chains ending in tipHashA/tipHashB: smaller
// chainDistance wins; ties resolve by smaller block hash lexicographically.
// A single-link suffix collapses to CompareAddress naturally since
// ChainDistance of length 1 reduces to one Distance call.
func CompareSuffixes(seqA []ChainLink, tipHashA chain.Hash, seqB []ChainLink, tipHashB chain.Hash) (string, error) {
	if len(seqA) != len(seqB) {
		return "", fmt.Errorf("blocktree: cannot compare suffixes of different length (%d vs %d)", len(seqA), len(seqB))
	}
	sumA, err := ChainDistance(seqA)
	if err != nil {
		return "", err
	}
	sumB, err := ChainDistance(seqB)
	if err != nil {
		return "", err
	}
	switch sumA.Cmp(sumB) {
	case -1:
		return "a", nil
	case 1:
		return "b", nil
	default:
		if tipHashA == tipHashB {
			return "a", nil
		}
		for i := range tipHashA {
			if tipHashA[i] != tipHashB[i] {
				if tipHashA[i] < tipHashB[i] {
					return "a", nil
				}
				return "b", nil
			}
		}
		return "a", nil
	}
}
