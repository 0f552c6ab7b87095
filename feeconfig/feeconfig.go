// Package feeconfig implements C6: resolving chain configuration at a given
// block height (with its 100-block activation delay) and computing the fee
// owed by a transaction under that configuration.
package feeconfig

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bywise/chain"
	"bywise/envstore"
)

// ActivationDelay is the number of blocks a committed config change must
// wait before it becomes the active value (spec §4.3).
const ActivationDelay = 100

// HeightResolver maps a chain and block height to the environment commit
// hash reachable at that height, so the engine can read configuration as it
// stood at an ancestor rather than at the live tip.
type HeightResolver interface {
	CommitAt(chainID string, height uint64) (chain.Hash, bool)
}

// Engine resolves config values and computes fees (C6).
type Engine struct {
	store    *envstore.Store
	resolver HeightResolver
}

// New wires an Engine over store and resolver.
func New(store *envstore.Store, resolver HeightResolver) *Engine {
	return &Engine{store: store, resolver: resolver}
}

// ConfigAt resolves key's active value at blockHeight: the environment as
// committed at height blockHeight-ActivationDelay (the genesis commit while
// blockHeight is at most ActivationDelay). Until a changed value has
// aged past the delay, the previously-active value is still returned
// because the ancestor commit predates the change.
func (e *Engine) ConfigAt(chainID string, blockHeight uint64, key string) (string, bool, error) {
	effectiveHeight := uint64(0)
	if blockHeight > ActivationDelay {
		effectiveHeight = blockHeight - ActivationDelay
	}

	commitHash, ok := e.resolver.CommitAt(chainID, effectiveHeight)
	if !ok {
		commitHash = chain.ZeroHash
	}
	ctx := envstore.NewContext(chainID, commitHash)
	raw, found, err := e.store.Get(ctx, "config:"+key)
	if err != nil {
		return "", false, fmt.Errorf("feeconfig: config %q at height %d: %w", key, blockHeight, err)
	}
	if !found {
		return "", false, nil
	}
	return string(raw), true, nil
}

// decimalConfig resolves key to a decimal.Decimal, defaulting to def when
// unset.
func (e *Engine) decimalConfig(chainID string, blockHeight uint64, key string, def decimal.Decimal) (decimal.Decimal, error) {
	raw, found, err := e.ConfigAt(chainID, blockHeight, key)
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return def, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("feeconfig: config %q value %q is not decimal: %w", key, raw, err)
	}
	return v, nil
}

// ComputeFee implements the fee formula:
//
//	fee = feeBasic + feeCoefAmount*Σamount[i] + feeCoefSize*canonicalByteSize(tx) + feeCoefCost*executionCost
//
// feeUsed is forced to zero while tx's block is the chain's first block, or
// when the resolved coefficients are all zero. Arithmetic is arbitrary
// precision throughout, round-half-even at 18 decimal places.
func (e *Engine) ComputeFee(chainID string, blockHeight uint64, tx *chain.Transaction, executionCost decimal.Decimal) (decimal.Decimal, error) {
	if blockHeight == 0 {
		return decimal.Zero, nil
	}

	feeBasic, err := e.decimalConfig(chainID, blockHeight, "feeBasic", decimal.Zero)
	if err != nil {
		return decimal.Zero, err
	}
	coefAmount, err := e.decimalConfig(chainID, blockHeight, "feeCoefAmount", decimal.Zero)
	if err != nil {
		return decimal.Zero, err
	}
	coefSize, err := e.decimalConfig(chainID, blockHeight, "feeCoefSize", decimal.Zero)
	if err != nil {
		return decimal.Zero, err
	}
	coefCost, err := e.decimalConfig(chainID, blockHeight, "feeCoefCost", decimal.Zero)
	if err != nil {
		return decimal.Zero, err
	}

	amountSum := decimal.Zero
	for _, a := range tx.Amount {
		v, err := decimal.NewFromString(a)
		if err != nil {
			return decimal.Zero, fmt.Errorf("feeconfig: tx amount %q is not decimal: %w", a, err)
		}
		amountSum = amountSum.Add(v)
	}

	size := decimal.NewFromInt(int64(tx.CanonicalByteSize()))

	fee := feeBasic.
		Add(coefAmount.Mul(amountSum)).
		Add(coefSize.Mul(size)).
		Add(coefCost.Mul(executionCost))

	return fee.RoundBank(18), nil
}
