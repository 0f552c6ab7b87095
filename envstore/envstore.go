// Package envstore implements C4: a copy-on-write, content-addressed
// overlay of per-chain key/value state. Every execution reads and writes
// through a Context rather than touching the persisted kv.Store directly,
// so speculative or reverted work never corrupts consolidated state.
package envstore

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"bywise/chain"
	"bywise/errkind"
	"bywise/kv"
)

// ErrCorruptCommitChain is fatal: a commit's declared base is unknown to the
// store, so the overlay chain cannot be walked to a persisted ancestor.
var ErrCorruptCommitChain = fmt.Errorf("envstore: corrupt commit chain")

// entry is a single overlay slot: either a value or a tombstone. The
// tombstone distinguishes "deleted" from "never set", matching spec's
// absent-marker requirement.
type entry struct {
	deleted bool
	value   []byte
}

// commit is one content-addressed layer: the diff a slice or block
// produced over its base.
type commit struct {
	base       chain.Hash
	diff       map[string]entry
	contextTag string
}

// Context is the stacked overlay a single execution works against:
// (chain, baseCommitHash, localWrites). Reads flow localWrites → the commit
// chain rooted at base → the persisted store → absent.
type Context struct {
	Chain string
	Base  chain.Hash
	local map[string]entry
}

// NewContext starts a fresh overlay for chainID rooted at base.
func NewContext(chainID string, base chain.Hash) *Context {
	return &Context{Chain: chainID, Base: base, local: make(map[string]entry)}
}

// Store is the per-node registry of commits and their persisted ancestor.
type Store struct {
	mu       sync.RWMutex
	persist  kv.Store
	commits  map[chain.Hash]*commit
	log      *zap.Logger
}

// New wires a Store over persist. log may be nil, in which case a no-op
// logger is used.
func New(persist kv.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		persist: persist,
		commits: make(map[chain.Hash]*commit),
		log:     log,
	}
}

func persistKey(chainID, key string) []byte {
	return []byte(fmt.Sprintf("env-%s-kv-%s", chainID, key))
}

// Get resolves key against ctx: local overlay first, then the commit chain
// rooted at ctx.Base, then the persisted snapshot. found is false for both
// "never set" and "deleted".
func (s *Store) Get(ctx *Context, key string) (value []byte, found bool, err error) {
	if e, ok := ctx.local[key]; ok {
		return e.value, !e.deleted, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := ctx.Base
	for !cur.IsZero() {
		c, ok := s.commits[cur]
		if !ok {
			return nil, false, errkind.Mark(ErrCorruptCommitChain, errkind.Fatal)
		}
		if e, ok := c.diff[key]; ok {
			return e.value, !e.deleted, nil
		}
		cur = c.base
	}

	v, err := s.persist.Get(persistKey(ctx.Chain, key))
	if err == kv.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set writes key=value into ctx's local overlay.
func (s *Store) Set(ctx *Context, key string, value []byte) {
	ctx.local[key] = entry{value: append([]byte(nil), value...)}
}

// Delete marks key deleted in ctx's local overlay.
func (s *Store) Delete(ctx *Context, key string) {
	ctx.local[key] = entry{deleted: true}
}

// Commit seals ctx's local writes into a new content-addressed layer tagged
// contextTag (the slice or block hash whose effects the commit captures),
// and returns the new commit hash. Two contexts that produce an identical
// diff over the same base and tag yield the same hash.
func (s *Store) Commit(ctx *Context, contextTag string) (chain.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	diff := make(map[string]entry, len(ctx.local))
	for k, v := range ctx.local {
		diff[k] = v
	}
	h := hashCommit(ctx.Base, diff, contextTag)
	s.commits[h] = &commit{base: ctx.Base, diff: diff, contextTag: contextTag}

	s.log.Debug("envstore commit",
		zap.String("chain", ctx.Chain),
		zap.String("base", ctx.Base.Hex()),
		zap.String("commit", h.Hex()),
		zap.String("contextTag", contextTag),
		zap.Int("writes", len(diff)))

	ctx.Base = h
	ctx.local = make(map[string]entry)
	return h, nil
}

// hashCommit content-addresses (base, sortedKeyValueDiff, contextTag), grounded
// on the teacher's StateRoot sorted-key sha256 digest.
func hashCommit(base chain.Hash, diff map[string]entry, contextTag string) chain.Hash {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write(base[:])
	for _, k := range keys {
		e := diff[k]
		h.Write([]byte(k))
		if e.deleted {
			h.Write([]byte{0})
		} else {
			h.Write([]byte{1})
			h.Write(e.value)
		}
	}
	h.Write([]byte(contextTag))

	var out chain.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Consolidate persists every write reachable from headCommit back to the
// zero hash into the durable kv.Store, applying oldest diffs first so newer
// writes win, then drops those commit records from memory. It is idempotent:
// consolidating the same head twice is a no-op the second time since the
// commit chain is already gone.
func (s *Store) Consolidate(chainID string, headCommit chain.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if headCommit.IsZero() {
		return nil
	}
	if _, ok := s.commits[headCommit]; !ok {
		// Already consolidated by a prior call: idempotent no-op.
		return nil
	}

	var layers []chain.Hash
	cur := headCommit
	for !cur.IsZero() {
		c, ok := s.commits[cur]
		if !ok {
			return errkind.Mark(ErrCorruptCommitChain, errkind.Fatal)
		}
		layers = append(layers, cur)
		cur = c.base
	}

	batch := s.persist.NewBatch()
	for i := len(layers) - 1; i >= 0; i-- {
		c := s.commits[layers[i]]
		keys := make([]string, 0, len(c.diff))
		for k := range c.diff {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			e := c.diff[k]
			if e.deleted {
				batch.Delete(persistKey(chainID, k))
			} else {
				batch.Put(persistKey(chainID, k), e.value)
			}
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("envstore: consolidate write: %w", err)
	}

	for _, h := range layers {
		delete(s.commits, h)
	}
	s.log.Info("envstore consolidated", zap.String("chain", chainID), zap.String("head", headCommit.Hex()), zap.Int("layers", len(layers)))
	return nil
}

// DropUnreachable removes every commit record not named in reachable,
// bounding memory growth from abandoned forks.
func (s *Store) DropUnreachable(reachable map[chain.Hash]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h := range s.commits {
		if !reachable[h] {
			delete(s.commits, h)
		}
	}
}

