// Package mint implements C12: the per-chain minting loop. For a chain
// where the local wallet is a validator, it waits out blockTime, decides
// whether the local address is the best next proposer by blocktree's
// address-distance rule, and — if so — opens a block, emits slices as the
// mempool fills, and closes the block once it is the sole proposer long
// enough or its slice train is full.
package mint

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bywise/blocktree"
	"bywise/chain"
	"bywise/feeconfig"
	"bywise/mempool"
	"bywise/netp2p"
)

// tickInterval is how often the loop re-evaluates a chain: frequently
// enough to catch a ~1s slice cadence without a dedicated timer per chain.
const tickInterval = 250 * time.Millisecond

// defaultBlockTime is used when a chain has not yet committed a
// "config:blockTime" value (e.g. immediately after genesis, before the
// activation delay has aged past height 0).
const defaultBlockTime = 15 * time.Second

// defaultSliceTxLimit bounds the open block's total transaction count,
// summed over its whole slice train, absent a "config:blockTxLimit" override.
const defaultSliceTxLimit = 5000

// sliceInterval is the cadence at which an open block emits a new slice
// (spec §4.8 step 4: "every ~1s").
const sliceInterval = time.Second

// Signer produces the ed25519 signature over a block or slice hash for
// addr. Signing is a black-box wallet capability (spec's own scoping,
// mirrored in cryptoutil's package doc): mint never holds key material
// itself, it only calls out to whatever wallet the node was started with.
type Signer interface {
	Sign(addr chain.Address, hash []byte) ([]byte, error)
}

// ValidatorSource supplies the current validator set for a chain. Neither
// txexec.Engine nor envstore.Store exposes a by-prefix enumeration of
// "access:validator:*" keys, so the validator set a chain's minting loop
// races against is supplied by the caller (cmd/bywise, reading the same
// genesis/governance transactions that seeded it) rather than walked out of
// the store here.
type ValidatorSource interface {
	Validators(chainID string) []chain.Address
}

// pendingBlock tracks the block mint is currently assembling.
type pendingBlock struct {
	height       uint64
	lastHash     chain.Hash
	opened       time.Time
	lastSliceAt  time.Time
	sliceHeight  uint64
	slices       []chain.Hash
	txCount      int
	included     map[chain.Hash]struct{}
	soleSince    time.Time // zero until no competing slice train has been seen
}

// Engine runs the minting loop for one chain (C12).
type Engine struct {
	mu sync.Mutex

	chainID    string
	self       chain.Address
	tree       *blocktree.Tree
	pool       *mempool.Pool
	fees       *feeconfig.Engine
	validators ValidatorSource
	signer     Signer
	gossip     *netp2p.Gossiper
	log        *logrus.Logger

	open *pendingBlock
}

// New wires an Engine. gossip may be nil (no broadcast, e.g. single-node
// tests); log may be nil (defaults to a fresh logrus logger, teacher
// convention carried from pipeline.New).
func New(chainID string, self chain.Address, tree *blocktree.Tree, pool *mempool.Pool, fees *feeconfig.Engine, validators ValidatorSource, signer Signer, gossip *netp2p.Gossiper, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		chainID:    chainID,
		self:       self,
		tree:       tree,
		pool:       pool,
		fees:       fees,
		validators: validators,
		signer:     signer,
		gossip:     gossip,
		log:        log,
	}
}

// Run ticks the engine until stop is closed, mirroring pipeline.Engine.Run's
// ticker/select shape (itself grounded on the teacher's blockLoop).
func (e *Engine) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := e.Tick(time.Now()); err != nil {
				e.log.WithField("chain", e.chainID).WithError(err).Debug("mint: tick failed")
			}
		}
	}
}

// Tick performs one evaluation step: opening a block if it is our turn,
// emitting a slice if one is due, or closing the open block if it is ready.
// It is safe to call repeatedly and concurrently with Run (tests call it
// directly without starting the ticker).
func (e *Engine) Tick(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open == nil {
		return e.tryOpen(now)
	}
	return e.tryAdvance(now)
}

func (e *Engine) blockTime() time.Duration {
	tip, _, ok := e.tree.Block(e.tree.CurrentMinedTip())
	height := uint64(0)
	if ok {
		height = tip.Height
	}
	raw, found, err := e.fees.ConfigAt(e.chainID, height, "blockTime")
	if err != nil || !found {
		return defaultBlockTime
	}
	secs, err := time.ParseDuration(raw + "s")
	if err != nil {
		return defaultBlockTime
	}
	return secs
}

func (e *Engine) sliceTxLimit(height uint64) int {
	raw, found, err := e.fees.ConfigAt(e.chainID, height, "blockTxLimit")
	if err != nil || !found {
		return defaultSliceTxLimit
	}
	var limit int
	if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit <= 0 {
		return defaultSliceTxLimit
	}
	return limit
}
