package netp2p

import lru "github.com/hashicorp/golang-lru/v2"

// dedupCapacity bounds how many recently-forwarded (peer, topic, hash)
// entries a node remembers in total, across all peers and topics (spec
// §4.10: "de-dup by hash, LRU of 10k").
const dedupCapacity = 10_000

// Dedup tracks which (topic, hash) pairs have already been forwarded to
// which peer, so a gossip item is forwarded at most once per peer.
type Dedup struct {
	seen *lru.Cache[dedupKey, struct{}]
}

type dedupKey struct {
	peer  string
	topic string
	hash  string
}

// NewDedup creates a dedup tracker with the spec's fixed 10k capacity.
func NewDedup() *Dedup {
	c, err := lru.New[dedupKey, struct{}](dedupCapacity)
	if err != nil {
		// only possible if dedupCapacity <= 0, which is a programmer error.
		panic(err)
	}
	return &Dedup{seen: c}
}

// ShouldForward reports whether (topic, hash) has NOT yet been sent to peer,
// and if so records it as sent.
func (d *Dedup) ShouldForward(peer, topic, hash string) bool {
	k := dedupKey{peer: peer, topic: topic, hash: hash}
	if _, ok := d.seen.Get(k); ok {
		return false
	}
	d.seen.Add(k, struct{}{})
	return true
}
