// Package netp2p implements C11: the HTTP/JSON gossip and RPC overlay nodes
// use to exchange transactions, slices, and blocks, plus peer discovery and
// handshake/bearer-token auth (spec §4.10/§6).
package netp2p

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Discovery bounds (spec §4.10).
const (
	MaxPeersToAsk    = 3
	MaxPeersPerQuery = 25
	MaxConnections   = 50
)

// NodeDTO is the wire shape peers exchange during handshake and discovery.
type NodeDTO struct {
	Address string   `json:"address"`
	Host    string   `json:"host"`
	Version string   `json:"version"`
	Chains  []string `json:"chains"`
	Token   string   `json:"token"`
	Expire  int64    `json:"expire"`
}

// Registry tracks known peer addresses and which of them are currently
// active, plus the bearer tokens this node has issued to inbound peers. It
// is multi-writer with a single lock (spec §5: "the peer list is
// multi-writer with a single lock").
type Registry struct {
	mu sync.Mutex

	known  map[string]NodeDTO // address -> last-seen info, never pruned on disconnect
	active map[string]NodeDTO // address -> info, pruned on connection failure

	// issuedTokens maps a bearer token this node handed out at handshake
	// time back to the peer it belongs to, for try-token / authenticated
	// GETs.
	issuedTokens map[string]NodeDTO
}

// NewRegistry creates an empty peer registry.
func NewRegistry() *Registry {
	return &Registry{
		known:        make(map[string]NodeDTO),
		active:       make(map[string]NodeDTO),
		issuedTokens: make(map[string]NodeDTO),
	}
}

// Handshake records the remote peer as known+active and issues it a fresh
// bearer token, unless MaxConnections is already reached.
func (r *Registry) Handshake(peer NodeDTO) (token string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, already := r.active[peer.Address]; !already && len(r.active) >= MaxConnections {
		return "", fmt.Errorf("netp2p: at MaxConnections (%d)", MaxConnections)
	}

	token, err = newToken()
	if err != nil {
		return "", err
	}
	peer.Token = token
	r.known[peer.Address] = peer
	r.active[peer.Address] = peer
	r.issuedTokens[token] = peer
	return token, nil
}

// TryToken echoes the peer info associated with token, if it is valid.
func (r *Registry) TryToken(token string) (NodeDTO, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.issuedTokens[token]
	if !ok {
		return NodeDTO{}, false
	}
	if peer.Expire != 0 && peer.Expire < time.Now().Unix() {
		return NodeDTO{}, false
	}
	return peer, true
}

// Disconnect removes address from the active set but keeps it in known, so
// the discovery loop can re-probe it later (spec §4.10: "a connection
// failure triggers removal from the active set but keeps the address in
// 'known' for re-probe").
func (r *Registry) Disconnect(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, address)
}

// Reset clears both the known and active sets.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known = make(map[string]NodeDTO)
	r.active = make(map[string]NodeDTO)
	r.issuedTokens = make(map[string]NodeDTO)
}

// Active returns a snapshot of currently active peers.
func (r *Registry) Active() []NodeDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NodeDTO, 0, len(r.active))
	for _, p := range r.active {
		out = append(out, p)
	}
	return out
}

// Known returns a snapshot of every known peer, active or not.
func (r *Registry) Known() []NodeDTO {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NodeDTO, 0, len(r.known))
	for _, p := range r.known {
		out = append(out, p)
	}
	return out
}

// MarkKnown records addr as discovered (e.g. returned by a peer's
// peer-list), without connecting to it yet.
func (r *Registry) MarkKnown(peer NodeDTO) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.known[peer.Address]; !exists {
		r.known[peer.Address] = peer
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("netp2p: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
