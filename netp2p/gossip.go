package netp2p

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Gossip topics (spec §4.10).
const (
	TopicNewTx    = "new_tx"
	TopicNewSlice = "new_slice"
	TopicNewBlock = "new_block"
	TopicFindTx   = "find_tx"
	TopicFindSlice = "find_slice"
	TopicFindBlock = "find_block"
)

// peerIOTimeout bounds every outbound peer request (spec §5: "peer RPCs
// 10s").
const peerIOTimeout = 10 * time.Second

// Gossiper forwards gossip items to every active peer, skipping any peer
// that has already seen (topic, hash) and any peer I/O that exceeds
// peerIOTimeout.
type Gossiper struct {
	peers  *Registry
	dedup  *Dedup
	client *http.Client
	log    *logrus.Logger
}

// NewGossiper wires a Gossiper over peers/dedup. log may be nil.
func NewGossiper(peers *Registry, dedup *Dedup, log *logrus.Logger) *Gossiper {
	if log == nil {
		log = logrus.New()
	}
	return &Gossiper{
		peers:  peers,
		dedup:  dedup,
		client: &http.Client{Timeout: peerIOTimeout},
		log:    log,
	}
}

// Broadcast forwards item (already JSON-encodable) under topic, tagged by
// hash for de-dup, to every active peer that has not already seen it. It
// does not block the caller on slow peers beyond peerIOTimeout each.
func (g *Gossiper) Broadcast(topic, hash string, item any) {
	body, err := json.Marshal(item)
	if err != nil {
		g.log.WithError(err).Warn("netp2p: gossip marshal failed")
		return
	}

	path := gossipPath(topic)
	for _, peer := range g.peers.Active() {
		if !g.dedup.ShouldForward(peer.Address, topic, hash) {
			continue
		}
		go g.post(peer, path, body)
	}
}

func (g *Gossiper) post(peer NodeDTO, path string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), peerIOTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/v2%s", peer.Host, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Node "+peer.Token)

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.WithField("peer", peer.Address).WithError(err).Debug("netp2p: gossip post failed, disconnecting")
		g.peers.Disconnect(peer.Address)
		return
	}
	defer resp.Body.Close()
}

func gossipPath(topic string) string {
	switch topic {
	case TopicNewTx, TopicFindTx:
		return "/transactions"
	case TopicNewSlice, TopicFindSlice:
		return "/slices"
	case TopicNewBlock, TopicFindBlock:
		return "/blocks"
	default:
		return "/" + topic
	}
}
