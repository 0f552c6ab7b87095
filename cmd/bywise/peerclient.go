package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"bywise/netp2p"
)

// dialTimeout bounds an outbound handshake attempt against a -nodes peer.
const dialTimeout = 10 * time.Second

// bootstrapPeers performs an outbound handshake against every host in nodes
// (the -nodes <csv> flag / NODES env var) and records whichever answer into
// peers, so the discovery loop has something to re-probe even before any
// inbound connection arrives. Unreachable peers are logged and skipped, not
// fatal: spec §7 treats network errors as "logged and retried at the next
// discovery tick", not a startup failure.
func bootstrapPeers(self netp2p.NodeDTO, peers *netp2p.Registry, nodes []string, log *logrus.Logger) {
	for _, host := range nodes {
		peer, err := handshakeWith(self, host)
		if err != nil {
			log.WithField("peer", host).Warn("bootstrap: handshake failed: ", err)
			continue
		}
		peers.MarkKnown(peer)
	}
}

func handshakeWith(self netp2p.NodeDTO, host string) (netp2p.NodeDTO, error) {
	body, err := json.Marshal(self)
	if err != nil {
		return netp2p.NodeDTO{}, err
	}
	url := "http://" + host + "/api/v2/nodes/handshake"
	client := &http.Client{Timeout: dialTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return netp2p.NodeDTO{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return netp2p.NodeDTO{}, fmt.Errorf("handshake %s: status %d", host, resp.StatusCode)
	}
	var peer netp2p.NodeDTO
	if err := json.NewDecoder(resp.Body).Decode(&peer); err != nil {
		return netp2p.NodeDTO{}, err
	}
	peer.Host = host
	return peer, nil
}
