// Command bywise runs one permissioned-chain node: its envstore, block
// tree, mempool, execution engine, minting loop, and gossip/RPC server
// (spec §6). Flags are parsed with the standard library's flag package
// rather than cobra/pflag: spec §6's flags are single-dash multi-character
// ("-new-chain", "-start-debug"), which pflag's GNU-style parser would read
// as bundled single-char shorthands; flag.Parse treats "-name" and
// "--name" identically regardless of length, which is what the literal CLI
// surface needs.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"bywise/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		newChainName = flag.String("new-chain", "", "create a new chain directory with this name and exit")
		chainDir     = flag.String("chain", "", "path to an existing chain directory")
		start        = flag.Bool("start", false, "start the node")
		startDebug   = flag.Bool("start-debug", false, "start the node with debug logging")
		port         = flag.String("port", "", "HTTP listen port, overrides PORT/config")
		host         = flag.String("host", "", "HTTP listen host, overrides HOST/config")
		nodesCSV     = flag.String("nodes", "", "comma-separated bootstrap peer host:port list")
		newWallet    = flag.Bool("new-wallet", false, "print a fresh address+mnemonic and exit")
		reset        = flag.Bool("reset", false, "wipe the chain's kv store before starting")
		https        = flag.Bool("https", false, "serve TLS, overrides ENABLE_HTTPS/config")
		keyPath      = flag.String("key", "", "TLS private key path")
		certPath     = flag.String("cert", "", "TLS certificate path")
	)
	flag.Parse()

	log := logrus.New()
	if *startDebug {
		log.SetLevel(logrus.DebugLevel)
	}

	if *newWallet {
		if err := runNewWallet(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	if *newChainName != "" {
		if err := newChain(*newChainName); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	if !*start && !*startDebug {
		fmt.Fprintln(os.Stderr, "bywise: nothing to do (pass -start, -new-chain, or -new-wallet)")
		return 1
	}
	if *chainDir == "" {
		fmt.Fprintln(os.Stderr, "bywise: -start requires -chain <path>")
		return 1
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	overlayFlags(cfg, *port, *host, *nodesCSV, *https, *keyPath, *certPath)

	if *reset {
		if err := os.RemoveAll(filepath.Join(*chainDir, "kv")); err != nil {
			fmt.Fprintln(os.Stderr, fmt.Errorf("bywise: reset: %w", err))
			return 1
		}
	}

	node, err := openNode(*chainDir, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	self := node.server.Self
	if len(cfg.Network.Nodes) > 0 {
		go bootstrapPeers(self, node.peers, cfg.Network.Nodes, log)
	}

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		close(stop)
	}()

	addr := cfg.Network.Host + ":" + cfg.Network.Port
	tlsCert, tlsKey := "", ""
	if cfg.Network.EnableHTTPS {
		tlsCert, tlsKey = cfg.Network.CertPath, cfg.Network.KeyPath
	}
	if err := node.Run(stop, addr, tlsCert, tlsKey); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// overlayFlags applies whichever flags were actually passed on top of cfg,
// the highest-precedence layer above file and environment (config.Load
// already resolved those two).
func overlayFlags(cfg *config.Config, port, host, nodesCSV string, https bool, keyPath, certPath string) {
	if port != "" {
		cfg.Network.Port = port
	}
	if host != "" {
		cfg.Network.Host = host
	}
	if nodesCSV != "" {
		cfg.Network.Nodes = splitCSV(nodesCSV)
	}
	if https {
		cfg.Network.EnableHTTPS = true
	}
	if keyPath != "" {
		cfg.Network.KeyPath = keyPath
	}
	if certPath != "" {
		cfg.Network.CertPath = certPath
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
