package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"bywise/blocktree"
	"bywise/bus"
	"bywise/chain"
	"bywise/config"
	"bywise/envstore"
	"bywise/feeconfig"
	"bywise/kv"
	"bywise/mempool"
	"bywise/mint"
	"bywise/netp2p"
	"bywise/pipeline"
	"bywise/repo"
	"bywise/txexec"
)

const pipelineTick = 250 * time.Millisecond

// genesisRecord is genesis.json: everything BuildGenesisBlock needs,
// persisted so -start can re-derive the same genesis block deterministically
// on every run without replaying the full historical block DAG.
type genesisRecord struct {
	ChainID    string                   `json:"chainId"`
	Admins     []chain.Address          `json:"admins"`
	Validators []chain.Address          `json:"validators"`
	Balances   map[chain.Address]string `json:"balances"`
	Created    int64                    `json:"created"`
}

func genesisPath(chainDir string) string {
	return filepath.Join(chainDir, "genesis.json")
}

func saveGenesis(chainDir string, g genesisRecord) error {
	b, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(genesisPath(chainDir), b, 0o644)
}

func loadGenesis(chainDir string) (genesisRecord, error) {
	b, err := os.ReadFile(genesisPath(chainDir))
	if err != nil {
		return genesisRecord{}, fmt.Errorf("genesis: %w", err)
	}
	var g genesisRecord
	if err := json.Unmarshal(b, &g); err != nil {
		return genesisRecord{}, fmt.Errorf("genesis: parse %s: %w", genesisPath(chainDir), err)
	}
	return g, nil
}

// staticValidators is the mint.ValidatorSource this node runs with: the
// validator set genesis seeded, held fixed for the process lifetime.
// Re-reading a chain's live "access:validator:*" set would need a
// by-prefix enumeration neither txexec nor envstore expose (see mint's
// DESIGN.md entry); a long-running deployment that adds/removes
// validators after genesis needs a restart to pick up the change, a
// documented limitation rather than a silent gap.
type staticValidators []chain.Address

func (s staticValidators) Validators(chainID string) []chain.Address { return s }

// Node wires every C1-C13 package together for one chain, the way
// cmd/bywise's flag-based CLI starts it.
type Node struct {
	chainID  string
	dir      string
	identity identity
	log      *logrus.Logger

	store    kv.Store
	env      *envstore.Store
	fees     *feeconfig.Engine
	tree     *blocktree.Tree
	txx      *txexec.Engine
	pool     *mempool.Pool
	repo     *repo.Repo
	pipe     *pipeline.Engine
	mintEng  *mint.Engine
	events   *bus.Bus
	peers    *netp2p.Registry
	gossip   *netp2p.Gossiper
	server   *netp2p.Server
	stopRepo func()
}

// openNode opens an existing chain directory (created previously by
// newChain) and wires the full node stack around it.
func openNode(chainDir string, cfg *config.Config, log *logrus.Logger) (*Node, error) {
	g, err := loadGenesis(chainDir)
	if err != nil {
		return nil, err
	}
	id, err := loadIdentity(chainDir)
	if err != nil {
		return nil, err
	}

	kvStore, err := kv.OpenLevelStore(filepath.Join(chainDir, "kv"))
	if err != nil {
		return nil, fmt.Errorf("node: open store: %w", err)
	}

	env := envstore.New(kvStore, nil)
	tree := blocktree.New(g.ChainID)
	r := repo.New(kvStore)
	pool := mempool.New(log)
	eventBus := bus.New()

	loader := txexec.NewEnvContractLoader(env)
	placeholderFees := feeconfig.New(env, nil)
	placeholderTxx := txexec.New(env, placeholderFees, loader, cfg.VM.MaxReentry*10_000+50_000)

	pipe := pipeline.New(g.ChainID, tree, env, placeholderTxx, pool, pool, uint64(cfg.Consensus.ReorgWindow), log)

	// feeconfig needs a HeightResolver that is itself the pipeline engine,
	// so txexec is rebuilt around the real pipeline and swapped in (the
	// two-phase wiring pipeline_test.go's newHarness documents).
	fees := feeconfig.New(env, pipe)
	txx := txexec.New(env, fees, loader, cfg.VM.MaxReentry*10_000+50_000)
	pipe.SetTxExec(txx)
	pipe.SetEventBus(eventBus)

	genesisBlock, genesisTxs, genesisSlice, err := chain.BuildGenesisBlock(chain.GenesisConfig{
		ChainID: g.ChainID, Admins: g.Admins, Validators: g.Validators,
		Balances: g.Balances, Created: g.Created, Version: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("node: rebuild genesis: %w", err)
	}
	if err := tree.AddGenesis(genesisBlock); err != nil {
		return nil, fmt.Errorf("node: add genesis: %w", err)
	}
	pool.AddSlice(genesisSlice)
	for i := range genesisTxs {
		pool.AddTx(g.ChainID, &genesisTxs[i])
	}
	if err := pipe.Bootstrap(genesisBlock.Hash, genesisTxs); err != nil {
		return nil, fmt.Errorf("node: bootstrap genesis: %w", err)
	}
	if err := tree.SetStatus(genesisBlock.Hash, chain.BlockImmutable); err != nil {
		return nil, fmt.Errorf("node: mark genesis immutable: %w", err)
	}

	stopPersist, err := repo.PersistImmutableBlocks(eventBus, tree, pool, pool, r)
	if err != nil {
		return nil, fmt.Errorf("node: wire persistence: %w", err)
	}

	peers := netp2p.NewRegistry()
	dedup := netp2p.NewDedup()
	gossip := netp2p.NewGossiper(peers, dedup, log)

	trees := map[string]netp2p.BlockTree{g.ChainID: tree}
	self := netp2p.NodeDTO{
		Address: string(id.Address),
		Host:    cfg.Network.Host + ":" + cfg.Network.Port,
		Version: "1",
		Chains:  []string{g.ChainID},
	}
	server := netp2p.New(self, r, pool, trees, peers, gossip, log)
	server.Balances = &balanceReader{env: env, txx: txx, pipe: pipe, tree: tree}
	server.Sim = &simulator{txx: txx, pipe: pipe, tree: tree}
	server.AdminToken = cfg.Network.Token

	n := &Node{
		chainID: g.ChainID, dir: chainDir, identity: id, log: log,
		store: kvStore, env: env, fees: fees, tree: tree, txx: txx,
		pool: pool, repo: r, pipe: pipe, events: eventBus,
		peers: peers, gossip: gossip, server: server, stopRepo: stopPersist,
	}

	if isValidator(g.Validators, id.Address) {
		priv, err := id.privateKey()
		if err != nil {
			return nil, fmt.Errorf("node: validator key: %w", err)
		}
		signer := mint.NewLocalSigner(id.Address, priv)
		n.mintEng = mint.New(g.ChainID, id.Address, tree, pool, fees, staticValidators(g.Validators), signer, gossip, log)
	}
	return n, nil
}

func isValidator(vs []chain.Address, addr chain.Address) bool {
	for _, v := range vs {
		if v == addr {
			return true
		}
	}
	return false
}

// Run starts the pipeline loop, the minting loop (if this node is a
// validator), and the HTTP server, blocking until stop is closed.
func (n *Node) Run(stop <-chan struct{}, addr string, tlsCert, tlsKey string) error {
	go n.pipe.Run(stop, pipelineTick)
	if n.mintEng != nil {
		go n.mintEng.Run(stop)
	}

	httpSrv := &http.Server{Addr: addr, Handler: n.server.Router()}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsCert != "" && tlsKey != "" {
			err = httpSrv.ListenAndServeTLS(tlsCert, tlsKey)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-stop:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		n.stopRepo()
		return <-errCh
	case err := <-errCh:
		n.stopRepo()
		return err
	}
}
