package netp2p

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"bywise/chain"
	"bywise/mempool"
	"bywise/repo"
)

// ioTimeout bounds every server-side read/write (spec §5: "peer RPCs 10s").
const ioTimeout = 10 * time.Second

// BlockTree is the subset of blocktree.Tree the server needs to ingest
// gossiped blocks/slices without importing blocktree directly (keeps
// netp2p decoupled from the block-tree's internal locking).
type BlockTree interface {
	AddBlock(b *chain.Block) (needsParentFetch bool, err error)
	AddSlice(s *chain.Slice) error
}

// BalanceReader answers /wallets/:address/:chain.
type BalanceReader interface {
	Balance(chainID string, address chain.Address) (balance string, found bool, err error)
}

// Simulator answers /contracts/simulate.
type Simulator interface {
	Simulate(chainID string, tx *chain.Transaction) (*chain.TxOutput, error)
}

// Server is the node's HTTP/JSON gossip and RPC surface (spec §6).
type Server struct {
	Self      NodeDTO
	Repo      *repo.Repo
	Pool      *mempool.Pool
	Trees     map[string]BlockTree
	Peers     *Registry
	Gossip    *Gossiper
	Balances  BalanceReader
	Sim       Simulator
	AdminToken string // TOKEN env var; gates /auth/statistics

	log    *logrus.Logger
	router chi.Router
}

// New wires a Server. log may be nil.
func New(self NodeDTO, r *repo.Repo, pool *mempool.Pool, trees map[string]BlockTree, peers *Registry, gossip *Gossiper, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{Self: self, Repo: r, Pool: pool, Trees: trees, Peers: peers, Gossip: gossip, log: log}
	s.router = s.buildRouter()
	return s
}

// Router exposes the underlying chi router, e.g. for http.Server.Handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(ioTimeout))
	r.Use(requestLogger(s.log))

	r.Route("/api/v2", func(r chi.Router) {
		r.Post("/nodes/handshake", s.handleHandshake)
		r.Get("/nodes/try-token", s.handleTryToken)

		r.Post("/transactions", s.handlePostTransaction)
		r.Get("/transactions/hash/{hash}", s.handleTxByHash)
		r.Get("/transactions/last/{chain}", s.handleTxLast)

		r.Post("/slices", s.handlePostSlice)
		r.Get("/slices/hash/{hash}", s.handleSliceByHash)
		r.Get("/slices/last/{chain}", s.handleSliceLast)

		r.Post("/blocks", s.handlePostBlock)
		r.Get("/blocks/hash/{hash}", s.handleBlockByHash)
		r.Get("/blocks/last/{chain}", s.handleBlockLast)
		r.Get("/blocks/pack/{chain}/{height}", s.handleBlockPack)

		r.Get("/wallets/{address}/{chain}", s.handleWallet)
		r.Post("/contracts/simulate", s.handleSimulate)

		r.Get("/auth/statistics", s.handleStatistics)
	})
	return r
}

func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, req)
			log.WithField("method", req.Method).WithField("path", req.URL.Path).
				WithField("elapsed", time.Since(start)).Debug("netp2p: request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// --- handshake / auth --------------------------------------------------

func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	var peer NodeDTO
	if err := json.NewDecoder(r.Body).Decode(&peer); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if peer.Address == "" || peer.Host == "" {
		http.Error(w, "unreachable peer", http.StatusBadRequest)
		return
	}
	token, err := s.Peers.Handshake(peer)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	reply := s.Self
	reply.Token = token
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleTryToken(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	peer, ok := s.Peers.TryToken(token)
	if !ok {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, peer)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Node "
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

// --- transactions --------------------------------------------------------

func (s *Server) handlePostTransaction(w http.ResponseWriter, r *http.Request) {
	var tx chain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := tx.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !tx.VerifyHash() {
		http.Error(w, "hash mismatch", http.StatusBadRequest)
		return
	}
	s.Pool.AddTx(tx.Chain, &tx)
	if s.Gossip != nil {
		s.Gossip.Broadcast(TopicNewTx, tx.Hash.Hex(), &tx)
	}
	writeJSON(w, http.StatusOK, &tx)
}

func (s *Server) handleTxByHash(w http.ResponseWriter, r *http.Request) {
	chainID := r.URL.Query().Get("chain")
	hash := chi.URLParam(r, "hash")
	if tx, ok := s.Pool.TxByHash(mustHash(hash)); ok {
		writeJSON(w, http.StatusOK, tx)
		return
	}
	tx, err := s.Repo.GetTransactionByHash(chainID, hash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleTxLast(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chain")
	tx, err := s.Repo.LastTransaction(chainID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// --- slices ---------------------------------------------------------------

func (s *Server) handlePostSlice(w http.ResponseWriter, r *http.Request) {
	var sl chain.Slice
	if err := json.NewDecoder(r.Body).Decode(&sl); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sl.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !sl.VerifyHash() {
		http.Error(w, "hash mismatch", http.StatusBadRequest)
		return
	}
	if tree, ok := s.Trees[sl.Chain]; ok {
		if err := tree.AddSlice(&sl); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	// the pipeline's block-completion check resolves a block's slice list by
	// hash through the mempool, not the tree's best-sequence index, so a
	// gossiped slice has to land in both.
	s.Pool.AddSlice(&sl)
	if s.Gossip != nil {
		s.Gossip.Broadcast(TopicNewSlice, sl.Hash.Hex(), &sl)
	}
	writeJSON(w, http.StatusOK, &sl)
}

func (s *Server) handleSliceByHash(w http.ResponseWriter, r *http.Request) {
	chainID := r.URL.Query().Get("chain")
	hash := chi.URLParam(r, "hash")
	sl, err := s.Repo.GetSliceByHash(chainID, hash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sl)
}

func (s *Server) handleSliceLast(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chain")
	heightStr := r.URL.Query().Get("blockHeight")
	height, _ := strconv.ParseUint(heightStr, 10, 64)
	sl, err := s.Repo.LastSlice(chainID, height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sl)
}

// --- blocks -----------------------------------------------------------

func (s *Server) handlePostBlock(w http.ResponseWriter, r *http.Request) {
	var b chain.Block
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := b.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !b.VerifyHash() {
		http.Error(w, "hash mismatch", http.StatusBadRequest)
		return
	}
	needsFetch := false
	if tree, ok := s.Trees[b.Chain]; ok {
		var err error
		needsFetch, err = tree.AddBlock(&b)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if s.Gossip != nil {
		s.Gossip.Broadcast(TopicNewBlock, b.Hash.Hex(), &b)
		if needsFetch {
			s.Gossip.Broadcast(TopicFindBlock, b.LastHash.Hex(), map[string]string{"chain": b.Chain, "hash": b.LastHash.Hex()})
		}
	}
	writeJSON(w, http.StatusOK, &b)
}

func (s *Server) handleBlockByHash(w http.ResponseWriter, r *http.Request) {
	chainID := r.URL.Query().Get("chain")
	hash := chi.URLParam(r, "hash")
	b, err := s.Repo.GetBlockByHash(chainID, hash)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBlockLast(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chain")
	b, err := s.Repo.LastBlock(chainID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBlockPack(w http.ResponseWriter, r *http.Request) {
	chainID := chi.URLParam(r, "chain")
	height, err := strconv.ParseUint(chi.URLParam(r, "height"), 10, 64)
	if err != nil {
		http.Error(w, "bad height", http.StatusBadRequest)
		return
	}
	limit := 32
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	blocks, err := s.Repo.BlockPack(chainID, height, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// --- wallets / contracts -----------------------------------------------

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	address := chain.Address(chi.URLParam(r, "address"))
	chainID := chi.URLParam(r, "chain")
	if s.Balances == nil {
		http.Error(w, "balances unavailable", http.StatusServiceUnavailable)
		return
	}
	balance, found, err := s.Balances.Balance(chainID, address)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !found {
		balance = "0"
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": string(address), "chain": chainID, "balance": balance})
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var tx chain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.Sim == nil {
		http.Error(w, "simulation unavailable", http.StatusServiceUnavailable)
		return
	}
	out, err := s.Sim.Simulate(tx.Chain, &tx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- admin ----------------------------------------------------------------

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	if s.AdminToken == "" || r.Header.Get("Authorization") != "Bearer "+s.AdminToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activePeers":  len(s.Peers.Active()),
		"knownPeers":   len(s.Peers.Known()),
		"mempoolSize":  s.Pool.Size(),
	})
}

func mustHash(hex string) chain.Hash {
	h, err := chain.HashFromHex(hex)
	if err != nil {
		return chain.Hash{}
	}
	return h
}
