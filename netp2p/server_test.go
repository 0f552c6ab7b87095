package netp2p

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bywise/chain"
	"bywise/kv"
	"bywise/mempool"
	"bywise/repo"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	r := repo.New(kv.NewMemory())
	pool := mempool.New(nil)
	self := NodeDTO{Address: "BWSnodeA", Host: "http://nodea.local", Version: "1"}
	s := New(self, r, pool, map[string]BlockTree{}, NewRegistry(), nil, nil)
	s.AdminToken = "supersecret"
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHandshakeIssuesToken(t *testing.T) {
	_, ts := newTestServer(t)
	body, _ := json.Marshal(NodeDTO{Address: "BWSnodeB", Host: "http://nodeb.local", Version: "1"})
	resp, err := http.Post(ts.URL+"/api/v2/nodes/handshake", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got NodeDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.NotEmpty(t, got.Token)
}

func TestTryTokenRoundTrip(t *testing.T) {
	s, ts := newTestServer(t)
	token, err := s.Peers.Handshake(NodeDTO{Address: "BWSnodeB", Host: "http://nodeb.local"})
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v2/nodes/try-token", nil)
	req.Header.Set("Authorization", "Node "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTryTokenRejectsUnknown(t *testing.T) {
	_, ts := newTestServer(t)
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v2/nodes/try-token", nil)
	req.Header.Set("Authorization", "Node bogus")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func sampleTx() *chain.Transaction {
	tx := &chain.Transaction{
		Chain: "main", Version: 1, Type: chain.TxNone,
		From: []chain.Address{"BWSalice"}, To: []chain.Address{"BWSbob"}, Amount: []string{"10"},
		Fee: "0", Data: chain.NoneData{}, Created: 1000, Sign: [][]byte{{}},
	}
	tx.Hash = tx.ComputeHash()
	return tx
}

func TestPostTransactionThenLookupFromPool(t *testing.T) {
	_, ts := newTestServer(t)
	tx := sampleTx()
	body, _ := json.Marshal(tx)
	resp, err := http.Post(ts.URL+"/api/v2/transactions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/v2/transactions/hash/" + tx.Hash.Hex())
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var got chain.Transaction
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&got))
	require.Equal(t, tx.Hash, got.Hash)
}

func TestPostTransactionRejectsBadHash(t *testing.T) {
	_, ts := newTestServer(t)
	tx := sampleTx()
	tx.Hash = chain.Hash{0xff}
	body, _ := json.Marshal(tx)
	resp, err := http.Post(ts.URL+"/api/v2/transactions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatisticsRequiresAdminToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v2/auth/statistics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v2/auth/statistics", nil)
	req.Header.Set("Authorization", "Bearer supersecret")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}
