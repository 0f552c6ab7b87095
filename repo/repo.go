package repo

import (
	"encoding/json"
	"fmt"

	"bywise/chain"
	"bywise/kv"
)

// Repo is the node's single persistence gateway: every other package reads
// and writes chain data through it instead of touching kv.Store directly.
type Repo struct {
	store kv.Store
}

// New wraps store in a Repo.
func New(store kv.Store) *Repo {
	return &Repo{store: store}
}

// --- transactions -----------------------------------------------------

// PutTransaction stores tx and refreshes its from/to/foreignKey indices.
func (r *Repo) PutTransaction(tx *chain.Transaction) error {
	blob, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("repo: marshal tx: %w", err)
	}
	hashHex := tx.Hash.Hex()

	b := r.store.NewBatch()
	b.Put(txPrimaryKey(tx.Chain, hashHex), blob)
	b.Put(txLastKey(tx.Chain), []byte(hashHex))
	for _, from := range tx.From {
		b.Put(txByFromKey(tx.Chain, string(from), tx.Created, hashHex), []byte(hashHex))
	}
	for _, to := range tx.To {
		b.Put(txByToKey(tx.Chain, string(to), tx.Created, hashHex), []byte(hashHex))
	}
	for _, fk := range tx.ForeignKeys {
		b.Put(txByForeignKeyKey(tx.Chain, fk, hashHex), []byte(hashHex))
	}
	return b.Write()
}

// GetTransactionByHash fetches a transaction by its canonical hash.
func (r *Repo) GetTransactionByHash(chainID, hashHex string) (*chain.Transaction, error) {
	blob, err := r.store.Get(txPrimaryKey(chainID, hashHex))
	if err != nil {
		return nil, err
	}
	var tx chain.Transaction
	if err := json.Unmarshal(blob, &tx); err != nil {
		return nil, fmt.Errorf("repo: unmarshal tx: %w", err)
	}
	return &tx, nil
}

// LastTransaction returns the most recently stored transaction for chainID.
func (r *Repo) LastTransaction(chainID string) (*chain.Transaction, error) {
	hashBytes, err := r.store.Get(txLastKey(chainID))
	if err != nil {
		return nil, err
	}
	return r.GetTransactionByHash(chainID, string(hashBytes))
}

// TransactionsByFrom returns every tx hash sent by from, oldest first.
func (r *Repo) TransactionsByFrom(chainID, from string) ([]string, error) {
	return r.scanHashes(txByFromPrefix(chainID, from))
}

// TransactionsByTo returns every tx hash addressed to "to", oldest first.
func (r *Repo) TransactionsByTo(chainID, to string) ([]string, error) {
	return r.scanHashes(txByToPrefix(chainID, to))
}

// TransactionsByForeignKey returns every tx hash carrying fk.
func (r *Repo) TransactionsByForeignKey(chainID, fk string) ([]string, error) {
	return r.scanHashes(txByForeignKeyPrefix(chainID, fk))
}

func (r *Repo) scanHashes(prefix []byte) ([]string, error) {
	it := r.store.Iterator(prefix)
	defer it.Close()
	var out []string
	for it.Next() {
		out = append(out, string(it.Value()))
	}
	return out, it.Error()
}

// --- blocks -------------------------------------------------------------

// PutBlock stores b and refreshes its height index. No separate tip pointer
// is written; LastBlock derives the tip from the height index.
func (r *Repo) PutBlock(b *chain.Block) error {
	blob, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("repo: marshal block: %w", err)
	}
	hashHex := b.Hash.Hex()

	batch := r.store.NewBatch()
	batch.Put(blockPrimaryKey(b.Chain, hashHex), blob)
	batch.Put(blockByHeightKey(b.Chain, b.Height), []byte(hashHex))
	return batch.Write()
}

// GetBlockByHash fetches a block by its hash.
func (r *Repo) GetBlockByHash(chainID, hashHex string) (*chain.Block, error) {
	blob, err := r.store.Get(blockPrimaryKey(chainID, hashHex))
	if err != nil {
		return nil, err
	}
	var b chain.Block
	if err := json.Unmarshal(blob, &b); err != nil {
		return nil, fmt.Errorf("repo: unmarshal block: %w", err)
	}
	return &b, nil
}

// GetBlockByHeight fetches the block stored at height, if any.
func (r *Repo) GetBlockByHeight(chainID string, height uint64) (*chain.Block, error) {
	hashBytes, err := r.store.Get(blockByHeightKey(chainID, height))
	if err != nil {
		return nil, err
	}
	return r.GetBlockByHash(chainID, string(hashBytes))
}

// LastBlock returns the highest-height block stored for chainID.
func (r *Repo) LastBlock(chainID string) (*chain.Block, error) {
	it := r.store.Iterator(blockByHeightPrefix(chainID))
	defer it.Close()
	var lastHash string
	for it.Next() {
		lastHash = string(it.Value())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if lastHash == "" {
		return nil, kv.ErrNotFound
	}
	return r.GetBlockByHash(chainID, lastHash)
}

// BlockPack returns up to limit consecutive blocks starting at height,
// backing the `/blocks/pack/:chain/:height` endpoint.
func (r *Repo) BlockPack(chainID string, height uint64, limit int) ([]*chain.Block, error) {
	var out []*chain.Block
	for i := 0; i < limit; i++ {
		b, err := r.GetBlockByHeight(chainID, height+uint64(i))
		if err == kv.ErrNotFound {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// --- slices ---------------------------------------------------------------

// PutSlice stores s and refreshes its block-height index.
func (r *Repo) PutSlice(s *chain.Slice) error {
	blob, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("repo: marshal slice: %w", err)
	}
	hashHex := s.Hash.Hex()

	batch := r.store.NewBatch()
	batch.Put(slicePrimaryKey(s.Chain, hashHex), blob)
	batch.Put(sliceByBlockKey(s.Chain, s.BlockHeight, s.Height, hashHex), []byte(hashHex))
	return batch.Write()
}

// GetSliceByHash fetches a slice by its hash.
func (r *Repo) GetSliceByHash(chainID, hashHex string) (*chain.Slice, error) {
	blob, err := r.store.Get(slicePrimaryKey(chainID, hashHex))
	if err != nil {
		return nil, err
	}
	var s chain.Slice
	if err := json.Unmarshal(blob, &s); err != nil {
		return nil, fmt.Errorf("repo: unmarshal slice: %w", err)
	}
	return &s, nil
}

// LastSlice returns the highest-sequence slice known for blockHeight.
func (r *Repo) LastSlice(chainID string, blockHeight uint64) (*chain.Slice, error) {
	it := r.store.Iterator(sliceByBlockPrefix(chainID, blockHeight))
	defer it.Close()
	var lastHash string
	for it.Next() {
		lastHash = string(it.Value())
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if lastHash == "" {
		return nil, kv.ErrNotFound
	}
	return r.GetSliceByHash(chainID, lastHash)
}

// SlicesForBlock returns every slice attached to blockHeight in ascending
// sequence order.
func (r *Repo) SlicesForBlock(chainID string, blockHeight uint64) ([]*chain.Slice, error) {
	it := r.store.Iterator(sliceByBlockPrefix(chainID, blockHeight))
	defer it.Close()
	var out []*chain.Slice
	for it.Next() {
		s, err := r.GetSliceByHash(chainID, string(it.Value()))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, it.Error()
}

// --- events -----------------------------------------------------------

// PutEvents indexes each event emitted by txHash, both by (contract,event)
// and by (contract,event,key,value) for point lookups on emitted data.
func (r *Repo) PutEvents(chainID, txHash string, events []chain.Event) error {
	batch := r.store.NewBatch()
	for i, ev := range events {
		blob, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("repo: marshal event: %w", err)
		}
		batch.Put(eventByContractEventKey(chainID, string(ev.Contract), ev.Name, txHash, i), blob)
		for j := range ev.Keys {
			if j >= len(ev.Values) {
				break
			}
			batch.Put(eventByKeyValueKey(chainID, string(ev.Contract), ev.Name, ev.Keys[j], ev.Values[j], txHash, i), blob)
		}
	}
	return batch.Write()
}

// EventsByContractEvent returns every event matching (contract, event).
func (r *Repo) EventsByContractEvent(chainID, contract, event string) ([]chain.Event, error) {
	return r.scanEvents(eventByContractEventPrefix(chainID, contract, event))
}

// EventsByKeyValue returns every event matching (contract, event, key, value).
func (r *Repo) EventsByKeyValue(chainID, contract, event, key, value string) ([]chain.Event, error) {
	return r.scanEvents(eventByKeyValuePrefix(chainID, contract, event, key, value))
}

func (r *Repo) scanEvents(prefix []byte) ([]chain.Event, error) {
	it := r.store.Iterator(prefix)
	defer it.Close()
	var out []chain.Event
	for it.Next() {
		var ev chain.Event
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			return nil, fmt.Errorf("repo: unmarshal event: %w", err)
		}
		out = append(out, ev)
	}
	return out, it.Error()
}
