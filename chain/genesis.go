package chain

import "fmt"

// GenesisConfig enumerates everything a chain's genesis block must seed:
// its admin set, its initial validator set, and initial balances.
type GenesisConfig struct {
	ChainID    string
	Admins     []Address
	Validators []Address
	Balances   map[Address]string // address -> decimal string
	Created    int64
	Version    int
}

// genesisCommand builds one unsigned BLOCKCHAIN_COMMAND transaction. Genesis
// commands carry no from/to/amount/sign triples: they are authorized by
// position in the genesis block, not by signature (spec §4.1's admin-check
// exemption).
func genesisCommand(chainID string, created int64, name string, inputs []string) Transaction {
	tx := Transaction{
		Chain:   chainID,
		Version: 1,
		Type:    TxBlockchainCommand,
		Data:    CommandData{Name: name, Inputs: inputs},
		Created: created,
	}
	tx.Hash = tx.ComputeHash()
	return tx
}

// GenesisTransactions renders cfg as the ordered BLOCKCHAIN_COMMAND
// transactions a genesis block carries: admins first, then validators, each
// in the order supplied, then balances in ascending address order.
func GenesisTransactions(cfg GenesisConfig) []Transaction {
	var txs []Transaction
	for _, a := range cfg.Admins {
		txs = append(txs, genesisCommand(cfg.ChainID, cfg.Created, "addAdmin", []string{string(a)}))
	}
	for _, v := range cfg.Validators {
		txs = append(txs, genesisCommand(cfg.ChainID, cfg.Created, "addValidator", []string{string(v)}))
	}
	for _, addr := range sortedBalanceAddrs(cfg.Balances) {
		txs = append(txs, genesisCommand(cfg.ChainID, cfg.Created, "setBalance", []string{string(addr), cfg.Balances[addr]}))
	}
	return txs
}

// sortedBalanceAddrs returns cfg's balance keys in a stable order so that
// two genesis builds from the same map always produce the same tx sequence
// and therefore the same genesis block hash.
func sortedBalanceAddrs(balances map[Address]string) []Address {
	addrs := make([]Address, 0, len(balances))
	for a := range balances {
		addrs = append(addrs, a)
	}
	for i := 1; i < len(addrs); i++ {
		for j := i; j > 0 && addrs[j-1] > addrs[j]; j-- {
			addrs[j-1], addrs[j] = addrs[j], addrs[j-1]
		}
	}
	return addrs
}

// BuildGenesisBlock assembles the single-slice genesis block for cfg. The
// returned transactions must be materialized under the returned block's
// sole slice hash before the block can leave MEMPOOL.
func BuildGenesisBlock(cfg GenesisConfig) (*Block, []Transaction, *Slice, error) {
	if cfg.ChainID == "" {
		return nil, nil, nil, fmt.Errorf("chain: genesis requires a chain id")
	}
	txs := GenesisTransactions(cfg)
	hashes := make([]Hash, len(txs))
	for i := range txs {
		hashes[i] = txs[i].Hash
	}

	version := cfg.Version
	if version == 0 {
		version = 1
	}

	slice := &Slice{
		Chain:             cfg.ChainID,
		Version:           version,
		Height:            0,
		BlockHeight:       0,
		TransactionsCount: len(hashes),
		Transactions:      hashes,
		From:              genesisProposer(cfg),
		Created:           cfg.Created,
		End:               true,
	}
	slice.Hash = slice.ComputeHash()

	block := &Block{
		Chain:             cfg.ChainID,
		Version:           version,
		Height:            0,
		Slices:            []Hash{slice.Hash},
		From:              genesisProposer(cfg),
		Created:           cfg.Created,
		LastHash:          ZeroHash,
		TransactionsCount: len(hashes),
	}
	block.Hash = block.ComputeHash()

	return block, txs, slice, nil
}

// genesisProposer is the nominal proposer recorded on the genesis block and
// slice: the first declared validator, or the zero address for a
// validator-less (e.g. observer-only) chain.
func genesisProposer(cfg GenesisConfig) Address {
	if len(cfg.Validators) > 0 {
		return cfg.Validators[0]
	}
	return ""
}
