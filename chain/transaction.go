package chain

import (
	"fmt"

	"bywise/cryptoutil"
)

// TxType discriminates how the execution engine dispatches a transaction.
type TxType string

const (
	TxNone               TxType = "NONE"
	TxCommand            TxType = "COMMAND"
	TxContract           TxType = "CONTRACT"
	TxContractExe        TxType = "CONTRACT_EXE"
	TxBlockchainCommand  TxType = "BLOCKCHAIN_COMMAND"
)

// TxOutput is attached to a Transaction after simulation/execution; it is
// never part of the hashed, signed payload.
type TxOutput struct {
	Error    string            `json:"error,omitempty"`
	Logs     []string          `json:"logs,omitempty"`
	Events   []Event           `json:"events,omitempty"`
	Returned []byte            `json:"returned,omitempty"`
	FeeUsed  string            `json:"feeUsed"`
	GasUsed  uint64            `json:"gasUsed"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Event is a contract-emitted log entry, indexed by (contract, name).
type Event struct {
	Contract Address  `json:"contract"`
	Name     string   `json:"name"`
	Keys     []string `json:"keys,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// Transaction is the wire and in-memory representation of spec §3's Tx.
type Transaction struct {
	Chain       string     `json:"chain"`
	Version     int        `json:"version"`
	From        []Address  `json:"from"`
	To          []Address  `json:"to"`
	Amount      []string   `json:"amount"` // arbitrary-precision decimal strings
	Fee         string     `json:"fee"`
	Type        TxType     `json:"type"`
	ForeignKeys []string   `json:"foreignKeys,omitempty"`
	Data        TxData     `json:"-"`
	Created     int64      `json:"created"`
	Hash        Hash       `json:"hash"`
	Sign        [][]byte   `json:"sign"`
	Output      *TxOutput  `json:"output,omitempty"`
}

// Validate checks the structural invariant |from|=|to|=|amount|=|sign|.
func (t *Transaction) Validate() error {
	n := len(t.From)
	if len(t.To) != n || len(t.Amount) != n || len(t.Sign) != n {
		return fmt.Errorf("chain: tx field length mismatch: from=%d to=%d amount=%d sign=%d",
			len(t.From), len(t.To), len(t.Amount), len(t.Sign))
	}
	if n == 0 && t.Type == TxNone {
		return fmt.Errorf("chain: NONE tx must have at least one from/to pair")
	}
	return nil
}

// encodeCore produces the canonical byte encoding over every field except
// Hash/Sign/Output — this is what ComputeHash digests and what each
// signature is taken over.
func (t *Transaction) encodeCore() []byte {
	w := &encoder{}
	w.writeString(t.Chain)
	w.writeUint32(uint32(t.Version))
	w.writeUint32(uint32(len(t.From)))
	for i := range t.From {
		w.writeString(string(t.From[i]))
		w.writeString(string(t.To[i]))
		w.writeString(t.Amount[i])
	}
	w.writeString(t.Fee)
	w.writeString(string(t.Type))
	w.writeUint32(uint32(len(t.ForeignKeys)))
	for _, fk := range t.ForeignKeys {
		w.writeString(fk)
	}
	_ = encodeTxData(w, t.Data)
	w.writeUint64(uint64(t.Created))
	return w.bytes()
}

// ComputeHash deterministically hashes the tx's canonical encoding.
func (t *Transaction) ComputeHash() Hash {
	return Hash(cryptoutil.Sha256(t.encodeCore()))
}

// VerifyHash reports whether t.Hash matches its recomputed digest.
func (t *Transaction) VerifyHash() bool {
	return t.ComputeHash() == t.Hash
}

// VerifySignatures checks that every Sign[i] verifies against From[i]'s
// public key over the tx hash. pubKeys must be supplied in From order (the
// node recovers them from the handshake/mempool submission context;
// cryptoutil never stores key material).
func (t *Transaction) VerifySignatures(pubKeys []PublicKey) error {
	if len(pubKeys) != len(t.From) {
		return fmt.Errorf("chain: expected %d public keys, got %d", len(t.From), len(pubKeys))
	}
	msg := t.Hash[:]
	for i := range t.From {
		if !cryptoutil.VerifySignature(pubKeys[i].Bytes, msg, t.Sign[i]) {
			return fmt.Errorf("chain: signature %d invalid for %s", i, t.From[i])
		}
	}
	return nil
}

// PublicKey pairs a raw ed25519 public key with the address it must match.
type PublicKey struct {
	Address Address
	Bytes   []byte
}

// CanonicalByteSize returns the length of the tx's canonical encoding,
// used by the fee formula's size term (spec §4.3).
func (t *Transaction) CanonicalByteSize() int {
	return len(t.encodeCore())
}

// IDHex returns the lower-case hex transaction hash, used as a map key.
func (t *Transaction) IDHex() string { return t.Hash.Hex() }
