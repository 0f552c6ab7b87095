package chain

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"bywise/cryptoutil"
)

func signedTransfer(t *testing.T, from Address, pub ed25519.PublicKey, priv ed25519.PrivateKey, to Address, amount string) Transaction {
	t.Helper()
	tx := Transaction{
		Chain:   "main",
		Version: 1,
		From:    []Address{from},
		To:      []Address{to},
		Amount:  []string{amount},
		Fee:     "0.01",
		Type:    TxNone,
		Data:    NoneData{},
		Created: 1700000000,
	}
	tx.Hash = tx.ComputeHash()
	tx.Sign = [][]byte{ed25519.Sign(priv, tx.Hash[:])}
	return tx
}

func newKeyedAddress(t *testing.T) (Address, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr, _, err := cryptoutil.DeriveAddress(pub)
	require.NoError(t, err)
	return Address(addr), pub, priv
}

func TestTransactionHashIsDeterministic(t *testing.T) {
	from, pub, priv := newKeyedAddress(t)
	to, _, _ := newKeyedAddress(t)

	tx1 := signedTransfer(t, from, pub, priv, to, "10.5")
	tx2 := tx1
	tx2.Sign = append([][]byte{}, tx1.Sign...)

	require.Equal(t, tx1.ComputeHash(), tx2.ComputeHash())
	require.True(t, tx1.VerifyHash())
}

func TestTransactionRoundTripIdentityOnHash(t *testing.T) {
	from, pub, priv := newKeyedAddress(t)
	to, _, _ := newKeyedAddress(t)
	tx := signedTransfer(t, from, pub, priv, to, "1")

	encoded, err := json.Marshal(tx)
	require.NoError(t, err)
	var decoded Transaction
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	require.Equal(t, tx.Hash, decoded.ComputeHash())
}

func TestTransactionVerifySignatures(t *testing.T) {
	from, pub, priv := newKeyedAddress(t)
	to, _, _ := newKeyedAddress(t)
	tx := signedTransfer(t, from, pub, priv, to, "1")

	err := tx.VerifySignatures([]PublicKey{{Address: from, Bytes: pub}})
	require.NoError(t, err)

	tx.Sign[0][0] ^= 0xFF
	err = tx.VerifySignatures([]PublicKey{{Address: from, Bytes: pub}})
	require.Error(t, err)
}

func TestTransactionValidateRejectsMismatchedLengths(t *testing.T) {
	tx := Transaction{
		From:   []Address{"a", "b"},
		To:     []Address{"c"},
		Amount: []string{"1", "2"},
		Sign:   [][]byte{{1}, {2}},
	}
	require.Error(t, tx.Validate())
}

func TestTransactionDifferentDataProducesDifferentHash(t *testing.T) {
	from, pub, priv := newKeyedAddress(t)
	to, _, _ := newKeyedAddress(t)
	_ = priv

	base := Transaction{
		Chain: "main", Version: 1,
		From: []Address{from}, To: []Address{to}, Amount: []string{"1"},
		Fee: "0", Type: TxCommand, Created: 1700000000,
	}
	a := base
	a.Data = CommandData{Name: "setBalance", Inputs: []string{"x", "1"}}
	b := base
	b.Data = CommandData{Name: "setBalance", Inputs: []string{"x", "2"}}

	require.NotEqual(t, a.ComputeHash(), b.ComputeHash())
}
