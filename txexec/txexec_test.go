package txexec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bywise/chain"
	"bywise/envstore"
	"bywise/feeconfig"
	"bywise/kv"
)

type zeroResolver struct{}

func (zeroResolver) CommitAt(chainID string, height uint64) (chain.Hash, bool) {
	return chain.ZeroHash, true
}

func newTestEngine(t *testing.T) (*Engine, *envstore.Store) {
	t.Helper()
	store := envstore.New(kv.NewMemory(), nil)
	fees := feeconfig.New(store, zeroResolver{})
	loader := NewEnvContractLoader(store)
	return New(store, fees, loader, 50_000), store
}

func noneTx(from, to chain.Address, amount string) *chain.Transaction {
	tx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{from}, To: []chain.Address{to}, Amount: []string{amount},
		Fee: "0", Type: chain.TxNone, Data: chain.NoneData{}, Created: 1000,
		Sign: [][]byte{{}},
	}
	tx.Hash = tx.ComputeHash()
	return tx
}

func commandTx(from chain.Address, name string, inputs []string) *chain.Transaction {
	tx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{from}, To: []chain.Address{from}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxCommand, Data: chain.CommandData{Name: name, Inputs: inputs}, Created: 1000,
		Sign: [][]byte{{}},
	}
	tx.Hash = tx.ComputeHash()
	return tx
}

func bootstrapAdmin(t *testing.T, eng *Engine, store *envstore.Store, admin chain.Address) chain.Hash {
	t.Helper()
	tx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{admin}, To: []chain.Address{admin}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxBlockchainCommand,
		Data: chain.CommandData{Name: "addAdmin", Inputs: []string{string(admin)}}, Created: 0,
		Sign: [][]byte{{}},
	}
	tx.Hash = tx.ComputeHash()
	out, err := eng.Execute("main", chain.ZeroHash, tx, ExecOptions{BlockHeight: 0})
	require.NoError(t, err)
	require.Empty(t, out.Output.Error)
	h, err := store.Commit(out.Commit, "genesis")
	require.NoError(t, err)
	return h
}

func TestExecuteNoneTransferCreditsRecipient(t *testing.T) {
	eng, store := newTestEngine(t)
	h0 := bootstrapAdmin(t, eng, store, "BWSgenesis")

	seed := commandTx("BWSgenesis", "setBalance", []string{"BWSalice", "100"})
	out, err := eng.Execute("main", h0, seed, ExecOptions{BlockHeight: 1})
	require.NoError(t, err)
	require.Empty(t, out.Output.Error)
	h1, err := store.Commit(out.Commit, "seed")
	require.NoError(t, err)

	tx := noneTx("BWSalice", "BWSbob", "30")
	out2, err := eng.Execute("main", h1, tx, ExecOptions{BlockHeight: 1})
	require.NoError(t, err)
	require.Empty(t, out2.Output.Error, out2.Output.Error)

	v, found, err := store.Get(out2.Commit, keyBalance+"BWSbob")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "30", string(v))
}

func TestBalanceReadsCommittedTransfer(t *testing.T) {
	eng, store := newTestEngine(t)
	h0 := bootstrapAdmin(t, eng, store, "BWSgenesis")

	seed := commandTx("BWSgenesis", "setBalance", []string{"BWSalice", "100"})
	out, err := eng.Execute("main", h0, seed, ExecOptions{BlockHeight: 1})
	require.NoError(t, err)
	h1, err := store.Commit(out.Commit, "seed")
	require.NoError(t, err)

	ctx := envstore.NewContext("main", h1)
	bal, err := eng.Balance(ctx, "BWSalice")
	require.NoError(t, err)
	require.Equal(t, "100", bal)

	bal, err = eng.Balance(ctx, "BWSnobody")
	require.NoError(t, err)
	require.Equal(t, "0", bal)
}

func TestExecuteNoneInsufficientFundsLeavesStateUnchanged(t *testing.T) {
	eng, _ := newTestEngine(t)
	tx := noneTx("BWSalice", "BWSbob", "30")
	out, err := eng.Execute("main", chain.ZeroHash, tx, ExecOptions{BlockHeight: 1})
	require.NoError(t, err)
	require.Equal(t, "insufficient funds", out.Output.Error)
}

func TestExecuteCommandRejectsNonAdmin(t *testing.T) {
	eng, _ := newTestEngine(t)
	tx := commandTx("BWSrando", "setBalance", []string{"BWSalice", "100"})
	out, err := eng.Execute("main", chain.ZeroHash, tx, ExecOptions{BlockHeight: 1})
	require.NoError(t, err)
	require.NotEmpty(t, out.Output.Error)
}

func TestExecuteBlockchainCommandBypassesAdminAtGenesis(t *testing.T) {
	eng, store := newTestEngine(t)
	h0 := bootstrapAdmin(t, eng, store, "BWSgenesis")
	ctx := envstore.NewContext("main", h0)
	ok, err := eng.IsAdmin(ctx, "BWSgenesis")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestExecuteBlockchainCommandIgnoredPastGenesis(t *testing.T) {
	eng, _ := newTestEngine(t)
	tx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSattacker"}, To: []chain.Address{"BWSattacker"}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxBlockchainCommand,
		Data: chain.CommandData{Name: "addAdmin", Inputs: []string{"BWSattacker"}}, Created: 500,
		Sign: [][]byte{{}},
	}
	tx.Hash = tx.ComputeHash()
	out, err := eng.Execute("main", chain.ZeroHash, tx, ExecOptions{BlockHeight: 7})
	require.NoError(t, err)
	require.Empty(t, out.Output.Error)

	ok, err := eng.IsAdmin(out.Commit, "BWSattacker")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExecuteSimulateWalletSkipsBalanceCheck(t *testing.T) {
	eng, _ := newTestEngine(t)
	tx := noneTx("BWSalice", "BWSbob", "30")
	out, err := eng.Execute("main", chain.ZeroHash, tx, ExecOptions{BlockHeight: 1, SimulateWallet: true})
	require.NoError(t, err)
	require.Empty(t, out.Output.Error)
}

const echoContract = `
const ABI = [{name: "echo", view: false, payable: false, arity: 1}];
function echo(msg) {
  blockchain.valueSet("last", msg);
  return msg;
}
`

func TestExecuteDeployThenContractExeRoundTrip(t *testing.T) {
	eng, store := newTestEngine(t)

	deployTx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSowner"}, To: []chain.Address{"BWScontract"}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxContract, Data: chain.ContractData{Code: []byte(echoContract)}, Created: 1000,
		Sign: [][]byte{{}},
	}
	deployTx.Hash = deployTx.ComputeHash()
	out, err := eng.Execute("main", chain.ZeroHash, deployTx, ExecOptions{BlockHeight: 1, SimulateWallet: true})
	require.NoError(t, err)
	require.Empty(t, out.Output.Error, out.Output.Error)
	h1, err := store.Commit(out.Commit, "deploy")
	require.NoError(t, err)

	exeTx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSowner"}, To: []chain.Address{"BWScontract"}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxContractExe,
		Data: chain.ContractExeData{Calls: []chain.ContractCall{{To: "BWScontract", Method: "echo", Inputs: []string{"hello"}}}},
		Created: 1001, Sign: [][]byte{{}},
	}
	exeTx.Hash = exeTx.ComputeHash()
	out2, err := eng.Execute("main", h1, exeTx, ExecOptions{BlockHeight: 1, SimulateWallet: true})
	require.NoError(t, err)
	require.Empty(t, out2.Output.Error, out2.Output.Error)

	v, found, err := store.Get(out2.Commit, "value:BWScontract:last")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", string(v))
}

func TestExecuteContractExeRecordsReplayLogAndVerifiesClean(t *testing.T) {
	eng, store := newTestEngine(t)

	deployTx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSowner"}, To: []chain.Address{"BWScontract"}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxContract, Data: chain.ContractData{Code: []byte(echoContract)}, Created: 1000,
		Sign: [][]byte{{}},
	}
	deployTx.Hash = deployTx.ComputeHash()
	out, err := eng.Execute("main", chain.ZeroHash, deployTx, ExecOptions{BlockHeight: 1, SimulateWallet: true})
	require.NoError(t, err)
	h1, err := store.Commit(out.Commit, "deploy")
	require.NoError(t, err)

	exeTx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSowner"}, To: []chain.Address{"BWScontract"}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxContractExe,
		Data: chain.ContractExeData{Calls: []chain.ContractCall{{To: "BWScontract", Method: "echo", Inputs: []string{"hello"}}}},
		Created: 1001, Sign: [][]byte{{}},
	}
	exeTx.Hash = exeTx.ComputeHash()
	out2, err := eng.Execute("main", h1, exeTx, ExecOptions{BlockHeight: 1, SimulateWallet: true, SliceProposer: "BWSproposer"})
	require.NoError(t, err)
	require.Empty(t, out2.Output.Error, out2.Output.Error)
	require.NotEmpty(t, out2.Output.Extra[keyExtraReplay])

	exeTx.Output = &out2.Output
	require.NoError(t, eng.VerifyReplay("main", h1, exeTx, "BWSproposer", 1))
}

func TestExecuteContractExeVerifyReplayDetectsTamperedLog(t *testing.T) {
	eng, store := newTestEngine(t)

	deployTx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSowner"}, To: []chain.Address{"BWScontract"}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxContract, Data: chain.ContractData{Code: []byte(echoContract)}, Created: 1000,
		Sign: [][]byte{{}},
	}
	deployTx.Hash = deployTx.ComputeHash()
	out, err := eng.Execute("main", chain.ZeroHash, deployTx, ExecOptions{BlockHeight: 1, SimulateWallet: true})
	require.NoError(t, err)
	h1, err := store.Commit(out.Commit, "deploy")
	require.NoError(t, err)

	exeTx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSowner"}, To: []chain.Address{"BWScontract"}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxContractExe,
		Data: chain.ContractExeData{Calls: []chain.ContractCall{{To: "BWScontract", Method: "echo", Inputs: []string{"hello"}}}},
		Created: 1001, Sign: [][]byte{{}},
	}
	exeTx.Hash = exeTx.ComputeHash()
	out2, err := eng.Execute("main", h1, exeTx, ExecOptions{BlockHeight: 1, SimulateWallet: true, SliceProposer: "BWSproposer"})
	require.NoError(t, err)
	require.NotEmpty(t, out2.Output.Extra[keyExtraReplay])

	tampered := strings.Replace(out2.Output.Extra[keyExtraReplay], "hello", "tampered", 1)
	out2.Output.Extra[keyExtraReplay] = tampered
	exeTx.Output = &out2.Output

	err = eng.VerifyReplay("main", h1, exeTx, "BWSproposer", 1)
	require.Error(t, err)
}

func TestExecuteContractExeNonPayableRejectsAmount(t *testing.T) {
	eng, store := newTestEngine(t)

	deployTx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSowner"}, To: []chain.Address{"BWScontract"}, Amount: []string{"0"},
		Fee: "0", Type: chain.TxContract, Data: chain.ContractData{Code: []byte(echoContract)}, Created: 1000,
		Sign: [][]byte{{}},
	}
	deployTx.Hash = deployTx.ComputeHash()
	out, err := eng.Execute("main", chain.ZeroHash, deployTx, ExecOptions{BlockHeight: 1, SimulateWallet: true})
	require.NoError(t, err)
	h1, err := store.Commit(out.Commit, "deploy")
	require.NoError(t, err)

	exeTx := &chain.Transaction{
		Chain: "main", Version: 1,
		From: []chain.Address{"BWSowner"}, To: []chain.Address{"BWScontract"}, Amount: []string{"5"},
		Fee: "0", Type: chain.TxContractExe,
		Data: chain.ContractExeData{Calls: []chain.ContractCall{{To: "BWScontract", Method: "echo", Inputs: []string{"hello"}}}},
		Created: 1001, Sign: [][]byte{{}},
	}
	exeTx.Hash = exeTx.ComputeHash()
	out2, err := eng.Execute("main", h1, exeTx, ExecOptions{BlockHeight: 1, SimulateWallet: true})
	require.NoError(t, err)
	require.NotEmpty(t, out2.Output.Error)
}
