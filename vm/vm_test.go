package vm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"bywise/chain"
)

var _ HostContext = (*fakeHost)(nil)

const counterContract = `
const ABI = [
  {name: "increment", view: false, payable: false, arity: 1},
  {name: "get", view: true, payable: false, arity: 0},
  {name: "badView", view: true, payable: false, arity: 0},
];

function increment(by) {
  const cur = blockchain.valueGet("counter");
  const next = (parseInt(cur || "0") + parseInt(by)).toString();
  blockchain.valueSet("counter", next);
  return next;
}

function get() {
  return blockchain.valueGet("counter");
}

function badView() {
  blockchain.valueSet("counter", "99");
  return "unreachable";
}
`

func deployCounter(t *testing.T) *Contract {
	t.Helper()
	c, err := Deploy(counterContract)
	require.NoError(t, err)
	return c
}

func TestInvokeWriteThenRead(t *testing.T) {
	c := deployCounter(t)
	host := newFakeHost()

	res, err := Invoke(InvokeRequest{Contract: c, Method: "increment", Inputs: []string{"5"}, Host: host, GasBudget: 10_000})
	require.NoError(t, err)
	require.False(t, res.Reverted, res.Error)
	require.Equal(t, "5", res.Output)

	res2, err := Invoke(InvokeRequest{Contract: c, Method: "get", Host: host, GasBudget: 10_000})
	require.NoError(t, err)
	require.False(t, res2.Reverted, res2.Error)
	require.Equal(t, "5", res2.Output)
}

func TestInvokeViewMethodCannotMutateState(t *testing.T) {
	c := deployCounter(t)
	host := newFakeHost()

	res, err := Invoke(InvokeRequest{Contract: c, Method: "badView", Host: host, GasBudget: 10_000})
	require.NoError(t, err)
	require.True(t, res.Reverted)
	require.Empty(t, host.values["counter"])
}

func TestInvokeNonPayableRejectsAmount(t *testing.T) {
	c := deployCounter(t)
	host := newFakeHost()
	host.amounts = []string{"10"}

	res, err := Invoke(InvokeRequest{Contract: c, Method: "increment", Inputs: []string{"5"}, Host: host, GasBudget: 10_000})
	require.NoError(t, err)
	require.True(t, res.Reverted)
}

func TestInvokeUnknownMethodErrors(t *testing.T) {
	c := deployCounter(t)
	host := newFakeHost()
	_, err := Invoke(InvokeRequest{Contract: c, Method: "doesNotExist", Host: host, GasBudget: 10_000})
	require.Error(t, err)
}

func TestInvokeExhaustsGasBudget(t *testing.T) {
	loopContract := `
const ABI = [{name: "spin", view: false, payable: false, arity: 0}];
function spin() {
  let i = 0;
  while (true) {
    blockchain.valueSet("k", i.toString());
    i++;
  }
}
`
	c, err := Deploy(loopContract)
	require.NoError(t, err)
	host := newFakeHost()

	res, err := Invoke(InvokeRequest{Contract: c, Method: "spin", Host: host, GasBudget: 500})
	require.NoError(t, err)
	require.True(t, res.Reverted)
	require.GreaterOrEqual(t, res.GasUsed, uint64(500))
}

func TestInvokeReentrancyDepthCapRejected(t *testing.T) {
	c := deployCounter(t)
	host := newFakeHost()

	_, err := Invoke(InvokeRequest{Contract: c, Method: "get", Host: host, GasBudget: 10_000, Depth: MaxReentrancyDepth + 1})
	require.Error(t, err)
}

func TestInvokeDeterministicRandomAndClock(t *testing.T) {
	clockContract := `
const ABI = [{name: "stamp", view: true, payable: false, arity: 0}];
function stamp() {
  return Date.now().toString() + ":" + Math.random().toString();
}
`
	c, err := Deploy(clockContract)
	require.NoError(t, err)
	host := newFakeHost()
	host.created = 1700000000

	res1, err := Invoke(InvokeRequest{Contract: c, Method: "stamp", Host: host, GasBudget: 10_000, RandomSeed: "seedA"})
	require.NoError(t, err)
	res2, err := Invoke(InvokeRequest{Contract: c, Method: "stamp", Host: host, GasBudget: 10_000, RandomSeed: "seedA"})
	require.NoError(t, err)
	require.Equal(t, res1.Output, res2.Output)

	res3, err := Invoke(InvokeRequest{Contract: c, Method: "stamp", Host: host, GasBudget: 10_000, RandomSeed: "seedB"})
	require.NoError(t, err)
	require.NotEqual(t, res1.Output, res3.Output)
}

func TestInvokeEmitsEventsAndLogs(t *testing.T) {
	eventContract := `
const ABI = [{name: "ping", view: false, payable: false, arity: 0}];
function ping() {
  blockchain.log("pinged");
  blockchain.emitEvent("Ping", ["who"], ["world"]);
  return "ok";
}
`
	c, err := Deploy(eventContract)
	require.NoError(t, err)
	host := newFakeHost()
	host.this = "BWScontract"

	res, err := Invoke(InvokeRequest{Contract: c, Method: "ping", Host: host, GasBudget: 10_000})
	require.NoError(t, err)
	require.False(t, res.Reverted, res.Error)
	require.Len(t, res.Events, 1)
	require.Equal(t, "Ping", res.Events[0].Name)
	require.Equal(t, host.this, res.Events[0].Contract)
}

func TestDeployRejectsMissingABI(t *testing.T) {
	_, err := Deploy(`function get() { return "x"; }`)
	require.Error(t, err)
}

func TestInvokeGetTxExposesChainTypeAndHash(t *testing.T) {
	txContract := `
const ABI = [{name: "describe", view: true, payable: false, arity: 0}];
function describe() {
  const tx = blockchain.getTx();
  return tx.chain + ":" + tx.type + ":" + tx.hash;
}
`
	c, err := Deploy(txContract)
	require.NoError(t, err)
	host := newFakeHost()
	host.tx.Hash = chain.Hash{0x01}

	res, err := Invoke(InvokeRequest{Contract: c, Method: "describe", Host: host, GasBudget: 10_000})
	require.NoError(t, err)
	require.False(t, res.Reverted, res.Error)
	require.Equal(t, "main:CONTRACT_EXE:"+host.tx.Hash.Hex(), res.Output)
}

func TestInvokeGetRandomIsDeterministicPerSeedAndAdvancesPerCall(t *testing.T) {
	randContract := `
const ABI = [{name: "draw", view: true, payable: false, arity: 0}];
function draw() {
  return blockchain.getRandom().toString() + ":" + blockchain.getRandom().toString();
}
`
	c, err := Deploy(randContract)
	require.NoError(t, err)
	host := newFakeHost()

	res1, err := Invoke(InvokeRequest{Contract: c, Method: "draw", Host: host, GasBudget: 10_000, RandomSeed: "seedA"})
	require.NoError(t, err)
	res2, err := Invoke(InvokeRequest{Contract: c, Method: "draw", Host: host, GasBudget: 10_000, RandomSeed: "seedA"})
	require.NoError(t, err)
	require.Equal(t, res1.Output, res2.Output)

	parts := strings.Split(res1.Output, ":")
	require.Len(t, parts, 2)
	require.NotEqual(t, parts[0], parts[1])

	res3, err := Invoke(InvokeRequest{Contract: c, Method: "draw", Host: host, GasBudget: 10_000, RandomSeed: "seedB"})
	require.NoError(t, err)
	require.NotEqual(t, res1.Output, res3.Output)
}

func TestDeployRejectsDuplicateMethodNames(t *testing.T) {
	_, err := Deploy(`
const ABI = [
  {name: "get", view: true, payable: false, arity: 0},
  {name: "get", view: true, payable: false, arity: 0},
];
function get() { return "x"; }
`)
	require.Error(t, err)
}
