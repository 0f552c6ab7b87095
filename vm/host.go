package vm

import "bywise/chain"

// HostContext is everything a running contract can observe or mutate
// outside its own interpreter state — the glossary's "host capability set".
// txexec implements this against a live envstore.Context; tests implement
// it against a plain map.
type HostContext interface {
	TxSender() chain.Address
	TxAmount(index int) string
	Chain() string
	TxCreated() int64
	Tx() *chain.Transaction
	BlockHeight() uint64
	ThisAddress() chain.Address

	Log(msg string)
	EmitEvent(name string, keys, values []string)

	ExternalContract(addr chain.Address, method string, inputs []string) (string, error)

	BalanceTransfer(to chain.Address, amount string) error
	BalanceOf(addr chain.Address) (string, error)

	ValueSet(key, value string)
	ValueGet(key string) (string, bool)

	MapNew(name string)
	MapSet(name, key, value string)
	MapGet(name, key string) (string, bool)
	MapHas(name, key string) bool
	MapDel(name, key string)

	ListNew(name string)
	ListSize(name string) int
	ListGet(name string, idx int) (string, bool)
	ListSet(name string, idx int, value string) error
	ListPush(name, value string)
	ListPop(name string) (string, bool)
}
