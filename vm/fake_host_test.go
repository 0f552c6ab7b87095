package vm

import (
	"fmt"

	"bywise/chain"
)

// fakeHost is a minimal in-memory HostContext for exercising Invoke without
// a live envstore.Context.
type fakeHost struct {
	sender      chain.Address
	this        chain.Address
	chainID     string
	created     int64
	blockHeight uint64
	amounts     []string

	balances map[chain.Address]string
	values   map[string]string
	maps     map[string]map[string]string
	lists    map[string][]string

	tx *chain.Transaction

	externalFn func(addr chain.Address, method string, inputs []string) (string, error)
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		chainID:  "main",
		balances: make(map[chain.Address]string),
		values:   make(map[string]string),
		maps:     make(map[string]map[string]string),
		lists:    make(map[string][]string),
		tx:       &chain.Transaction{Chain: "main", Type: chain.TxContractExe},
	}
}

func (f *fakeHost) TxSender() chain.Address { return f.sender }
func (f *fakeHost) TxAmount(index int) string {
	if index < 0 || index >= len(f.amounts) {
		return "0"
	}
	return f.amounts[index]
}
func (f *fakeHost) Chain() string            { return f.chainID }
func (f *fakeHost) TxCreated() int64         { return f.created }
func (f *fakeHost) Tx() *chain.Transaction   { return f.tx }
func (f *fakeHost) BlockHeight() uint64      { return f.blockHeight }
func (f *fakeHost) ThisAddress() chain.Address { return f.this }

func (f *fakeHost) Log(string)                                  {}
func (f *fakeHost) EmitEvent(name string, keys, values []string) {}

func (f *fakeHost) ExternalContract(addr chain.Address, method string, inputs []string) (string, error) {
	if f.externalFn != nil {
		return f.externalFn(addr, method, inputs)
	}
	return "", fmt.Errorf("no external contract configured")
}

func (f *fakeHost) BalanceTransfer(to chain.Address, amount string) error {
	f.balances[to] = amount
	return nil
}
func (f *fakeHost) BalanceOf(addr chain.Address) (string, error) {
	return f.balances[addr], nil
}

func (f *fakeHost) ValueSet(key, value string) { f.values[key] = value }
func (f *fakeHost) ValueGet(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeHost) MapNew(name string) {
	if _, ok := f.maps[name]; !ok {
		f.maps[name] = make(map[string]string)
	}
}
func (f *fakeHost) MapSet(name, key, value string) {
	f.MapNew(name)
	f.maps[name][key] = value
}
func (f *fakeHost) MapGet(name, key string) (string, bool) {
	v, ok := f.maps[name][key]
	return v, ok
}
func (f *fakeHost) MapHas(name, key string) bool {
	_, ok := f.maps[name][key]
	return ok
}
func (f *fakeHost) MapDel(name, key string) { delete(f.maps[name], key) }

func (f *fakeHost) ListNew(name string) {
	if _, ok := f.lists[name]; !ok {
		f.lists[name] = nil
	}
}
func (f *fakeHost) ListSize(name string) int { return len(f.lists[name]) }
func (f *fakeHost) ListGet(name string, idx int) (string, bool) {
	l := f.lists[name]
	if idx < 0 || idx >= len(l) {
		return "", false
	}
	return l[idx], true
}
func (f *fakeHost) ListSet(name string, idx int, value string) error {
	l := f.lists[name]
	if idx < 0 || idx >= len(l) {
		return fmt.Errorf("index out of range")
	}
	l[idx] = value
	return nil
}
func (f *fakeHost) ListPush(name, value string) {
	f.lists[name] = append(f.lists[name], value)
}
func (f *fakeHost) ListPop(name string) (string, bool) {
	l := f.lists[name]
	if len(l) == 0 {
		return "", false
	}
	v := l[len(l)-1]
	f.lists[name] = l[:len(l)-1]
	return v, true
}
