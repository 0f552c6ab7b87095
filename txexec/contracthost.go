package txexec

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"bywise/chain"
	"bywise/envstore"
	"bywise/vm"
)

// envHost implements vm.HostContext against a live envstore.Context, scoped
// to one executing contract address within one transaction.
type envHost struct {
	engine      *Engine
	ctx         *envstore.Context
	chainID     string
	blockHeight uint64
	tx          *chain.Transaction
	this        chain.Address
	sender      chain.Address
	amounts     []string
	depth       int
	logs        *[]string
	events      *[]chain.Event
}

var _ vm.HostContext = (*envHost)(nil)

func (h *envHost) TxSender() chain.Address   { return h.sender }
func (h *envHost) Chain() string             { return h.chainID }
func (h *envHost) TxCreated() int64          { return h.tx.Created }
func (h *envHost) Tx() *chain.Transaction    { return h.tx }
func (h *envHost) BlockHeight() uint64       { return h.blockHeight }
func (h *envHost) ThisAddress() chain.Address { return h.this }

func (h *envHost) TxAmount(index int) string {
	if index < 0 || index >= len(h.amounts) {
		return "0"
	}
	return h.amounts[index]
}

func (h *envHost) Log(msg string) {
	*h.logs = append(*h.logs, msg)
}

func (h *envHost) EmitEvent(name string, keys, values []string) {
	*h.events = append(*h.events, chain.Event{Contract: h.this, Name: name, Keys: keys, Values: values})
}

func (h *envHost) ExternalContract(addr chain.Address, method string, inputs []string) (string, error) {
	if h.depth+1 > vm.MaxReentrancyDepth {
		return "", fmt.Errorf("re-entrancy depth cap %d exceeded", vm.MaxReentrancyDepth)
	}
	contract, err := h.engine.contracts.LoadContract(h.ctx, addr)
	if err != nil {
		return "", err
	}
	sub := &envHost{
		engine: h.engine, ctx: h.ctx, chainID: h.chainID, blockHeight: h.blockHeight,
		tx: h.tx, this: addr, sender: h.sender, amounts: make([]string, len(inputs)),
		depth: h.depth + 1, logs: h.logs, events: h.events,
	}
	res, err := vm.Invoke(vm.InvokeRequest{
		Contract:   contract,
		Method:     method,
		Inputs:     inputs,
		Host:       sub,
		GasBudget:  h.engine.gasBudget,
		Depth:      h.depth + 1,
		RandomSeed: h.randomSeed(),
	})
	if err != nil {
		return "", err
	}
	if res.Reverted {
		return "", fmt.Errorf("external call to %s.%s reverted: %s", addr, method, res.Error)
	}
	return res.Output, nil
}

func (h *envHost) randomSeed() string {
	return string(h.sender) + ":" + h.tx.Hash.Hex()
}

func (h *envHost) BalanceTransfer(to chain.Address, amount string) error {
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("invalid transfer amount %q", amount)
	}
	if err := h.engine.debit(h.ctx, h.this, v); err != nil {
		return err
	}
	return h.engine.credit(h.ctx, to, v)
}

func (h *envHost) BalanceOf(addr chain.Address) (string, error) {
	v, err := h.engine.getBalance(h.ctx, addr)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func (h *envHost) valueKey(key string) string { return "value:" + string(h.this) + ":" + key }
func (h *envHost) mapKey(name, key string) string {
	return "map:" + string(h.this) + ":" + name + ":" + key
}
func (h *envHost) listLenKey(name string) string {
	return "list:" + string(h.this) + ":" + name + ":len"
}
func (h *envHost) listItemKey(name string, idx int) string {
	return "list:" + string(h.this) + ":" + name + ":" + strconv.Itoa(idx)
}

func (h *envHost) ValueSet(key, value string) {
	h.engine.env.Set(h.ctx, h.valueKey(key), []byte(value))
}

func (h *envHost) ValueGet(key string) (string, bool) {
	raw, found, err := h.engine.env.Get(h.ctx, h.valueKey(key))
	if err != nil || !found {
		return "", false
	}
	return string(raw), true
}

func (h *envHost) MapNew(name string) {
	// Maps need no explicit header; membership is implicit in written keys.
}

func (h *envHost) MapSet(name, key, value string) {
	h.engine.env.Set(h.ctx, h.mapKey(name, key), []byte(value))
}

func (h *envHost) MapGet(name, key string) (string, bool) {
	raw, found, err := h.engine.env.Get(h.ctx, h.mapKey(name, key))
	if err != nil || !found {
		return "", false
	}
	return string(raw), true
}

func (h *envHost) MapHas(name, key string) bool {
	_, found := h.MapGet(name, key)
	return found
}

func (h *envHost) MapDel(name, key string) {
	h.engine.env.Delete(h.ctx, h.mapKey(name, key))
}

func (h *envHost) getListLen(name string) int {
	raw, found, err := h.engine.env.Get(h.ctx, h.listLenKey(name))
	if err != nil || !found {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return n
}

func (h *envHost) setListLen(name string, n int) {
	h.engine.env.Set(h.ctx, h.listLenKey(name), []byte(strconv.Itoa(n)))
}

func (h *envHost) ListNew(name string) {
	if _, found, _ := h.engine.env.Get(h.ctx, h.listLenKey(name)); !found {
		h.setListLen(name, 0)
	}
}

func (h *envHost) ListSize(name string) int {
	return h.getListLen(name)
}

func (h *envHost) ListGet(name string, idx int) (string, bool) {
	if idx < 0 || idx >= h.getListLen(name) {
		return "", false
	}
	raw, found, err := h.engine.env.Get(h.ctx, h.listItemKey(name, idx))
	if err != nil || !found {
		return "", false
	}
	return string(raw), true
}

func (h *envHost) ListSet(name string, idx int, value string) error {
	if idx < 0 || idx >= h.getListLen(name) {
		return fmt.Errorf("list %q index %d out of range", name, idx)
	}
	h.engine.env.Set(h.ctx, h.listItemKey(name, idx), []byte(value))
	return nil
}

func (h *envHost) ListPush(name, value string) {
	n := h.getListLen(name)
	h.engine.env.Set(h.ctx, h.listItemKey(name, n), []byte(value))
	h.setListLen(name, n+1)
}

func (h *envHost) ListPop(name string) (string, bool) {
	n := h.getListLen(name)
	if n == 0 {
		return "", false
	}
	v, found := h.ListGet(name, n-1)
	if !found {
		return "", false
	}
	h.engine.env.Delete(h.ctx, h.listItemKey(name, n-1))
	h.setListLen(name, n-1)
	return v, true
}
