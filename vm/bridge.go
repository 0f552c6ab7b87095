package vm

import (
	"fmt"

	"github.com/dop251/goja"

	"bywise/chain"
)

// bridge wires a HostContext into the goja "blockchain" object, charging gas
// per call and rejecting state mutation from view methods.
type bridge struct {
	rt       *goja.Runtime
	host     HostContext
	meter    *gasMeter
	view     bool
	depth    int
	recorder *replayRecorder
	rng      *seededRand

	logs   []string
	events []chain.Event
}

func newBridge(rt *goja.Runtime, host HostContext, meter *gasMeter, view bool, depth int, recorder *replayRecorder, rng *seededRand) *bridge {
	return &bridge{rt: rt, host: host, meter: meter, view: view, depth: depth, recorder: recorder, rng: rng}
}

func (b *bridge) charge() {
	b.meter.charge(GasPerHostCall)
}

func (b *bridge) guardWrite(call string) {
	if b.view {
		panic(b.rt.NewGoError(fmt.Errorf("vm: view method attempted state mutation via %s", call)))
	}
}

// record appends to (or, in verification mode, checks against) the replay
// log. A mismatch panics the same way guardWrite does, so it surfaces as a
// Result.Reverted=true rather than silently being ignored — a replay
// divergence must be as fatal to the call as any other host error (spec
// §4.6: mismatch marks the containing tx INVALID).
func (b *bridge) record(method string, args []string, result string) {
	if err := b.recorder.record(method, args, result); err != nil {
		panic(b.rt.NewGoError(err))
	}
}

// install attaches every HostContext capability onto obj as a JS function.
func (b *bridge) install(obj *goja.Object) {
	set := func(name string, fn interface{}) { _ = obj.Set(name, fn) }

	set("getTxSender", func() string {
		b.charge()
		return string(b.host.TxSender())
	})
	set("getTxAmount", func(index int) string {
		b.charge()
		return b.host.TxAmount(index)
	})
	set("getChain", func() string {
		b.charge()
		return b.host.Chain()
	})
	set("getTxCreated", func() int64 {
		b.charge()
		return b.host.TxCreated()
	})
	set("getTx", func() map[string]interface{} {
		b.charge()
		tx := b.host.Tx()
		from := make([]string, len(tx.From))
		for i, a := range tx.From {
			from[i] = string(a)
		}
		to := make([]string, len(tx.To))
		for i, a := range tx.To {
			to[i] = string(a)
		}
		out := map[string]interface{}{
			"chain":   tx.Chain,
			"type":    string(tx.Type),
			"from":    from,
			"to":      to,
			"amount":  tx.Amount,
			"fee":     tx.Fee,
			"created": tx.Created,
			"hash":    tx.Hash.Hex(),
		}
		return out
	})
	set("getBlockHeight", func() uint64 {
		b.charge()
		return b.host.BlockHeight()
	})
	set("getThisAddress", func() string {
		b.charge()
		return string(b.host.ThisAddress())
	})
	set("getRandom", func() float64 {
		b.charge()
		v := b.rng.Float64()
		b.record("getRandom", nil, fmt.Sprintf("%v", v))
		return v
	})

	set("log", func(msg string) {
		b.charge()
		b.logs = append(b.logs, msg)
		b.host.Log(msg)
		b.record("log", []string{msg}, "")
	})
	set("emitEvent", func(name string, keys, values []string) {
		b.charge()
		b.events = append(b.events, chain.Event{Contract: b.host.ThisAddress(), Name: name, Keys: keys, Values: values})
		b.host.EmitEvent(name, keys, values)
		b.record("emitEvent", append([]string{name}, append(keys, values...)...), "")
	})

	set("externalContract", func(addr string, method string, inputs []string) string {
		b.charge()
		if b.depth+1 > MaxReentrancyDepth {
			panic(b.rt.NewGoError(fmt.Errorf("vm: re-entrancy depth cap %d exceeded", MaxReentrancyDepth)))
		}
		out, err := b.host.ExternalContract(chain.Address(addr), method, inputs)
		if err != nil {
			panic(b.rt.NewGoError(err))
		}
		b.record("externalContract", append([]string{addr, method}, inputs...), out)
		return out
	})

	set("balanceTransfer", func(to string, amount string) {
		b.charge()
		b.guardWrite("balanceTransfer")
		if err := b.host.BalanceTransfer(chain.Address(to), amount); err != nil {
			panic(b.rt.NewGoError(err))
		}
		b.record("balanceTransfer", []string{to, amount}, "")
	})
	set("balanceOf", func(addr string) string {
		b.charge()
		v, _ := b.host.BalanceOf(chain.Address(addr))
		return v
	})

	set("valueSet", func(key, value string) {
		b.charge()
		b.guardWrite("valueSet")
		b.host.ValueSet(key, value)
		b.record("valueSet", []string{key, value}, "")
	})
	set("valueGet", func(key string) string {
		b.charge()
		v, _ := b.host.ValueGet(key)
		return v
	})

	set("mapNew", func(name string) {
		b.charge()
		b.guardWrite("mapNew")
		b.host.MapNew(name)
	})
	set("mapSet", func(name, key, value string) {
		b.charge()
		b.guardWrite("mapSet")
		b.host.MapSet(name, key, value)
		b.record("mapSet", []string{name, key, value}, "")
	})
	set("mapGet", func(name, key string) string {
		b.charge()
		v, _ := b.host.MapGet(name, key)
		return v
	})
	set("mapHas", func(name, key string) bool {
		b.charge()
		return b.host.MapHas(name, key)
	})
	set("mapDel", func(name, key string) {
		b.charge()
		b.guardWrite("mapDel")
		b.host.MapDel(name, key)
		b.record("mapDel", []string{name, key}, "")
	})

	set("listNew", func(name string) {
		b.charge()
		b.guardWrite("listNew")
		b.host.ListNew(name)
	})
	set("listSize", func(name string) int {
		b.charge()
		return b.host.ListSize(name)
	})
	set("listGet", func(name string, idx int) string {
		b.charge()
		v, _ := b.host.ListGet(name, idx)
		return v
	})
	set("listSet", func(name string, idx int, value string) {
		b.charge()
		b.guardWrite("listSet")
		if err := b.host.ListSet(name, idx, value); err != nil {
			panic(b.rt.NewGoError(err))
		}
		b.record("listSet", []string{name, fmt.Sprint(idx), value}, "")
	})
	set("listPush", func(name, value string) {
		b.charge()
		b.guardWrite("listPush")
		b.host.ListPush(name, value)
		b.record("listPush", []string{name, value}, "")
	})
	set("listPop", func(name string) string {
		b.charge()
		b.guardWrite("listPop")
		v, _ := b.host.ListPop(name)
		b.record("listPop", []string{name}, v)
		return v
	})
}
