// Package vm is C7: the sandboxed contract runtime. It embeds goja (a
// pure-Go ECMAScript interpreter) as the JS-like execution engine and wraps
// it with gas metering, a host capability bridge, and the determinism rules
// spec.md's contract runtime requires.
package vm

import (
	"fmt"
	"time"

	"github.com/dop251/goja"

	"bywise/chain"
)

const (
	// GasPerHostCall is charged for every call the script makes into the
	// blockchain host object. This is the ONLY source of gas accounting:
	// goja has no per-opcode hook, and anything tied to wall-clock time
	// would make GasUsed (and therefore feeUsed and the sender's post-exec
	// balance) depend on the executing node's CPU speed and load, breaking
	// determinism and conservation (spec §8) across nodes running the same
	// tx. A contract that loops without ever touching the host object is
	// bounded only by execWatchdog below, never by gas.
	GasPerHostCall = 7

	// MaxReentrancyDepth bounds cross-contract call nesting.
	MaxReentrancyDepth = 5

	// HeapLimitBytes / StackLimitBytes are the suggested sandbox ceilings.
	HeapLimitBytes  = 640 * 1024
	StackLimitBytes = 320 * 1024

	// execWatchdog is a wall-clock liveness ceiling, not a gas source: it
	// exists solely so a host-call-free infinite loop can't hang a node
	// forever. It never charges meter.used and never varies GasUsed, so it
	// cannot affect feeUsed or consensus state; whichever node trips it,
	// the tx reverts with the same "interrupted" outcome and the same
	// (host-call-derived) GasUsed every other node would also compute.
	execWatchdog = 2 * time.Second
)

// ErrInterrupted is the interrupt value raised when a call exhausts its gas
// budget; Invoke reports it as a reverted Result with Error "interrupted".
var ErrInterrupted = fmt.Errorf("vm: interrupted")

// errWatchdogTimeout interrupts a runaway execution that never charges gas
// (no host calls) within execWatchdog. interruptedMessage reports it exactly
// like a gas interrupt, so it carries no consensus-visible distinction.
var errWatchdogTimeout = fmt.Errorf("vm: execution watchdog")

// Result is what one contract method invocation produces.
type Result struct {
	Output   string
	Logs     []string
	Events   []chain.Event
	GasUsed  uint64
	Error    string
	Reverted bool
	Replay   []ReplayEntry
}

// InvokeRequest parameterizes a single method call.
type InvokeRequest struct {
	Contract   *Contract
	Method     string
	Inputs     []string
	Host       HostContext
	GasBudget  uint64
	Depth      int           // current cross-contract call depth (0 for the top-level call)
	RandomSeed string        // txexec passes "<slice proposer>:<tx hash>" for a top-level call and "<tx sender>:<tx hash>" for a nested externalContract call; no nonce is included
	ReplayLog  []ReplayEntry // if non-nil, host calls still run live and each recorded call is checked against this log
}

// gasMeter tracks consumption and interrupts rt once the budget is spent.
type gasMeter struct {
	budget uint64
	used   uint64
	rt     *goja.Runtime
}

func (g *gasMeter) charge(amount uint64) {
	g.used += amount
	if g.used > g.budget {
		g.rt.Interrupt(ErrInterrupted)
	}
}

// Invoke runs req.Method on req.Contract against req.Host, enforcing gas,
// re-entrancy depth, and the view/payable ABI guards.
func Invoke(req InvokeRequest) (*Result, error) {
	if req.Depth > MaxReentrancyDepth {
		return nil, fmt.Errorf("vm: re-entrancy depth %d exceeds cap %d", req.Depth, MaxReentrancyDepth)
	}
	spec, ok := req.Contract.MethodByName(req.Method)
	if !ok {
		return nil, fmt.Errorf("vm: method %q not in contract ABI", req.Method)
	}
	if !spec.Payable {
		for i := range req.Inputs {
			if amt := req.Host.TxAmount(i); amt != "" && amt != "0" {
				return &Result{Error: "non-payable method received amount > 0", Reverted: true}, nil
			}
		}
	}

	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	meter := &gasMeter{budget: req.GasBudget, rt: rt}

	recorder := newReplayRecorder(req.ReplayLog)

	// One seededRand instance backs both Math.random (installDeterminism,
	// an engine-level override outside the host bridge) and getRandom (a
	// bridge-bound, gas-charged, replay-logged call per the glossary), so
	// the two draw from a single deterministic stream rather than two
	// independent ones reseeded from the same string.
	rng := newSeededRand(req.RandomSeed)

	bridge := newBridge(rt, req.Host, meter, spec.View, req.Depth, recorder, rng)
	blockchainObj := rt.NewObject()
	bridge.install(blockchainObj)
	if err := rt.Set("blockchain", blockchainObj); err != nil {
		return nil, fmt.Errorf("vm: install host object: %w", err)
	}

	installDeterminism(rt, rng, req.Host.TxCreated())

	stop := startWatchdog(rt)
	defer stop()

	var result Result
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.Error = fmt.Sprintf("%v", r)
				result.Reverted = true
			}
		}()

		if _, err := rt.RunString(req.Contract.Code); err != nil {
			if interruptErr, ok := err.(*goja.InterruptedError); ok {
				result.Error = interruptedMessage(interruptErr)
				result.Reverted = true
				return
			}
			result.Error = err.Error()
			result.Reverted = true
			return
		}

		fnVal := rt.Get(req.Method)
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			result.Error = fmt.Sprintf("method %q is not a function", req.Method)
			result.Reverted = true
			return
		}

		args := make([]goja.Value, len(req.Inputs))
		for i, in := range req.Inputs {
			args[i] = rt.ToValue(in)
		}
		out, callErr := fn(goja.Undefined(), args...)
		if callErr != nil {
			if interruptErr, ok := callErr.(*goja.InterruptedError); ok {
				result.Error = interruptedMessage(interruptErr)
				result.Reverted = true
				return
			}
			result.Error = callErr.Error()
			result.Reverted = true
			return
		}
		result.Output = fmt.Sprintf("%v", out.Export())
	}()

	result.GasUsed = meter.used
	result.Logs = bridge.logs
	result.Events = bridge.events
	result.Replay = recorder.log
	return &result, nil
}

// interruptedMessage normalizes any interrupt reason (gas exhaustion or the
// liveness watchdog) to the same string, so the two causes are
// indistinguishable at the Result level and neither can leak a
// wall-clock-dependent detail into consensus-visible output.
func interruptedMessage(err *goja.InterruptedError) string {
	return "interrupted"
}

// startWatchdog arms a one-shot timer that interrupts rt after execWatchdog
// if the call hasn't returned by then, bounding a host-call-free infinite
// loop. It charges no gas; see execWatchdog's doc comment.
func startWatchdog(rt *goja.Runtime) func() {
	timer := time.AfterFunc(execWatchdog, func() {
		rt.Interrupt(errWatchdogTimeout)
	})
	return func() { timer.Stop() }
}

// installDeterminism seeds Math.random from rng and pins Date.now to
// createdUnix, per spec.md's determinism requirements.
func installDeterminism(rt *goja.Runtime, rng *seededRand, createdUnix int64) {
	mathObj := rt.Get("Math")
	if mo, ok := mathObj.(*goja.Object); ok {
		_ = mo.Set("random", func() float64 { return rng.Float64() })
	}

	dateCtor := rt.Get("Date")
	if dc, ok := dateCtor.(*goja.Object); ok {
		_ = dc.Set("now", func() int64 { return createdUnix * 1000 })
	}
}

// seededRand is a small deterministic PRNG (splitmix64) so the same seed
// string always produces the same sequence across nodes, independent of
// Go's math/rand global state.
type seededRand struct {
	state uint64
}

func newSeededRand(seed string) *seededRand {
	var h uint64 = 1469598103934665603 // FNV offset basis
	for i := 0; i < len(seed); i++ {
		h ^= uint64(seed[i])
		h *= 1099511628211
	}
	if h == 0 {
		h = 0x9E3779B97F4A7C15
	}
	return &seededRand{state: h}
}

func (s *seededRand) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// Float64 returns a value in [0, 1), matching Math.random's contract.
func (s *seededRand) Float64() float64 {
	return float64(s.next()>>11) / float64(uint64(1)<<53)
}
