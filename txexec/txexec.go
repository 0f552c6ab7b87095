// Package txexec implements C8: the per-transaction execution procedure
// against an envstore.Context, dispatching on transaction type and
// accounting gas/fee per spec §4.5.
package txexec

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"bywise/chain"
	"bywise/envstore"
	"bywise/feeconfig"
	"bywise/vm"
)

// Storage key prefixes. Grounded on the teacher's AccessController key
// scheme ("access:<addr>:<role>") in core/access_control.go.
const (
	keyBalance       = "balance:"
	keyAdminRole     = "access:admin:"
	keyValidatorRole = "access:validator:"
	keyConfigPrefix  = "config:"
	keyContractCode  = "contract:code:"
	keyContractABI   = "contract:abi:"
)

// keyExtraReplay indexes TxOutput.Extra for the JSON-encoded, per-call
// vm.ReplayEntry logs a CONTRACT_EXE tx produced while executing (spec
// §4.6). One entry per call in tx.Data.(chain.ContractExeData).Calls.
const keyExtraReplay = "replayLog"

// ContractLoader fetches a contract deployed on the executing chain, by
// address, from the caller's environment context, so CONTRACT_EXE
// calls (and cross-contract externalContract calls) can resolve targets
// outside the executing transaction's own To[] set.
type ContractLoader interface {
	LoadContract(ctx *envstore.Context, addr chain.Address) (*vm.Contract, error)
}

// Engine runs transactions (C8). It holds no per-tx state; every call takes
// the envstore.Context and chain/height it should operate against.
type Engine struct {
	env       *envstore.Store
	fees      *feeconfig.Engine
	contracts ContractLoader
	gasBudget uint64
}

// New wires an Engine. gasBudget bounds a single transaction's total gas
// consumption across every CONTRACT_EXE call it makes.
func New(env *envstore.Store, fees *feeconfig.Engine, contracts ContractLoader, gasBudget uint64) *Engine {
	return &Engine{env: env, fees: fees, contracts: contracts, gasBudget: gasBudget}
}

// Outcome is the result of running one transaction.
type Outcome struct {
	Output  chain.TxOutput
	Commit  *envstore.Context // the context writes landed in, for the caller to Commit
}

// ExecOptions carries per-call settings. Simulate marks a dry run (spec
// §4.5's "simulation mode"); Execute does not read it, since Execute never
// commits its overlay and a dry-run caller simply discards Outcome.Commit.
type ExecOptions struct {
	Simulate       bool
	SimulateWallet bool // also skip the sender balance check, for fee estimation
	SliceProposer  chain.Address
	BlockHeight    uint64
}

// Execute runs tx against chainID at opts.BlockHeight, reading/writing
// through a fresh overlay rooted at base. It never mutates base's
// committed ancestor; the caller commits the returned context if it wants
// the writes to stick.
func (e *Engine) Execute(chainID string, base chain.Hash, tx *chain.Transaction, opts ExecOptions) (*Outcome, error) {
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("txexec: %w", err)
	}

	ctx := envstore.NewContext(chainID, base)
	out := chain.TxOutput{}

	amountSum := decimal.Zero
	for _, a := range tx.Amount {
		v, err := decimal.NewFromString(a)
		if err != nil {
			out.Error = fmt.Sprintf("invalid amount %q", a)
			return &Outcome{Output: out, Commit: ctx}, nil
		}
		amountSum = amountSum.Add(v)
	}

	var senderBefore decimal.Decimal
	var sender chain.Address
	if len(tx.From) > 0 {
		sender = tx.From[0]
		bal, err := e.getBalance(ctx, sender)
		if err != nil {
			return nil, err
		}
		senderBefore = bal
		if !opts.SimulateWallet {
			if bal.LessThan(amountSum) {
				out.Error = "insufficient funds"
				return &Outcome{Output: out, Commit: ctx}, nil
			}
		}
	}

	gasUsed := uint64(0)
	var execErr error

	switch tx.Type {
	case chain.TxNone:
		execErr = e.execNone(ctx, tx)
	case chain.TxCommand:
		execErr = e.execCommand(ctx, chainID, opts.BlockHeight, sender, tx)
	case chain.TxContract:
		execErr = e.execDeploy(ctx, tx)
	case chain.TxContractExe:
		var used uint64
		var logs []string
		var events []chain.Event
		var replayLogs [][]vm.ReplayEntry
		used, logs, events, replayLogs, execErr = e.execContractExe(ctx, chainID, opts, sender, tx)
		gasUsed += used
		out.Logs = append(out.Logs, logs...)
		out.Events = append(out.Events, events...)
		// Only a clean run's log is worth keeping: a reverted call already
		// carries its failure in out.Error, and a partial log can't be
		// replayed call-for-call against ced.Calls.
		if execErr == nil && len(replayLogs) > 0 {
			if raw, merr := json.Marshal(replayLogs); merr == nil {
				out.Extra = map[string]string{keyExtraReplay: string(raw)}
			}
		}
	case chain.TxBlockchainCommand:
		// Reserved for genesis; ignored at any other height (spec §4.5 step 3).
		if opts.BlockHeight == 0 {
			execErr = e.execBuiltin(ctx, chainID, opts.BlockHeight, tx, true)
		}
	default:
		execErr = fmt.Errorf("unknown tx type %q", tx.Type)
	}

	fee, feeErr := e.fees.ComputeFee(chainID, opts.BlockHeight, tx, decimal.NewFromInt(int64(gasUsed)))
	if feeErr != nil {
		return nil, feeErr
	}
	out.GasUsed = gasUsed
	out.FeeUsed = fee.String()

	if execErr != nil {
		out.Error = execErr.Error()
		// Step 5: revert writes, retain fee consumption up to the failing step.
		ctx = envstore.NewContext(chainID, base)
		if len(tx.From) > 0 && !opts.SimulateWallet {
			if err := e.debit(ctx, sender, fee); err != nil {
				return nil, err
			}
		}
		return &Outcome{Output: out, Commit: ctx}, nil
	}

	if len(tx.From) > 0 && !opts.SimulateWallet {
		total := amountSum.Add(fee)
		if senderBefore.LessThan(total) {
			out.Error = "insufficient funds"
			ctx = envstore.NewContext(chainID, base)
			return &Outcome{Output: out, Commit: ctx}, nil
		}
		if err := e.debit(ctx, sender, total); err != nil {
			return nil, err
		}
	}

	return &Outcome{Output: out, Commit: ctx}, nil
}

func (e *Engine) execNone(ctx *envstore.Context, tx *chain.Transaction) error {
	for i := range tx.To {
		amt, err := decimal.NewFromString(tx.Amount[i])
		if err != nil {
			return fmt.Errorf("invalid amount %q", tx.Amount[i])
		}
		if err := e.credit(ctx, tx.To[i], amt); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) execDeploy(ctx *envstore.Context, tx *chain.Transaction) error {
	if len(tx.To) == 0 {
		return fmt.Errorf("CONTRACT tx requires a target address")
	}
	cd, ok := tx.Data.(chain.ContractData)
	if !ok {
		return fmt.Errorf("CONTRACT tx missing contract payload")
	}
	contract, err := vm.Deploy(string(cd.Code))
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	addr := tx.To[0]
	e.env.Set(ctx, keyContractCode+string(addr), []byte(contract.Code))
	abiJSON, err := marshalABI(contract.ABI)
	if err != nil {
		return err
	}
	e.env.Set(ctx, keyContractABI+string(addr), abiJSON)
	return nil
}

func (e *Engine) getBalance(ctx *envstore.Context, addr chain.Address) (decimal.Decimal, error) {
	raw, found, err := e.env.Get(ctx, keyBalance+string(addr))
	if err != nil {
		return decimal.Zero, err
	}
	if !found {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt balance for %s: %w", addr, err)
	}
	return v, nil
}

func (e *Engine) setBalance(ctx *envstore.Context, addr chain.Address, v decimal.Decimal) {
	e.env.Set(ctx, keyBalance+string(addr), []byte(v.String()))
}

func (e *Engine) credit(ctx *envstore.Context, addr chain.Address, amount decimal.Decimal) error {
	bal, err := e.getBalance(ctx, addr)
	if err != nil {
		return err
	}
	e.setBalance(ctx, addr, bal.Add(amount))
	return nil
}

func (e *Engine) debit(ctx *envstore.Context, addr chain.Address, amount decimal.Decimal) error {
	bal, err := e.getBalance(ctx, addr)
	if err != nil {
		return err
	}
	next := bal.Sub(amount)
	if next.IsNegative() {
		return fmt.Errorf("insufficient funds")
	}
	e.setBalance(ctx, addr, next)
	return nil
}

func (e *Engine) isAdmin(ctx *envstore.Context, addr chain.Address) (bool, error) {
	return e.IsAdmin(ctx, addr)
}

// IsAdmin reports whether addr holds the admin role at ctx, the same role
// check txexec's COMMAND dispatch uses.
func (e *Engine) IsAdmin(ctx *envstore.Context, addr chain.Address) (bool, error) {
	_, found, err := e.env.Get(ctx, keyAdminRole+string(addr))
	return found, err
}

// IsValidator reports whether addr holds the validator role at ctx.
func (e *Engine) IsValidator(ctx *envstore.Context, addr chain.Address) (bool, error) {
	_, found, err := e.env.Get(ctx, keyValidatorRole+string(addr))
	return found, err
}

// Balance reads addr's balance at ctx as a decimal string, for callers
// (the `/wallets/:address/:chain` RPC) that need a read without running a
// transaction through Execute.
func (e *Engine) Balance(ctx *envstore.Context, addr chain.Address) (string, error) {
	v, err := e.getBalance(ctx, addr)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

// execContractExe runs every (to[i], method, inputs) call in tx's
// ContractExeData in order, within a single envstore.Context so later calls
// see earlier writes (spec §4.5 step 3, CONTRACT_EXE).
func (e *Engine) execContractExe(ctx *envstore.Context, chainID string, opts ExecOptions, sender chain.Address, tx *chain.Transaction) (gasUsed uint64, logs []string, events []chain.Event, replayLogs [][]vm.ReplayEntry, err error) {
	ced, ok := tx.Data.(chain.ContractExeData)
	if !ok {
		return 0, nil, nil, nil, fmt.Errorf("CONTRACT_EXE tx missing call payload")
	}
	if len(ced.Calls) != len(tx.To) {
		return 0, nil, nil, nil, fmt.Errorf("CONTRACT_EXE call count %d does not match to[] length %d", len(ced.Calls), len(tx.To))
	}

	for i, call := range ced.Calls {
		contract, lerr := e.contracts.LoadContract(ctx, call.To)
		if lerr != nil {
			return gasUsed, logs, events, replayLogs, fmt.Errorf("load contract %s: %w", call.To, lerr)
		}
		spec, found := contract.MethodByName(call.Method)
		if !found {
			return gasUsed, logs, events, replayLogs, fmt.Errorf("contract %s has no method %q", call.To, call.Method)
		}
		if !spec.Payable && i < len(tx.Amount) && tx.Amount[i] != "" && tx.Amount[i] != "0" {
			return gasUsed, logs, events, replayLogs, fmt.Errorf("method %q is not payable", call.Method)
		}

		host := &envHost{
			engine: e, ctx: ctx, chainID: chainID, blockHeight: opts.BlockHeight,
			tx: tx, this: call.To, sender: sender, amounts: tx.Amount, depth: 0,
			logs: &logs, events: &events,
		}
		remaining := uint64(0)
		if gasUsed < e.gasBudget {
			remaining = e.gasBudget - gasUsed
		}
		res, ierr := vm.Invoke(vm.InvokeRequest{
			Contract:   contract,
			Method:     call.Method,
			Inputs:     call.Inputs,
			Host:       host,
			GasBudget:  remaining,
			RandomSeed: string(opts.SliceProposer) + ":" + tx.Hash.Hex(),
		})
		if ierr != nil {
			return gasUsed, logs, events, replayLogs, ierr
		}
		gasUsed += res.GasUsed
		replayLogs = append(replayLogs, res.Replay)
		if res.Reverted {
			return gasUsed, logs, events, replayLogs, fmt.Errorf("%s.%s reverted: %s", call.To, call.Method, res.Error)
		}
	}
	return gasUsed, logs, events, replayLogs, nil
}

// VerifyReplay re-executes tx's CONTRACT_EXE calls against the per-call
// host-call logs recorded in tx.Output.Extra at the node that originally
// ran it; the calls still run live against base. Every recorded host call
// (writes, log, emitEvent, getRandom and externalContract; see
// vm/bridge.go) compares its live result to the logged one and panics on
// any mismatch, so a divergence — a different getRandom draw, a different
// externalContract response, anything not reproducible byte-for-byte from
// tx and the chain's persisted state — surfaces as res.Reverted=true here.
// Callers (pipeline's COMPLETE→EXECUTED transition) treat that as grounds to
// mark the containing block INVALID rather than execute it (spec §4.6).
func (e *Engine) VerifyReplay(chainID string, base chain.Hash, tx *chain.Transaction, sliceProposer chain.Address, blockHeight uint64) error {
	if tx.Type != chain.TxContractExe || tx.Output == nil || tx.Output.Extra == nil {
		return nil
	}
	raw, ok := tx.Output.Extra[keyExtraReplay]
	if !ok {
		return nil
	}
	var logs [][]vm.ReplayEntry
	if err := json.Unmarshal([]byte(raw), &logs); err != nil {
		return fmt.Errorf("txexec: corrupt replay log for tx %s: %w", tx.Hash.Hex(), err)
	}

	ced, ok := tx.Data.(chain.ContractExeData)
	if !ok {
		return fmt.Errorf("txexec: CONTRACT_EXE tx %s missing call payload", tx.Hash.Hex())
	}
	if len(logs) != len(ced.Calls) {
		return fmt.Errorf("txexec: tx %s replay log has %d calls, want %d", tx.Hash.Hex(), len(logs), len(ced.Calls))
	}

	ctx := envstore.NewContext(chainID, base)
	var sender chain.Address
	if len(tx.From) > 0 {
		sender = tx.From[0]
	}
	for i, call := range ced.Calls {
		contract, lerr := e.contracts.LoadContract(ctx, call.To)
		if lerr != nil {
			return fmt.Errorf("txexec: replay verify: load contract %s: %w", call.To, lerr)
		}
		var logs2 []string
		var events2 []chain.Event
		host := &envHost{
			engine: e, ctx: ctx, chainID: chainID, blockHeight: blockHeight,
			tx: tx, this: call.To, sender: sender, amounts: tx.Amount, depth: 0,
			logs: &logs2, events: &events2,
		}
		res, ierr := vm.Invoke(vm.InvokeRequest{
			Contract:   contract,
			Method:     call.Method,
			Inputs:     call.Inputs,
			Host:       host,
			GasBudget:  e.gasBudget,
			RandomSeed: string(sliceProposer) + ":" + tx.Hash.Hex(),
			ReplayLog:  logs[i],
		})
		if ierr != nil {
			return fmt.Errorf("txexec: replay verify call %d: %w", i, ierr)
		}
		if res.Reverted {
			return fmt.Errorf("txexec: replay mismatch on tx %s call %d (%s.%s): %s", tx.Hash.Hex(), i, call.To, call.Method, res.Error)
		}
	}
	return nil
}
