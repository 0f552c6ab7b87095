package txexec

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"bywise/chain"
	"bywise/envstore"
	"bywise/vm"
)

// execCommand dispatches a COMMAND tx's named builtin, requiring sender to
// be an admin (spec §4.5 step 3).
func (e *Engine) execCommand(ctx *envstore.Context, chainID string, blockHeight uint64, sender chain.Address, tx *chain.Transaction) error {
	return e.execBuiltin(ctx, chainID, blockHeight, tx, false)
}

// execBuiltin is shared by COMMAND and genesis BLOCKCHAIN_COMMAND
// transactions; bypassAdmin skips the admin-membership check for genesis.
func (e *Engine) execBuiltin(ctx *envstore.Context, chainID string, blockHeight uint64, tx *chain.Transaction, bypassAdmin bool) error {
	cd, ok := tx.Data.(chain.CommandData)
	if !ok {
		return fmt.Errorf("COMMAND tx missing command payload")
	}

	if !bypassAdmin {
		if len(tx.From) == 0 {
			return fmt.Errorf("COMMAND tx requires a sender")
		}
		ok, err := e.isAdmin(ctx, tx.From[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("sender %s is not an admin", tx.From[0])
		}
	}

	args := cd.Inputs
	switch cd.Name {
	case "setBalance":
		if len(args) != 2 {
			return fmt.Errorf("setBalance requires (addr, amount)")
		}
		v, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("setBalance: invalid amount %q", args[1])
		}
		e.setBalance(ctx, chain.Address(args[0]), v)
		return nil

	case "addBalance":
		if len(args) != 2 {
			return fmt.Errorf("addBalance requires (addr, amount)")
		}
		v, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("addBalance: invalid amount %q", args[1])
		}
		return e.credit(ctx, chain.Address(args[0]), v)

	case "subBalance":
		if len(args) != 2 {
			return fmt.Errorf("subBalance requires (addr, amount)")
		}
		v, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("subBalance: invalid amount %q", args[1])
		}
		return e.debit(ctx, chain.Address(args[0]), v)

	case "setConfig":
		if len(args) != 2 {
			return fmt.Errorf("setConfig requires (key, value)")
		}
		// Activation delay (spec §4.3) is enforced by feeconfig's
		// HeightResolver reading an ancestor commit; the write itself lands
		// immediately in this commit.
		e.env.Set(ctx, keyConfigPrefix+args[0], []byte(args[1]))
		return nil

	case "addAdmin":
		if len(args) != 1 {
			return fmt.Errorf("addAdmin requires (addr)")
		}
		e.env.Set(ctx, keyAdminRole+args[0], []byte{1})
		return nil

	case "removeAdmin":
		if len(args) != 1 {
			return fmt.Errorf("removeAdmin requires (addr)")
		}
		e.env.Delete(ctx, keyAdminRole+args[0])
		return nil

	case "addValidator":
		if len(args) != 1 {
			return fmt.Errorf("addValidator requires (addr)")
		}
		e.env.Set(ctx, keyValidatorRole+args[0], []byte{1})
		return nil

	case "removeValidator":
		if len(args) != 1 {
			return fmt.Errorf("removeValidator requires (addr)")
		}
		e.env.Delete(ctx, keyValidatorRole+args[0])
		return nil

	default:
		return fmt.Errorf("unknown builtin command %q", cd.Name)
	}
}

func marshalABI(specs []vm.MethodSpec) ([]byte, error) {
	b, err := json.Marshal(specs)
	if err != nil {
		return nil, fmt.Errorf("marshal ABI: %w", err)
	}
	return b, nil
}

func unmarshalABI(b []byte) ([]vm.MethodSpec, error) {
	var specs []vm.MethodSpec
	if err := json.Unmarshal(b, &specs); err != nil {
		return nil, fmt.Errorf("unmarshal ABI: %w", err)
	}
	return specs, nil
}
