package txexec

import (
	"fmt"

	"bywise/chain"
	"bywise/envstore"
	"bywise/vm"
)

// EnvContractLoader reads deployed contract code/ABI back out of the same
// envstore.Store every Engine writes to at CONTRACT deploy time.
type EnvContractLoader struct {
	env *envstore.Store
}

// NewEnvContractLoader wires a loader over env.
func NewEnvContractLoader(env *envstore.Store) *EnvContractLoader {
	return &EnvContractLoader{env: env}
}

// LoadContract satisfies ContractLoader.
func (l *EnvContractLoader) LoadContract(ctx *envstore.Context, addr chain.Address) (*vm.Contract, error) {
	code, found, err := l.env.Get(ctx, keyContractCode+string(addr))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("no contract deployed at %s", addr)
	}
	abiRaw, found, err := l.env.Get(ctx, keyContractABI+string(addr))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("contract %s missing ABI", addr)
	}
	specs, err := unmarshalABI(abiRaw)
	if err != nil {
		return nil, err
	}
	return &vm.Contract{Code: string(code), ABI: specs}, nil
}
