package vm

import (
	"fmt"

	"github.com/dop251/goja"
)

// MethodSpec is one entry of a contract's ABI: a callable method plus the
// flags the execution engine enforces before invoking it.
type MethodSpec struct {
	Name    string `json:"name"`
	View    bool   `json:"view"`    // must not write storage
	Payable bool   `json:"payable"` // may receive amount > 0
	Arity   int    `json:"arity"`
}

// Contract is a deployed script plus its introspected ABI.
type Contract struct {
	Code string
	ABI  []MethodSpec
}

// MethodByName looks up spec by name.
func (c *Contract) MethodByName(name string) (MethodSpec, bool) {
	for _, m := range c.ABI {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSpec{}, false
}

// Deploy runs code once in an unprivileged sandbox to extract its
// declared ABI: every contract must assign a top-level `const ABI = [...]`
// array of {name, view, payable, arity} objects. Deployment itself never
// touches host state.
func Deploy(code string) (*Contract, error) {
	rt := goja.New()
	rt.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	if _, err := rt.RunString(code); err != nil {
		return nil, fmt.Errorf("vm: deploy: script error: %w", err)
	}

	abiVal := rt.Get("ABI")
	if abiVal == nil || goja.IsUndefined(abiVal) {
		return nil, fmt.Errorf("vm: deploy: contract does not declare a top-level ABI")
	}

	var specs []MethodSpec
	if err := rt.ExportTo(abiVal, &specs); err != nil {
		return nil, fmt.Errorf("vm: deploy: invalid ABI: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("vm: deploy: ABI declares no methods")
	}
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if seen[s.Name] {
			return nil, fmt.Errorf("vm: deploy: duplicate method %q in ABI", s.Name)
		}
		seen[s.Name] = true
	}

	return &Contract{Code: code, ABI: specs}, nil
}
