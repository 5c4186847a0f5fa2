package backend

import (
	"modyn/internal/backend/dummy"
	"modyn/internal/backend/llamacpp"
	"modyn/pkg/abi"
)

// Builtins returns the factories compiled into this binary. llama.cpp is left
// out of builds without the 'llama' tag so a plugin may still supply it.
func Builtins() []*abi.BackendFactory {
	out := []*abi.BackendFactory{dummy.Factory()}
	if llamacpp.Built() {
		out = append(out, llamacpp.Factory())
	}
	return out
}

// RegisterBuiltins registers every builtin factory in r.
func RegisterBuiltins(r *Registry) error {
	for _, f := range Builtins() {
		if err := r.RegisterFactory(f); err != nil {
			return err
		}
	}
	return nil
}
