package plugin

import (
	"fmt"
	stdplugin "plugin"

	"modyn/pkg/abi"
)

// Library is an opened dynamic library.
type Library interface {
	Lookup(symbol string) (any, error)
	Close() error
}

// Opener opens dynamic libraries. The default opener uses the Go runtime's
// plugin package; tests substitute an in-memory one.
type Opener interface {
	Open(path string) (Library, error)
}

// GoOpener opens libraries built with -buildmode=plugin.
type GoOpener struct{}

func (GoOpener) Open(path string) (Library, error) {
	p, err := stdplugin.Open(path)
	if err != nil {
		return nil, err
	}
	return goLibrary{p: p}, nil
}

type goLibrary struct{ p *stdplugin.Plugin }

func (l goLibrary) Lookup(symbol string) (any, error) {
	s, err := l.p.Lookup(symbol)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close is a no-op: the Go runtime never unmaps a plugin.
func (goLibrary) Close() error { return nil }

// resolve fetches and validates both entry points from lib. The returned
// values are copies owned by the caller.
func resolve(path string, lib Library) (abi.PluginInfo, abi.PluginInterface, error) {
	var info abi.PluginInfo
	var iface abi.PluginInterface

	getInfo, err := lookupFunc[abi.GetInfoFunc](lib, abi.SymbolGetInfo)
	if err != nil {
		return info, iface, loadError{path: path, reason: "missing entry point " + abi.SymbolGetInfo, err: err}
	}
	getIface, err := lookupFunc[abi.GetInterfaceFunc](lib, abi.SymbolGetInterface)
	if err != nil {
		return info, iface, loadError{path: path, reason: "missing entry point " + abi.SymbolGetInterface, err: err}
	}

	var ip *abi.PluginInfo
	if err := guard(abi.SymbolGetInfo, func() error { ip = getInfo(); return nil }); err != nil {
		return info, iface, loadError{path: path, reason: "entry point failed", err: err}
	}
	if ip == nil {
		return info, iface, loadError{path: path, reason: abi.SymbolGetInfo + " returned nil"}
	}
	if !ip.Valid() {
		return info, iface, loadError{path: path, reason: fmt.Sprintf("bad plugin info (magic %#x, abi %d, name %q)", ip.Magic, ip.ABIVersion, ip.Name)}
	}

	var fp *abi.PluginInterface
	if err := guard(abi.SymbolGetInterface, func() error { fp = getIface(); return nil }); err != nil {
		return info, iface, loadError{path: path, reason: "entry point failed", err: err}
	}
	if fp == nil {
		return info, iface, loadError{path: path, reason: abi.SymbolGetInterface + " returned nil"}
	}
	if !fp.Valid() {
		return info, iface, loadError{path: path, reason: fmt.Sprintf("bad plugin interface (magic %#x)", fp.Magic)}
	}

	info = *ip
	info.Dependencies = append([]abi.Dependency(nil), ip.Dependencies...)
	iface = *fp
	return info, iface, nil
}

// lookupFunc resolves symbol as a function of type F. Go plugins expose
// exported functions directly and exported variables as pointers; both are
// accepted.
func lookupFunc[F any](lib Library, symbol string) (F, error) {
	var zero F
	s, err := lib.Lookup(symbol)
	if err != nil {
		return zero, err
	}
	switch fn := s.(type) {
	case F:
		return fn, nil
	case *F:
		if fn != nil {
			return *fn, nil
		}
	}
	return zero, fmt.Errorf("symbol %s has type %T", symbol, s)
}

// guard runs fn and turns a panic into an error.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{op: op, val: r}
		}
	}()
	return fn()
}
