package plugin

import (
	"time"

	"modyn/pkg/abi"
)

// State is a plugin's lifecycle state.
type State int

const (
	StateUnloaded State = iota
	StateLoaded
	StateInitialized
	StateError
	StateDeprecated
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateInitialized:
		return "initialized"
	case StateError:
		return "error"
	case StateDeprecated:
		return "deprecated"
	default:
		return "unloaded"
	}
}

// Descriptor is a read-only view of a plugin, as loaded or as discovered.
type Descriptor struct {
	Name         string
	Description  string
	Author       string
	Version      abi.Version
	Type         abi.PluginType
	Backend      abi.BackendID
	Dependencies []abi.Dependency
	Path         string
	State        State
	LoadedAt     time.Time
	LastError    string
}

// entry is the loader's owned record of one loaded library.
type entry struct {
	path     string
	info     abi.PluginInfo
	iface    abi.PluginInterface
	lib      Library
	state    State
	loadedAt time.Time
	lastErr  error
	factory  *abi.BackendFactory
}

func (e *entry) active() bool {
	return e.state != StateDeprecated && e.state != StateUnloaded
}

func (e *entry) descriptor() Descriptor {
	d := describe(e.path, &e.info)
	d.State = e.state
	d.LoadedAt = e.loadedAt
	if e.lastErr != nil {
		d.LastError = e.lastErr.Error()
	}
	return d
}

func describe(path string, info *abi.PluginInfo) Descriptor {
	return Descriptor{
		Name:         info.Name,
		Description:  info.Description,
		Author:       info.Author,
		Version:      info.Version,
		Type:         info.Type,
		Backend:      info.Backend,
		Dependencies: append([]abi.Dependency(nil), info.Dependencies...),
		Path:         path,
	}
}
