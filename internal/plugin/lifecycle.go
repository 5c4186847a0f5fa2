package plugin

import (
	"fmt"

	"modyn/pkg/abi"
)

// Initialize runs the plugin's Initialize entry with cfg. For an
// inference-engine plugin it then fetches the backend factory and registers
// it. Initializing an Initialized plugin is a no-op. A failure moves the
// plugin to Error; Initialize may be retried from there.
func (l *Loader) Initialize(name string, cfg map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.activeLocked(name)
	if e == nil {
		return notFoundError{name: name}
	}
	return l.initializeLocked(e, cfg)
}

func (l *Loader) initializeLocked(e *entry, cfg map[string]string) error {
	switch e.state {
	case StateInitialized:
		return nil
	case StateLoaded, StateError:
	default:
		return stateError{name: e.info.Name, state: e.state, op: "initialize"}
	}
	if e.iface.Initialize != nil {
		if err := guard("initialize", func() error { return e.iface.Initialize(cfg) }); err != nil {
			return l.fail(e, fmt.Errorf("initialize %s: %w", e.info.Name, err))
		}
	}
	if e.info.Type == abi.PluginInferenceEngine {
		f, err := l.factoryLocked(e)
		if err != nil {
			l.finalizeQuiet(e)
			return l.fail(e, err)
		}
		if l.registrar != nil {
			if err := l.registrar.RegisterFactory(f); err != nil {
				l.finalizeQuiet(e)
				return l.fail(e, fmt.Errorf("register %s backend %s: %w", e.info.Name, f.ID, err))
			}
		}
		e.factory = f
	}
	e.state = StateInitialized
	e.lastErr = nil
	l.log.Info().Str("plugin", e.info.Name).Str("backend", string(e.info.Backend)).Msg("plugin initialized")
	return nil
}

// factoryLocked asks the plugin for its backend factory by calling
// CreateInstance with a nil config.
func (l *Loader) factoryLocked(e *entry) (*abi.BackendFactory, error) {
	if e.iface.CreateInstance == nil {
		return nil, fmt.Errorf("plugin %s: no CreateInstance entry", e.info.Name)
	}
	var v any
	if err := guard("create_instance", func() error {
		var err error
		v, err = e.iface.CreateInstance(nil)
		return err
	}); err != nil {
		return nil, fmt.Errorf("plugin %s: fetch factory: %w", e.info.Name, err)
	}
	f, ok := v.(*abi.BackendFactory)
	if !ok || !f.Valid() {
		return nil, fmt.Errorf("plugin %s: CreateInstance(nil) returned %T, want a valid *abi.BackendFactory", e.info.Name, v)
	}
	if e.info.Backend != "" && f.ID != e.info.Backend {
		return nil, fmt.Errorf("plugin %s: factory id %q does not match advertised backend %q", e.info.Name, f.ID, e.info.Backend)
	}
	return f, nil
}

func (l *Loader) fail(e *entry, err error) error {
	e.state = StateError
	e.lastErr = err
	l.log.Warn().Err(err).Str("plugin", e.info.Name).Msg("plugin initialization failed")
	return err
}

func (l *Loader) finalizeQuiet(e *entry) {
	if e.iface.Finalize != nil {
		_ = guard("finalize", e.iface.Finalize)
	}
}

// Finalize unregisters the plugin's backend and runs its Finalize entry,
// returning it to Loaded. Finalizing a plugin that is not Initialized is a no-op.
func (l *Loader) Finalize(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.activeLocked(name)
	if e == nil {
		return notFoundError{name: name}
	}
	return l.finalizeLocked(e)
}

func (l *Loader) finalizeLocked(e *entry) error {
	if e.state != StateInitialized {
		return nil
	}
	if e.factory != nil && l.registrar != nil {
		if cur, ok := l.registrar.Lookup(e.factory.ID); ok && cur == e.factory {
			l.registrar.Unregister(e.factory.ID)
		}
	}
	e.factory = nil
	e.state = StateLoaded
	var err error
	if e.iface.Finalize != nil {
		err = guard("finalize", e.iface.Finalize)
	}
	l.log.Info().Str("plugin", e.info.Name).Msg("plugin finalized")
	return err
}

// SelfTest runs the plugin's SelfTest entry.
func (l *Loader) SelfTest(name string) error {
	iface, err := l.iface(name)
	if err != nil {
		return err
	}
	if iface.SelfTest == nil {
		return ErrUnsupported
	}
	return guard("self_test", iface.SelfTest)
}

// ConfigSchema returns the plugin's configuration schema document.
func (l *Loader) ConfigSchema(name string) (string, error) {
	iface, err := l.iface(name)
	if err != nil {
		return "", err
	}
	if iface.ConfigSchema == nil {
		return "", ErrUnsupported
	}
	var s string
	err = guard("config_schema", func() error { s = iface.ConfigSchema(); return nil })
	return s, err
}

// Control forwards a plugin-specific command.
func (l *Loader) Control(name, command string, arg any) (any, error) {
	iface, err := l.iface(name)
	if err != nil {
		return nil, err
	}
	if iface.Control == nil {
		return nil, ErrUnsupported
	}
	var out any
	err = guard("control", func() error {
		var err error
		out, err = iface.Control(command, arg)
		return err
	})
	return out, err
}

// iface copies the interface of the active plugin so the call runs without the loader lock.
func (l *Loader) iface(name string) (abi.PluginInterface, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.activeLocked(name)
	if e == nil {
		return abi.PluginInterface{}, notFoundError{name: name}
	}
	return e.iface, nil
}
