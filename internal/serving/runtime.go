// Package serving assembles the backend registry, plugin loader and memory
// pool into one Runtime that the rest of the program passes around.
package serving

import (
	"fmt"

	"github.com/rs/zerolog"

	"modyn/internal/backend"
	"modyn/internal/instancepool"
	"modyn/internal/memory"
	"modyn/internal/plugin"
	"modyn/pkg/abi"
)

// Version is the host version plugins are checked against.
const Version = "0.1.0"

// Config configures a Runtime.
type Config struct {
	// PluginPaths defaults to plugin.DefaultSearchPaths when nil.
	PluginPaths []string
	// PluginConfig is handed to plugins initialized on demand.
	PluginConfig map[string]string
	// MemorySize is the arena size in bytes; 0 disables the memory pool.
	MemorySize      int
	MemoryStrategy  memory.Strategy
	MemoryAlignment int
	// MaxBackends bounds the registry; 0 means unbounded.
	MaxBackends int
	// Opener overrides how plugin libraries are opened.
	Opener plugin.Opener
	Logger *zerolog.Logger
}

// Runtime owns the process-wide serving state.
type Runtime struct {
	registry *backend.Registry
	loader   *plugin.Loader
	memory   *memory.Pool
	log      zerolog.Logger
}

// New builds a Runtime with the builtin backends registered and the plugin
// loader installed as the registry's discoverer.
func New(cfg Config) (*Runtime, error) {
	rt := &Runtime{log: zerolog.Nop()}
	if cfg.Logger != nil {
		rt.log = *cfg.Logger
	}
	rt.registry = backend.NewRegistry(backend.Config{MaxFactories: cfg.MaxBackends, Logger: cfg.Logger})
	if err := backend.RegisterBuiltins(rt.registry); err != nil {
		return nil, fmt.Errorf("register builtin backends: %w", err)
	}
	rt.loader = plugin.New(plugin.Config{
		SearchPaths: cfg.PluginPaths,
		Opener:      cfg.Opener,
		Registrar:   rt.registry,
		HostVersion: abi.MustParseVersion(Version),
		InitConfig:  cfg.PluginConfig,
		Logger:      cfg.Logger,
	})
	rt.registry.SetDiscoverer(rt.loader)
	if cfg.MemorySize > 0 {
		mp, err := memory.New(memory.Config{
			Name:      "runtime",
			Size:      cfg.MemorySize,
			Strategy:  cfg.MemoryStrategy,
			Alignment: cfg.MemoryAlignment,
			Logger:    cfg.Logger,
		})
		if err != nil {
			return nil, err
		}
		rt.memory = mp
	}
	return rt, nil
}

func (rt *Runtime) Registry() *backend.Registry { return rt.registry }
func (rt *Runtime) Loader() *plugin.Loader      { return rt.loader }

// Memory returns the shared memory pool, or nil when disabled.
func (rt *Runtime) Memory() *memory.Pool { return rt.memory }

// CreateEngine builds an engine, discovering a plugin backend if needed.
func (rt *Runtime) CreateEngine(id abi.BackendID, cfg *abi.EngineConfig) (abi.Engine, error) {
	return rt.registry.CreateEngine(id, cfg)
}

// AvailableBackends lists registered and plugin-discoverable backend ids.
func (rt *Runtime) AvailableBackends() []abi.BackendID {
	return rt.registry.AvailableBackends()
}

// DetectBackend maps a model file to a backend id by extension.
func (rt *Runtime) DetectBackend(path string) (abi.BackendID, error) {
	return backend.DetectBackend(path)
}

// LoadPlugin loads the library at path and, when initialize is set,
// initializes it so its backend is registered.
func (rt *Runtime) LoadPlugin(path string, initialize bool) (plugin.Descriptor, error) {
	d, err := rt.loader.LoadFromFile(path)
	if err != nil || !initialize {
		return d, err
	}
	if err := rt.loader.Initialize(d.Name, nil); err != nil {
		return d, err
	}
	d, _ = rt.loader.Get(d.Name)
	return d, nil
}

// NewInstancePool builds a pool whose engines come from this runtime and
// whose memory comes from the runtime's pool unless cfg sets its own.
func (rt *Runtime) NewInstancePool(cfg instancepool.Config) (*instancepool.Pool, error) {
	if cfg.Creator == nil {
		cfg.Creator = rt
	}
	if cfg.Memory == nil {
		cfg.Memory = rt.memory
	}
	if cfg.Backend == "" && cfg.Engine.Backend == "" && cfg.ModelPath != "" {
		id, err := rt.DetectBackend(cfg.ModelPath)
		if err != nil {
			return nil, err
		}
		cfg.Backend = id
	}
	if cfg.Logger == nil {
		l := rt.log
		cfg.Logger = &l
	}
	return instancepool.New(cfg)
}

// Close unloads every plugin and destroys the memory pool. Instance pools
// built from the runtime must be closed first.
func (rt *Runtime) Close() error {
	err := rt.loader.Close()
	if rt.memory != nil {
		if merr := rt.memory.Close(); merr != nil && err == nil {
			err = merr
		}
	}
	return err
}
