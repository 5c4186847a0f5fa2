package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"modyn/pkg/abi"
)

// Discoverer finds factories outside the registry, typically in plugin libraries.
type Discoverer interface {
	// DiscoverBackend returns a factory advertising id, or an error.
	DiscoverBackend(id abi.BackendID) (*abi.BackendFactory, error)
	// DiscoverableBackends lists ids that DiscoverBackend could satisfy.
	DiscoverableBackends() []abi.BackendID
}

// Config configures a Registry.
type Config struct {
	// MaxFactories bounds the table; 0 means unbounded.
	MaxFactories int
	Logger       *zerolog.Logger
}

// Registry is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[abi.BackendID]*abi.BackendFactory
	order     []abi.BackendID
	ceiling   int
	disc      Discoverer
	log       zerolog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg Config) *Registry {
	r := &Registry{
		factories: make(map[abi.BackendID]*abi.BackendFactory),
		ceiling:   cfg.MaxFactories,
		log:       zerolog.Nop(),
	}
	if cfg.Logger != nil {
		r.log = cfg.Logger.With().Str("component", "backend_registry").Logger()
	}
	return r
}

// SetDiscoverer installs the fallback used by CreateEngine when an id is missing.
func (r *Registry) SetDiscoverer(d Discoverer) {
	r.mu.Lock()
	r.disc = d
	r.mu.Unlock()
}

// RegisterFactory adds f. A factory whose id is already registered is left in
// place and the call succeeds.
func (r *Registry) RegisterFactory(f *abi.BackendFactory) error {
	if !f.Valid() {
		return ErrInvalidFactory
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[f.ID]; ok {
		return nil
	}
	if r.ceiling > 0 && len(r.factories) >= r.ceiling {
		return fmt.Errorf("register %q: %w", f.ID, ErrRegistryFull)
	}
	r.factories[f.ID] = f
	r.order = append(r.order, f.ID)
	r.log.Debug().Str("backend", string(f.ID)).Str("name", f.Name).Msg("backend registered")
	return nil
}

// Unregister removes id and reports whether it was present.
func (r *Registry) Unregister(id abi.BackendID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[id]; !ok {
		return false
	}
	delete(r.factories, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.log.Debug().Str("backend", string(id)).Msg("backend unregistered")
	return true
}

func (r *Registry) Lookup(id abi.BackendID) (*abi.BackendFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[id]
	return f, ok
}

// Registered returns registered ids in registration order.
func (r *Registry) Registered() []abi.BackendID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]abi.BackendID(nil), r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// CreateEngine builds an engine for id. A missing id triggers one discovery
// pass through the Discoverer; the discovered factory is registered and the
// lookup retried once.
func (r *Registry) CreateEngine(id abi.BackendID, cfg *abi.EngineConfig) (abi.Engine, error) {
	f, err := r.resolve(id)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &abi.EngineConfig{}
	}
	if cfg.Backend == "" {
		cfg.Backend = id
	}
	eng, err := f.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s engine: %w", id, err)
	}
	if eng == nil {
		return nil, fmt.Errorf("create %s engine: factory returned nil", id)
	}
	return eng, nil
}

func (r *Registry) resolve(id abi.BackendID) (*abi.BackendFactory, error) {
	if f, ok := r.Lookup(id); ok {
		return f, nil
	}
	r.mu.RLock()
	d := r.disc
	r.mu.RUnlock()
	if d == nil {
		return nil, unavailableError{id: id}
	}
	// Discovery runs without the registry lock; the loader may call back into
	// RegisterFactory while initializing the plugin.
	f, err := d.DiscoverBackend(id)
	if err != nil {
		r.log.Debug().Err(err).Str("backend", string(id)).Msg("backend discovery failed")
		return nil, fmt.Errorf("%w: %v", unavailableError{id: id}, err)
	}
	if err := r.RegisterFactory(f); err != nil {
		return nil, err
	}
	if f, ok := r.Lookup(id); ok {
		return f, nil
	}
	return nil, unavailableError{id: id}
}

// AvailableBackends returns registered ids plus ids the Discoverer can supply,
// sorted and without duplicates.
func (r *Registry) AvailableBackends() []abi.BackendID {
	r.mu.RLock()
	seen := make(map[abi.BackendID]struct{}, len(r.factories))
	for id := range r.factories {
		seen[id] = struct{}{}
	}
	d := r.disc
	r.mu.RUnlock()
	if d != nil {
		for _, id := range d.DiscoverableBackends() {
			seen[id] = struct{}{}
		}
	}
	out := make([]abi.BackendID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
