package manager

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"modyn/internal/instancepool"
	"modyn/internal/serving"
	"modyn/pkg/types"
)

type Manager struct {
	mu           sync.RWMutex
	rt           *serving.Runtime
	state        State
	err          string
	registry     []types.Model
	defaultModel string
	poolDefaults instancepool.Config
	overrides    map[string]ModelOverride

	pools     map[string]*entry
	publisher EventPublisher
	log       zerolog.Logger

	drainTimeout time.Duration
	reapInterval time.Duration
	reapStop     chan struct{}
	reapDone     chan struct{}

	usagePath string
	usage     map[string]UsageRecord

	startTime time.Time
	evictions uint64
	loads     uint64
	closed    bool
}

// New builds a Manager over rt with package defaults.
func New(rt *serving.Runtime, reg []types.Model, defaultModel string) *Manager {
	return NewWithConfig(ManagerConfig{
		Runtime:      rt,
		Registry:     reg,
		DefaultModel: defaultModel,
	})
}

// Runtime returns the serving runtime the manager draws engines from.
func (m *Manager) Runtime() *serving.Runtime { return m.rt }

// Ready reports whether at least one model pool can serve requests.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}
	for _, e := range m.pools {
		if !e.draining && e.pool.Healthy() {
			return true
		}
	}
	return false
}

// ListModels returns the catalog sorted by id, with load state and last use.
func (m *Manager) ListModels() []types.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Model, len(m.registry))
	copy(out, m.registry)
	for i := range out {
		_, out[i].Loaded = m.pools[out[i].ID]
		if u, ok := m.usage[out[i].ID]; ok {
			out[i].LastUsed = u.LastUsedUnix
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops the reaper, closes every instance pool and saves usage. The
// runtime is owned by the caller and is not closed.
func (m *Manager) Close() error {
	m.stopReaper()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	pools := make([]*entry, 0, len(m.pools))
	for _, e := range m.pools {
		pools = append(pools, e)
	}
	m.pools = make(map[string]*entry)
	m.mu.Unlock()

	var g errgroup.Group
	for _, e := range pools {
		e := e
		g.Go(func() error { return e.pool.Close() })
	}
	err := g.Wait()
	m.saveUsage()
	m.log.Info().Int("pools", len(pools)).Msg("manager closed")
	return err
}
