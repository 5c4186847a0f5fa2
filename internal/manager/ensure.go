package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"modyn/internal/backend"
	"modyn/internal/instancepool"
	"modyn/internal/memory"
)

var errUnloading = errors.New("model is being unloaded")

// EnsureModel makes sure modelID has an instance pool with at least one
// ready instance, or MinInstances when that is larger. An empty id selects
// the default model. Idle pools of other models are evicted when the
// memory pool cannot hold the new instances.
func (m *Manager) EnsureModel(ctx context.Context, modelID string) error {
	id, err := m.resolveID(modelID)
	if err != nil {
		return err
	}
	_, err = m.ensure(ctx, id)
	return err
}

func (m *Manager) ensure(ctx context.Context, id string) (*entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, created, err := m.entryFor(id)
	if err != nil || !created {
		return e, err
	}
	if err := m.warmEntry(e); err != nil {
		return nil, err
	}
	return e, nil
}

// entryFor returns the pool entry of id, creating an empty one if needed.
func (m *Manager) entryFor(id string) (*entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrManagerClosed
	}
	if e := m.pools[id]; e != nil {
		if e.draining {
			return nil, false, tooBusyError{modelID: id, err: errUnloading}
		}
		e.lastUsed = time.Now()
		return e, false, nil
	}
	mdl, ok := m.getModelByID(id)
	if !ok {
		return nil, false, ErrModelNotFound(id)
	}
	if m.rt == nil {
		return nil, false, ErrDependencyUnavailable("serving runtime not configured")
	}
	cfg, prio, err := m.poolConfig(mdl)
	if err != nil {
		return nil, false, err
	}
	pool, err := m.rt.NewInstancePool(cfg)
	if err != nil {
		return nil, false, fmt.Errorf("create pool for %s: %w", id, err)
	}
	e := &entry{model: mdl, pool: pool, priority: prio, lastUsed: time.Now(), warming: true}
	m.pools[id] = e
	m.state = StateLoading
	return e, true, nil
}

// warmEntry brings a new pool up to its minimum, and to one instance when
// the minimum is zero. On failure the pool is closed and forgotten.
func (m *Manager) warmEntry(e *entry) error {
	id := e.model.ID
	start := time.Now()
	m.log.Info().Str("model", id).Str("backend", e.model.Backend).Msg("ensure start")
	m.publish("ensure_start", id, map[string]any{"backend": e.model.Backend})

	err := m.withEviction(id, func() error {
		if err := e.pool.Warmup(0); err != nil {
			return err
		}
		return e.pool.Reserve(1)
	})
	if err != nil {
		m.mu.Lock()
		if m.pools[id] == e {
			delete(m.pools, id)
		}
		m.state = StateError
		m.err = err.Error()
		m.mu.Unlock()
		_ = e.pool.Close()
		m.log.Warn().Err(err).Str("model", id).Msg("ensure failed")
		m.publish("ensure_fail", id, map[string]any{"error": err.Error()})
		return m.classify(id, err)
	}

	m.mu.Lock()
	e.warming = false
	m.loads++
	m.state = StateReady
	m.err = ""
	m.mu.Unlock()
	m.recordUse(id, true, false)
	m.log.Info().Str("model", id).Dur("dur", time.Since(start)).Msg("ensure ready")
	m.publish("ensure_ready", id, map[string]any{"dur_ms": time.Since(start).Milliseconds()})
	return nil
}

// withEviction runs fn, evicting one idle pool other than keep after each
// out-of-memory failure until fn succeeds or nothing is left to evict.
func (m *Manager) withEviction(keep string, fn func() error) error {
	for {
		err := fn()
		if err == nil || !memory.IsOutOfMemory(err) {
			return err
		}
		if !m.evictOne(keep) {
			return err
		}
	}
}

// classify maps lower-level errors onto the manager's error kinds.
func (m *Manager) classify(id string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsTooBusy(err), IsModelNotFound(err), IsDependencyUnavailable(err), IsInvalidRequest(err):
		return err
	case instancepool.IsTimeout(err), instancepool.IsQueueFull(err),
		instancepool.IsDraining(err), instancepool.IsPoolClosed(err):
		return tooBusyError{modelID: id, err: err}
	case memory.IsOutOfMemory(err):
		return dependencyUnavailableError{msg: "insufficient memory for " + id, err: err}
	case backend.IsBackendUnavailable(err):
		return dependencyUnavailableError{msg: "backend unavailable for " + id, err: err}
	}
	return err
}
