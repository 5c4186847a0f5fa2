package manager

import (
	"time"
)

// Unload initiates a graceful drain of a model's pool and removes it.
//   - Marks the entry draining so new requests fail with a too-busy error.
//   - Waits up to the drain timeout for busy instances to be released.
//   - Closes the pool; instances still busy are destroyed on release.
func (m *Manager) Unload(modelID string) error {
	if modelID == "" {
		return ErrModelNotFound("(unspecified)")
	}
	m.mu.Lock()
	e := m.pools[modelID]
	if e == nil {
		m.mu.Unlock()
		return ErrModelNotFound(modelID)
	}
	if e.draining {
		m.mu.Unlock()
		return tooBusyError{modelID: modelID, err: errUnloading}
	}
	e.draining = true
	m.mu.Unlock()
	m.publish("unload_start", modelID, nil)

	start := time.Now()
	if err := e.pool.Drain(m.drainTimeout); err != nil {
		m.log.Warn().Err(err).Str("model", modelID).Msg("unload drain timed out")
		m.publish("unload_timeout", modelID, map[string]any{"error": err.Error()})
	}

	m.mu.Lock()
	if m.pools[modelID] == e {
		delete(m.pools, modelID)
	}
	m.mu.Unlock()
	m.saveUsage()

	m.log.Info().Str("model", modelID).Dur("dur", time.Since(start)).Msg("unloaded")
	m.publish("unload_done", modelID, nil)
	return nil
}
