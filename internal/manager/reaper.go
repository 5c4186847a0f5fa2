package manager

import "time"

// Start launches the idle reaper. Calling it again while running is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.reapStop != nil || m.closed {
		m.mu.Unlock()
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	m.reapStop, m.reapDone = stop, done
	interval := m.reapInterval
	m.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				m.Reap()
			}
		}
	}()
}

func (m *Manager) stopReaper() {
	m.mu.Lock()
	stop, done := m.reapStop, m.reapDone
	m.reapStop, m.reapDone = nil, nil
	m.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// Reap cleans up idle and failed instances in every pool, then closes pools
// left empty whose model keeps no minimum. It returns the number of
// instances removed.
func (m *Manager) Reap() int {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.pools))
	for _, e := range m.pools {
		if !e.draining && !e.warming {
			entries = append(entries, e)
		}
	}
	m.mu.RUnlock()

	removed := 0
	var empty []*entry
	for _, e := range entries {
		removed += e.pool.CleanupIdle()
		st := e.pool.Stats()
		if st.Total == 0 && st.Loading == 0 && st.Waiters == 0 && st.Min == 0 {
			empty = append(empty, e)
		}
	}

	var dropped []*entry
	if len(empty) > 0 {
		m.mu.Lock()
		for _, e := range empty {
			if m.pools[e.model.ID] == e && !e.draining {
				delete(m.pools, e.model.ID)
				dropped = append(dropped, e)
			}
		}
		m.mu.Unlock()
	}
	for _, e := range dropped {
		_ = e.pool.Close()
		m.publish("pool_reaped", e.model.ID, nil)
	}
	if removed > 0 || len(dropped) > 0 {
		m.log.Debug().Int("instances", removed).Int("pools", len(dropped)).Msg("reaped")
		m.saveUsage()
	}
	return removed
}
