package manager

// evictOne closes the idle pool that matters least, other than keep: lowest
// priority first, then least recently used. Pools with busy, loading or
// queued work are skipped. It reports whether a pool was evicted.
func (m *Manager) evictOne(keep string) bool {
	m.mu.Lock()
	var lru *entry
	for id, e := range m.pools {
		if id == keep || e.draining || e.warming {
			continue
		}
		st := e.pool.Stats()
		if st.Idle == 0 || st.Busy > 0 || st.Loading > 0 || st.Waiters > 0 {
			continue
		}
		if lru == nil || e.priority < lru.priority ||
			(e.priority == lru.priority && e.lastUsed.Before(lru.lastUsed)) {
			lru = e
		}
	}
	if lru == nil {
		m.mu.Unlock()
		return false
	}
	id := lru.model.ID
	delete(m.pools, id)
	m.evictions++
	m.mu.Unlock()

	if err := lru.pool.Close(); err != nil {
		m.log.Warn().Err(err).Str("model", id).Msg("evicted pool close")
	}
	m.log.Info().Str("model", id).Str("for", keep).Msg("evicted idle pool")
	m.publish("evict", id, map[string]any{"reason": "out_of_memory", "for": keep})
	return true
}
