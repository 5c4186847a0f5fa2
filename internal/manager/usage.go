package manager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// UsageRecord is the persisted usage of one model.
type UsageRecord struct {
	LastUsedUnix int64  `json:"last_used_unix"`
	Loads        uint64 `json:"loads"`
	Inferences   uint64 `json:"inferences"`
}


func (m *Manager) loadUsage() {
	if m.usagePath == "" {
		return
	}
	f, err := os.Open(m.usagePath)
	if err != nil {
		return
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	var data map[string]UsageRecord
	if err := dec.Decode(&data); err == nil && data != nil {
		m.usage = data
	} else if err != nil {
		m.log.Warn().Err(err).Str("path", m.usagePath).Msg("ignoring unreadable usage file")
	}
}

func (m *Manager) saveUsage() {
	if m.usagePath == "" {
		return
	}
	// Snapshot under lock
	m.mu.RLock()
	snap := make(map[string]UsageRecord, len(m.usage))
	for id, u := range m.usage {
		snap[id] = u
	}
	m.mu.RUnlock()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.usagePath), ".usage-*")
	if err != nil {
		m.log.Warn().Err(err).Str("path", m.usagePath).Msg("save usage")
		return
	}
	_, werr := tmp.Write(b)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), m.usagePath); err != nil {
		_ = os.Remove(tmp.Name())
		m.log.Warn().Err(err).Str("path", m.usagePath).Msg("save usage")
	}
}

func (m *Manager) recordUse(id string, load, inference bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.usage[id]
	u.LastUsedUnix = time.Now().Unix()
	if load {
		u.Loads++
	}
	if inference {
		u.Inferences++
	}
	m.usage[id] = u
}

// Usage returns a copy of the per-model usage, including records loaded
// from the usage file.
func (m *Manager) Usage() map[string]UsageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]UsageRecord, len(m.usage))
	for id, u := range m.usage {
		out[id] = u
	}
	return out
}
