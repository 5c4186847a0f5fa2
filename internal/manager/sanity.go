package manager

import (
	"os"
	"sort"
)

// ModelCheck is the sanity result for one catalog entry.
type ModelCheck struct {
	ID        string `json:"id"`
	Backend   string `json:"backend"`
	FileOK    bool   `json:"file_ok"`
	BackendOK bool   `json:"backend_ok"`
	Error     string `json:"error,omitempty"`
}

// SanityReport describes runtime checks for backends, plugins and models.
type SanityReport struct {
	OK             bool         `json:"ok"`
	Backends       []string     `json:"backends"`
	PluginsLoaded  int          `json:"plugins_loaded"`
	MemoryBytes    int          `json:"memory_bytes"`
	DefaultModel   string       `json:"default_model,omitempty"`
	DefaultModelOK bool         `json:"default_model_ok"`
	Models         []ModelCheck `json:"models"`
	Error          string       `json:"error,omitempty"`
}

// SanityCheck validates that every catalog model has a readable file and a
// backend that is registered or discoverable. It does not load plugins or
// mutate state and is safe to call at any time.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{Backends: []string{}, Models: []ModelCheck{}}
	if m.rt == nil {
		r.Error = "serving runtime not configured"
		return r
	}
	avail := map[string]bool{}
	for _, id := range m.rt.AvailableBackends() {
		avail[string(id)] = true
		r.Backends = append(r.Backends, string(id))
	}
	r.PluginsLoaded = len(m.rt.Loader().List())
	if mp := m.rt.Memory(); mp != nil {
		r.MemoryBytes = mp.Size()
	}

	m.mu.RLock()
	models := append(m.registry[:0:0], m.registry...)
	r.DefaultModel = m.defaultModel
	m.mu.RUnlock()
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	r.OK = true
	for _, mdl := range models {
		c := ModelCheck{ID: mdl.ID, Backend: mdl.Backend, BackendOK: avail[mdl.Backend]}
		fi, err := os.Stat(mdl.Path)
		switch {
		case err != nil:
			c.Error = err.Error()
		case !fi.Mode().IsRegular():
			c.Error = "model path is not a regular file"
		default:
			c.FileOK = true
		}
		if !c.BackendOK && c.Error == "" {
			c.Error = "backend " + mdl.Backend + " not available"
		}
		if !c.FileOK || !c.BackendOK {
			r.OK = false
		}
		if mdl.ID == r.DefaultModel {
			r.DefaultModelOK = c.FileOK && c.BackendOK
		}
		r.Models = append(r.Models, c)
	}
	if r.DefaultModel != "" && !r.DefaultModelOK {
		r.OK = false
		if r.Error == "" {
			r.Error = "default model " + r.DefaultModel + " is not servable"
		}
	}
	return r
}
