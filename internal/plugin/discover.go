package plugin

import (
	"fmt"
	"sort"

	"modyn/pkg/abi"
)

// DiscoverBackend returns a factory for backend id. An active plugin
// advertising id is initialized if needed; otherwise the search paths are
// scanned and the first matching library is loaded and initialized.
func (l *Loader) DiscoverBackend(id abi.BackendID) (*abi.BackendFactory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.byBackendLocked(id); e != nil {
		return l.readyFactoryLocked(e)
	}
	var lastErr error
	for _, dir := range l.paths {
		for _, path := range candidates(dir) {
			d, err := l.probe(path)
			if err != nil {
				lastErr = err
				continue
			}
			if d.Backend != id || d.Type != abi.PluginInferenceEngine {
				continue
			}
			if _, err := l.loadLocked(path); err != nil {
				loadsTotal.WithLabelValues("error").Inc()
				lastErr = err
				continue
			}
			loadsTotal.WithLabelValues("ok").Inc()
			if e := l.byBackendLocked(id); e != nil {
				f, err := l.readyFactoryLocked(e)
				if err == nil {
					return f, nil
				}
				lastErr = err
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("no plugin provides backend %q: %w", id, lastErr)
	}
	return nil, fmt.Errorf("no plugin provides backend %q", id)
}

func (l *Loader) readyFactoryLocked(e *entry) (*abi.BackendFactory, error) {
	if err := l.initializeLocked(e, l.initCfg); err != nil {
		return nil, err
	}
	if e.factory == nil {
		return nil, fmt.Errorf("plugin %s provides no backend factory", e.info.Name)
	}
	return e.factory, nil
}

// DiscoverableBackends lists backend ids advertised by loaded plugins and by
// inference-engine libraries on the search paths.
func (l *Loader) DiscoverableBackends() []abi.BackendID {
	seen := map[abi.BackendID]struct{}{}
	l.mu.Lock()
	for _, e := range l.plugins {
		if e.active() && e.info.Type == abi.PluginInferenceEngine && e.info.Backend != "" {
			seen[e.info.Backend] = struct{}{}
		}
	}
	l.mu.Unlock()
	l.Discover(nil, func(d Descriptor) {
		if d.Type == abi.PluginInferenceEngine && d.Backend != "" {
			seen[d.Backend] = struct{}{}
		}
	})
	out := make([]abi.BackendID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
