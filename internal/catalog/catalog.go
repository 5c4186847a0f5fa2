// Package catalog builds the list of servable models from a models directory
// and per-model configuration.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"modyn/internal/backend"
	"modyn/internal/common/fsutil"
	"modyn/pkg/types"
)

// Scanner finds model files in a directory.
type Scanner struct {
	// Skip lists backend ids whose files are ignored.
	Skip map[string]bool
}

// NewScanner returns a scanner that accepts every known model extension.
func NewScanner() *Scanner { return &Scanner{} }

// Scan lists regular files whose extension maps to a backend. The ID is the
// full file name and Path is absolute. Results are sorted by ID.
func (s *Scanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		id, err := backend.DetectBackend(name)
		if err != nil || s.Skip[string(id)] {
			continue
		}
		m := types.Model{ID: name, Name: name, Path: filepath.Join(abs, name), Backend: string(id)}
		if fi, err := e.Info(); err == nil {
			m.SizeBytes = fi.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with the default scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner().Scan(dir)
}

// Entry declares a model explicitly or overrides a scanned one.
type Entry struct {
	ID      string
	Path    string
	Backend string
}

// Merge applies entries over scanned models. An entry with a known ID
// replaces the non-empty fields; an unknown ID with a path adds a model.
// The backend of added models is detected from the path when unset.
func Merge(models []types.Model, entries []Entry) ([]types.Model, error) {
	out := append([]types.Model(nil), models...)
	index := make(map[string]int, len(out))
	for i, m := range out {
		index[m.ID] = i
	}
	for _, e := range entries {
		i, ok := index[e.ID]
		if !ok {
			if e.Path == "" {
				return nil, fmt.Errorf("model %q: not found in models directory and no path configured", e.ID)
			}
			out = append(out, types.Model{ID: e.ID, Name: e.ID})
			i = len(out) - 1
			index[e.ID] = i
		}
		m := &out[i]
		if e.Path != "" {
			p, err := fsutil.ExpandHome(e.Path)
			if err != nil {
				return nil, err
			}
			if p, err = filepath.Abs(p); err != nil {
				return nil, fmt.Errorf("abs path: %w", err)
			}
			m.Path = p
			if fi, err := os.Stat(p); err == nil {
				m.SizeBytes = fi.Size()
			}
		}
		switch {
		case e.Backend != "":
			m.Backend = e.Backend
		case m.Backend == "" || e.Path != "":
			id, err := backend.DetectBackend(m.Path)
			if err != nil {
				return nil, fmt.Errorf("model %q: %w", e.ID, err)
			}
			m.Backend = string(id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
