package plugin

import (
	"os"
	"path/filepath"
	"runtime"

	"modyn/internal/common/fsutil"
)

// DefaultSearchPaths returns ./plugins followed by the platform's install locations.
func DefaultSearchPaths() []string {
	paths := []string{"./plugins"}
	switch runtime.GOOS {
	case "windows":
		if pf := os.Getenv("ProgramFiles"); pf != "" {
			paths = append(paths, filepath.Join(pf, "modyn", "plugins"))
		}
	case "darwin":
		paths = append(paths, "/usr/local/lib/modyn/plugins", "/opt/homebrew/lib/modyn/plugins")
	default:
		paths = append(paths, "/usr/local/lib/modyn/plugins", "/usr/lib/modyn/plugins")
	}
	if home, err := fsutil.ExpandHome("~/.modyn/plugins"); err == nil && home != "" {
		paths = append(paths, home)
	}
	return paths
}

// SearchPaths returns the ordered search directories.
func (l *Loader) SearchPaths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

// AddSearchPath appends dir unless it is already present. A leading ~ is expanded.
func (l *Loader) AddSearchPath(dir string) error {
	dir, err := normalize(dir)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.paths {
		if p == dir {
			return nil
		}
	}
	l.paths = append(l.paths, dir)
	return nil
}

// RemoveSearchPath drops dir and reports whether it was present.
func (l *Loader) RemoveSearchPath(dir string) bool {
	dir, err := normalize(dir)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, p := range l.paths {
		if p == dir {
			l.paths = append(l.paths[:i], l.paths[i+1:]...)
			return true
		}
	}
	return false
}

func normalize(dir string) (string, error) {
	dir, err := fsutil.ExpandHome(dir)
	if err != nil {
		return "", err
	}
	return filepath.Clean(dir), nil
}

// candidates lists library files in dir in name order. Unreadable or missing
// directories yield nothing.
func candidates(dir string) []string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if fsutil.IsDynamicLibrary(p) {
			out = append(out, p)
		}
	}
	return out
}
