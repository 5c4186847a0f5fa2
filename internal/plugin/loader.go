package plugin

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"modyn/pkg/abi"
)

// Registrar receives the factories of initialized inference-engine plugins.
// *backend.Registry satisfies it.
type Registrar interface {
	RegisterFactory(f *abi.BackendFactory) error
	Unregister(id abi.BackendID) bool
	Lookup(id abi.BackendID) (*abi.BackendFactory, bool)
}

// Config configures a Loader.
type Config struct {
	// SearchPaths defaults to DefaultSearchPaths when nil.
	SearchPaths []string
	// Opener defaults to GoOpener.
	Opener Opener
	// Registrar, when set, receives factories on Initialize.
	Registrar Registrar
	// HostVersion is passed to CheckCompatibility.
	HostVersion abi.Version
	// InitConfig is passed to Initialize for plugins initialized through
	// backend discovery.
	InitConfig map[string]string
	Logger     *zerolog.Logger
}

// Loader tracks loaded plugins. It is safe for concurrent use. When the
// Loader calls into the Registrar it holds its own lock; the registry never
// calls back into the Loader while holding the registry lock.
type Loader struct {
	mu        sync.Mutex
	paths     []string
	plugins   []*entry
	opener    Opener
	registrar Registrar
	host      abi.Version
	initCfg   map[string]string
	log       zerolog.Logger
}

// New builds a Loader from cfg.
func New(cfg Config) *Loader {
	l := &Loader{
		opener:    cfg.Opener,
		registrar: cfg.Registrar,
		host:      cfg.HostVersion,
		initCfg:   cfg.InitConfig,
		log:       zerolog.Nop(),
	}
	if cfg.Logger != nil {
		l.log = cfg.Logger.With().Str("component", "plugin_loader").Logger()
	}
	if l.opener == nil {
		l.opener = GoOpener{}
	}
	paths := cfg.SearchPaths
	if paths == nil {
		paths = DefaultSearchPaths()
	}
	for _, p := range paths {
		if n, err := normalize(p); err == nil {
			l.paths = append(l.paths, n)
		}
	}
	return l
}

// SetRegistrar installs the registry that receives plugin factories.
func (l *Loader) SetRegistrar(r Registrar) {
	l.mu.Lock()
	l.registrar = r
	l.mu.Unlock()
}

// Discover scans dirs (the search paths when dirs is nil) for plugin
// libraries. Each candidate is opened transiently and reported through fn;
// it is not kept loaded. Failing candidates are logged and skipped. The
// number of plugins reported is returned.
func (l *Loader) Discover(dirs []string, fn func(Descriptor)) int {
	if dirs == nil {
		dirs = l.SearchPaths()
	}
	n := 0
	for _, dir := range dirs {
		for _, path := range candidates(dir) {
			d, err := l.probe(path)
			if err != nil {
				l.log.Debug().Err(err).Str("path", path).Msg("plugin candidate skipped")
				continue
			}
			n++
			if fn != nil {
				fn(d)
			}
		}
	}
	return n
}

// Inspect opens path transiently and returns its metadata.
func (l *Loader) Inspect(path string) (Descriptor, error) {
	if _, err := os.Stat(path); err != nil {
		return Descriptor{}, loadError{path: path, reason: "file not accessible", err: err}
	}
	return l.probe(path)
}

func (l *Loader) probe(path string) (Descriptor, error) {
	lib, err := l.opener.Open(path)
	if err != nil {
		return Descriptor{}, loadError{path: path, reason: "open failed", err: err}
	}
	defer lib.Close()
	info, _, err := resolve(path, lib)
	if err != nil {
		return Descriptor{}, err
	}
	return describe(path, &info), nil
}

// LoadFromFile opens path persistently and records the plugin as Loaded.
// Loading a path that is already loaded returns the existing plugin. Loading
// a newer version of a plugin name deprecates the older one; loading an
// equal or older version fails.
func (l *Loader) LoadFromFile(path string) (Descriptor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	d, err := l.loadLocked(path)
	if err != nil {
		loadsTotal.WithLabelValues("error").Inc()
		l.log.Warn().Err(err).Str("path", path).Msg("plugin load failed")
		return Descriptor{}, err
	}
	loadsTotal.WithLabelValues("ok").Inc()
	return d, nil
}

func (l *Loader) loadLocked(path string) (Descriptor, error) {
	if _, err := os.Stat(path); err != nil {
		return Descriptor{}, loadError{path: path, reason: "file not accessible", err: err}
	}
	for _, e := range l.plugins {
		if e.path == path && e.active() {
			return e.descriptor(), nil
		}
	}
	lib, err := l.opener.Open(path)
	if err != nil {
		return Descriptor{}, loadError{path: path, reason: "open failed", err: err}
	}
	info, iface, err := resolve(path, lib)
	if err != nil {
		_ = lib.Close()
		return Descriptor{}, err
	}
	if iface.CheckCompatibility != nil {
		ok := false
		if err := guard("check_compatibility", func() error { ok = iface.CheckCompatibility(l.host); return nil }); err != nil || !ok {
			_ = lib.Close()
			return Descriptor{}, loadError{path: path, reason: fmt.Sprintf("incompatible with host %s", l.host), err: err}
		}
	}
	if err := l.checkDependencies(&info); err != nil {
		_ = lib.Close()
		return Descriptor{}, loadError{path: path, reason: "unmet dependency", err: err}
	}

	var older *entry
	if cur := l.activeLocked(info.Name); cur != nil {
		if !cur.info.Version.Less(info.Version) {
			_ = lib.Close()
			return Descriptor{}, loadError{path: path, reason: fmt.Sprintf("%s %s already loaded from %s", cur.info.Name, cur.info.Version, cur.path)}
		}
		older = cur
	}

	e := &entry{
		path:     path,
		info:     info,
		iface:    iface,
		lib:      lib,
		state:    StateLoaded,
		loadedAt: time.Now(),
	}
	if older != nil {
		if err := l.finalizeLocked(older); err != nil {
			l.log.Warn().Err(err).Str("plugin", older.info.Name).Msg("finalize of deprecated plugin failed")
		}
		older.state = StateDeprecated
		l.log.Info().Str("plugin", info.Name).Str("old", older.info.Version.String()).Str("new", info.Version.String()).Msg("plugin deprecated by newer version")
	}
	l.plugins = append(l.plugins, e)
	pluginsLoaded.Set(float64(len(l.plugins)))
	l.log.Info().Str("plugin", info.Name).Str("version", info.Version.String()).Str("path", path).Str("backend", string(info.Backend)).Msg("plugin loaded")
	return e.descriptor(), nil
}

// checkDependencies verifies each dependency against the active loaded plugins.
func (l *Loader) checkDependencies(info *abi.PluginInfo) error {
	for _, dep := range info.Dependencies {
		c, err := semver.NewConstraint(dep.Constraint)
		if err != nil {
			return fmt.Errorf("%s: bad constraint %q: %w", dep.Name, dep.Constraint, err)
		}
		cur := l.activeLocked(dep.Name)
		if cur == nil {
			return fmt.Errorf("%s is not loaded", dep.Name)
		}
		if !c.Check(cur.info.Version.Semver()) {
			return fmt.Errorf("%s %s does not satisfy %q", dep.Name, cur.info.Version, dep.Constraint)
		}
	}
	return nil
}

// Unload finalizes and drops every loaded version of name.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	found := false
	var firstErr error
	kept := l.plugins[:0]
	for _, e := range l.plugins {
		if e.info.Name != name {
			kept = append(kept, e)
			continue
		}
		found = true
		if err := l.unloadLocked(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i := len(kept); i < len(l.plugins); i++ {
		l.plugins[i] = nil
	}
	l.plugins = kept
	pluginsLoaded.Set(float64(len(l.plugins)))
	if !found {
		return notFoundError{name: name}
	}
	return firstErr
}

func (l *Loader) unloadLocked(e *entry) error {
	err := l.finalizeLocked(e)
	if cerr := e.lib.Close(); cerr != nil && err == nil {
		err = cerr
	}
	e.state = StateUnloaded
	l.log.Info().Str("plugin", e.info.Name).Str("path", e.path).Msg("plugin unloaded")
	return err
}

// Close unloads every plugin.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for i := len(l.plugins) - 1; i >= 0; i-- {
		if err := l.unloadLocked(l.plugins[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.plugins = nil
	pluginsLoaded.Set(0)
	return firstErr
}

// Get returns the active plugin called name.
func (l *Loader) Get(name string) (Descriptor, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.activeLocked(name); e != nil {
		return e.descriptor(), true
	}
	return Descriptor{}, false
}

// List returns every loaded plugin, deprecated ones included, sorted by name then version.
func (l *Loader) List() []Descriptor {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Descriptor, 0, len(l.plugins))
	for _, e := range l.plugins {
		out = append(out, e.descriptor())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version.Less(out[j].Version)
	})
	return out
}

// FindByBackend returns the active inference-engine plugin advertising id.
func (l *Loader) FindByBackend(id abi.BackendID) (Descriptor, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.byBackendLocked(id); e != nil {
		return e.descriptor(), true
	}
	return Descriptor{}, false
}

func (l *Loader) activeLocked(name string) *entry {
	for _, e := range l.plugins {
		if e.info.Name == name && e.active() {
			return e
		}
	}
	return nil
}

func (l *Loader) byBackendLocked(id abi.BackendID) *entry {
	var best *entry
	for _, e := range l.plugins {
		if !e.active() || e.info.Type != abi.PluginInferenceEngine || e.info.Backend != id {
			continue
		}
		if best == nil || best.info.Version.Less(e.info.Version) {
			best = e
		}
	}
	return best
}
