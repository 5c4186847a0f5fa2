package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modyn/internal/catalog"
	"modyn/internal/config"
	"modyn/internal/instancepool"
	"modyn/internal/manager"
	"modyn/internal/memory"
	"modyn/internal/serving"
	"modyn/pkg/types"
)

func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("bad log level %q: %w", level, err)
	}
	switch format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Logger{}, fmt.Errorf("bad log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// loadConfig reads the config file when one is given.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	return config.Load(path)
}

func setupLogger(g *globalOpts, cfg config.Config) (zerolog.Logger, error) {
	level := g.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	return newLogger(os.Stderr, level, g.logFormat)
}

// buildRuntime creates the serving runtime described by cfg.
func buildRuntime(cfg config.Config, log *zerolog.Logger) (*serving.Runtime, error) {
	strategy := memory.FirstFit
	if cfg.Memory.Strategy != "" {
		s, err := memory.ParseStrategy(cfg.Memory.Strategy)
		if err != nil {
			return nil, err
		}
		strategy = s
	}
	return serving.New(serving.Config{
		PluginPaths:     cfg.PluginPaths,
		MemorySize:      cfg.Memory.SizeMB << 20,
		MemoryStrategy:  strategy,
		MemoryAlignment: cfg.Memory.Alignment,
		Logger:          log,
	})
}

// buildCatalog scans the models directory and merges explicit model entries.
func buildCatalog(cfg config.Config) ([]types.Model, error) {
	var models []types.Model
	if cfg.ModelsDir != "" {
		m, err := catalog.LoadDir(cfg.ModelsDir)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", cfg.ModelsDir, err)
		}
		models = m
	}
	entries := make([]catalog.Entry, 0, len(cfg.Models))
	for _, mc := range cfg.Models {
		entries = append(entries, catalog.Entry{ID: mc.ID, Path: mc.Path, Backend: mc.Backend})
	}
	return catalog.Merge(models, entries)
}

// managerConfig maps the file config onto the manager's pool defaults and
// per-model overrides.
func managerConfig(cfg config.Config, rt *serving.Runtime, reg []types.Model, log *zerolog.Logger) (manager.ManagerConfig, error) {
	pc := cfg.Pool
	pool := instancepool.Config{
		MinInstances:     pc.MinInstances,
		MaxInstances:     pc.MaxInstances,
		IdleTimeout:      pc.IdleTimeout.Std(),
		AcquireTimeout:   pc.AcquireTimeout.Std(),
		MaxQueueDepth:    pc.MaxQueueDepth,
		ErrorTolerance:   pc.ErrorTolerance,
		WarmupIterations: pc.WarmupIterations,
	}
	if pc.Strategy != "" {
		s, err := instancepool.ParseStrategy(pc.Strategy)
		if err != nil {
			return manager.ManagerConfig{}, err
		}
		pool.Strategy = s
	}
	if pc.Share != "" {
		s, err := instancepool.ParseShareType(pc.Share)
		if err != nil {
			return manager.ManagerConfig{}, err
		}
		pool.Share = s
	}
	overrides := make(map[string]manager.ModelOverride, len(cfg.Models))
	for _, mc := range cfg.Models {
		overrides[mc.ID] = manager.ModelOverride{
			MinInstances: mc.MinInstances,
			MaxInstances: mc.MaxInstances,
			Strategy:     mc.Strategy,
			Share:        mc.Share,
			Priority:     mc.Priority,
		}
	}
	return manager.ManagerConfig{
		Runtime:      rt,
		Registry:     reg,
		DefaultModel: cfg.DefaultModel,
		Pool:         pool,
		Overrides:    overrides,
		UsagePath:    cfg.UsagePath,
		Logger:       log,
	}, nil
}
