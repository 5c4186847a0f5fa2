package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string        `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir    string        `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	DefaultModel string        `json:"default_model" yaml:"default_model" toml:"default_model"`
	LogLevel     string        `json:"log_level" yaml:"log_level" toml:"log_level"`
	PluginPaths  []string      `json:"plugin_paths" yaml:"plugin_paths" toml:"plugin_paths"`
	Memory       MemoryConfig  `json:"memory" yaml:"memory" toml:"memory"`
	Pool         PoolConfig    `json:"pool" yaml:"pool" toml:"pool"`
	Models       []ModelConfig `json:"models" yaml:"models" toml:"models"`
	UsagePath    string        `json:"usage_path" yaml:"usage_path" toml:"usage_path"`
	CORSOrigins  []string      `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// MemoryConfig sizes the shared memory pool.
type MemoryConfig struct {
	SizeMB    int    `json:"size_mb" yaml:"size_mb" toml:"size_mb"`
	Strategy  string `json:"strategy" yaml:"strategy" toml:"strategy"`
	Alignment int    `json:"alignment" yaml:"alignment" toml:"alignment"`
}

// PoolConfig holds instance pool defaults applied to every model.
type PoolConfig struct {
	MinInstances     int      `json:"min_instances" yaml:"min_instances" toml:"min_instances"`
	MaxInstances     int      `json:"max_instances" yaml:"max_instances" toml:"max_instances"`
	Strategy         string   `json:"strategy" yaml:"strategy" toml:"strategy"`
	Share            string   `json:"share" yaml:"share" toml:"share"`
	IdleTimeout      Duration `json:"idle_timeout" yaml:"idle_timeout" toml:"idle_timeout"`
	AcquireTimeout   Duration `json:"acquire_timeout" yaml:"acquire_timeout" toml:"acquire_timeout"`
	WarmupIterations int      `json:"warmup_iterations" yaml:"warmup_iterations" toml:"warmup_iterations"`
	MaxQueueDepth    int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	ErrorTolerance   int      `json:"error_tolerance" yaml:"error_tolerance" toml:"error_tolerance"`
}

// ModelConfig declares or overrides one model.
type ModelConfig struct {
	ID           string `json:"id" yaml:"id" toml:"id"`
	Path         string `json:"path" yaml:"path" toml:"path"`
	Backend      string `json:"backend" yaml:"backend" toml:"backend"`
	MinInstances int    `json:"min_instances" yaml:"min_instances" toml:"min_instances"`
	MaxInstances int    `json:"max_instances" yaml:"max_instances" toml:"max_instances"`
	Strategy     string `json:"strategy" yaml:"strategy" toml:"strategy"`
	Share        string `json:"share" yaml:"share" toml:"share"`
	Priority     int    `json:"priority" yaml:"priority" toml:"priority"`
}

// Duration decodes from strings such as "30s" or "5m".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Model returns the override for id, if any.
func (c Config) Model(id string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelConfig{}, false
}

func (c Config) validate() error {
	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("models[%d]: empty id", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("models[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		if m.MaxInstances > 0 && m.MinInstances > m.MaxInstances {
			return fmt.Errorf("model %q: min_instances %d > max_instances %d", m.ID, m.MinInstances, m.MaxInstances)
		}
	}
	if c.Memory.SizeMB < 0 {
		return fmt.Errorf("memory.size_mb must not be negative")
	}
	return nil
}
