package manager

import (
	"time"

	"github.com/rs/zerolog"

	"modyn/internal/instancepool"
	"modyn/internal/serving"
	"modyn/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth  = 32
	defaultAcquireTimeout = 30 * time.Second
	defaultDrainTimeout   = 5 * time.Second
	defaultReapInterval   = 30 * time.Second
)

// ModelOverride adjusts the pool of one model. Empty fields keep the
// defaults from ManagerConfig.Pool.
type ModelOverride struct {
	MinInstances int
	MaxInstances int
	Strategy     string
	Share        string
	// Priority orders eviction: lower priority pools are evicted first.
	Priority int
	// Options are passed to the engine of every instance.
	Options map[string]string
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Runtime supplies engines and shared memory. Required.
	Runtime      *serving.Runtime
	Registry     []types.Model
	DefaultModel string
	// Pool is the template for every model's instance pool. ModelID,
	// ModelPath, Backend, Creator and Memory are filled per model.
	Pool      instancepool.Config
	Overrides map[string]ModelOverride
	// DrainTimeout bounds how long Unload waits for busy instances.
	DrainTimeout time.Duration
	// ReapInterval is the period of the idle reaper started by Start.
	ReapInterval time.Duration
	// UsagePath persists per-model usage as JSON; empty disables it.
	UsagePath string
	Logger    *zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		rt:           cfg.Runtime,
		state:        StateReady,
		registry:     append([]types.Model(nil), cfg.Registry...),
		defaultModel: cfg.DefaultModel,
		poolDefaults: cfg.Pool,
		overrides:    cfg.Overrides,
		pools:        make(map[string]*entry),
		publisher:    noopPublisher{},
		usagePath:    cfg.UsagePath,
		usage:        make(map[string]UsageRecord),
		log:          zerolog.Nop(),
		startTime:    time.Now(),
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	}
	// Apply defaults if unset
	if m.poolDefaults.MaxQueueDepth <= 0 {
		m.poolDefaults.MaxQueueDepth = defaultMaxQueueDepth
	}
	if m.poolDefaults.AcquireTimeout <= 0 {
		m.poolDefaults.AcquireTimeout = defaultAcquireTimeout
	}
	if cfg.DrainTimeout <= 0 {
		m.drainTimeout = defaultDrainTimeout
	} else {
		m.drainTimeout = cfg.DrainTimeout
	}
	if cfg.ReapInterval <= 0 {
		m.reapInterval = defaultReapInterval
	} else {
		m.reapInterval = cfg.ReapInterval
	}
	if m.overrides == nil {
		m.overrides = map[string]ModelOverride{}
	}
	m.loadUsage()
	return m
}
