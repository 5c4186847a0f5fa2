package instancepool

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"modyn/internal/memory"
	"modyn/pkg/abi"
)

// ShareType controls which memory instances share.
type ShareType int

const (
	// ShareNone gives every instance private weights and scratch memory.
	ShareNone ShareType = iota
	// ShareWeights shares one weights block; scratch stays private.
	ShareWeights
	// ShareMemory shares weights and scratch.
	ShareMemory
	// ShareFull behaves as ShareMemory.
	ShareFull
)

var shareNames = []string{"none", "weights", "memory", "full"}

func (s ShareType) String() string {
	if int(s) >= 0 && int(s) < len(shareNames) {
		return shareNames[s]
	}
	return "unknown"
}

func (s ShareType) sharesWeights() bool { return s != ShareNone }
func (s ShareType) sharesScratch() bool { return s == ShareMemory || s == ShareFull }

// ParseShareType accepts the names returned by String. Empty input yields ShareNone.
func ParseShareType(s string) (ShareType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ShareNone, nil
	}
	for i, n := range shareNames {
		if n == s {
			return ShareType(i), nil
		}
	}
	return ShareNone, fmt.Errorf("unknown share type %q", s)
}

// Strategy selects among idle instances.
type Strategy int

const (
	RoundRobin Strategy = iota
	LeastLoaded
	Random
	Priority
	Sticky
)

var strategyNames = []string{"round_robin", "least_loaded", "random", "priority", "sticky"}

func (s Strategy) String() string {
	if int(s) >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return "unknown"
}

// ParseStrategy accepts the names returned by String, with '-' allowed for '_'.
// Empty input yields RoundRobin.
func ParseStrategy(s string) (Strategy, error) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if s == "" {
		return RoundRobin, nil
	}
	for i, n := range strategyNames {
		if n == s {
			return Strategy(i), nil
		}
	}
	return RoundRobin, fmt.Errorf("unknown schedule strategy %q", s)
}

// EngineCreator builds engines by backend id. *backend.Registry and the
// serving runtime satisfy it.
type EngineCreator interface {
	CreateEngine(id abi.BackendID, cfg *abi.EngineConfig) (abi.Engine, error)
}

// Defaults applied when the corresponding Config fields are unset.
const (
	defaultMaxInstances   = 1
	defaultIdleTimeout    = 5 * time.Minute
	defaultAcquireTimeout = 30 * time.Second
	defaultMaxQueueDepth  = 32
)

// Config configures a Pool.
type Config struct {
	ModelID   string
	ModelPath string
	Backend   abi.BackendID
	// Engine is copied for every instance; Backend overrides Engine.Backend.
	Engine abi.EngineConfig

	MinInstances int
	MaxInstances int
	Share        ShareType
	Strategy     Strategy

	IdleTimeout    time.Duration
	AcquireTimeout time.Duration
	// MaxQueueDepth bounds callers waiting in Acquire.
	MaxQueueDepth int
	// ErrorTolerance is the number of Error instances a healthy pool may hold.
	ErrorTolerance int
	// WarmupIterations throwaway inferences run on each new instance.
	WarmupIterations int

	// WeightsSize is the weights block size; 0 means the model file size.
	WeightsSize int
	// PrivateSize is the scratch block size per instance (or shared, see Share).
	PrivateSize int
	// Memory supplies weights and scratch blocks. Without it instances load
	// weights from the model file directly.
	Memory *memory.Pool

	Creator EngineCreator
	Logger  *zerolog.Logger
}

func (c *Config) applyDefaults() error {
	if c.ModelID == "" {
		return fmt.Errorf("instancepool: model id is required")
	}
	if c.Creator == nil {
		return fmt.Errorf("instancepool %s: engine creator is required", c.ModelID)
	}
	if c.Backend == "" {
		c.Backend = c.Engine.Backend
	}
	if c.Backend == "" {
		return fmt.Errorf("instancepool %s: backend is required", c.ModelID)
	}
	c.Engine.Backend = c.Backend
	if c.MaxInstances <= 0 {
		c.MaxInstances = defaultMaxInstances
	}
	if c.MinInstances < 0 {
		c.MinInstances = 0
	}
	if c.MinInstances > c.MaxInstances {
		return fmt.Errorf("instancepool %s: min_instances %d exceeds max_instances %d", c.ModelID, c.MinInstances, c.MaxInstances)
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.MaxQueueDepth <= 0 {
		c.MaxQueueDepth = defaultMaxQueueDepth
	}
	return nil
}
