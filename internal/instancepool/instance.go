package instancepool

import (
	"fmt"
	"time"

	"modyn/internal/memory"
	"modyn/pkg/abi"
)

// Status is an instance's lifecycle state.
type Status int

const (
	StatusLoading Status = iota
	StatusIdle
	StatusBusy
	StatusError
	StatusUnloaded
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusIdle:
		return "idle"
	case StatusBusy:
		return "busy"
	case StatusError:
		return "error"
	default:
		return "unloaded"
	}
}

// Instance is one engine with its memory. Fields other than id, engine and
// the memory handles are guarded by the owning pool's lock, except the
// pending counters, which belong to the caller holding the instance Busy.
type Instance struct {
	id     string
	pool   *Pool
	engine abi.Engine

	weights    *memory.Handle
	scratch    *memory.Handle
	weightsLen int

	status     Status
	priority   int
	inferences uint64
	avgLatency time.Duration
	createdAt  time.Time
	lastUsed   time.Time

	// warmed is set once throwaway inferences ran on the engine.
	warmed bool

	pendingN   uint64
	pendingLat time.Duration
	failed     error
}

func (i *Instance) ID() string { return i.id }

// Engine returns the underlying engine. Only the caller holding the instance
// Busy may use it.
func (i *Instance) Engine() abi.Engine { return i.engine }

// Scratch returns the instance's scratch memory, or nil when none was configured.
func (i *Instance) Scratch() []byte {
	if i.scratch == nil {
		return nil
	}
	return i.scratch.Bytes()
}

// weightsData returns the filled part of the weights block. The block turns
// invalid if the memory pool is closed while the instance is being built.
func (i *Instance) weightsData() ([]byte, error) {
	buf := i.weights.Bytes()
	if buf == nil || len(buf) < i.weightsLen {
		return nil, errWeightsGone
	}
	return buf[:i.weightsLen], nil
}

// Infer runs one inference on the held instance and records its latency for
// Release. An engine error marks the instance for replacement.
func (i *Instance) Infer(inputs, outputs []*abi.Tensor) error {
	start := time.Now()
	err := i.engine.Infer(inputs, outputs)
	d := time.Since(start)
	i.pendingN++
	i.pendingLat += d
	inferenceSeconds.WithLabelValues(i.pool.cfg.ModelID).Observe(d.Seconds())
	if err != nil {
		i.failed = err
		return fmt.Errorf("instance %s: %w", i.id, err)
	}
	return nil
}

// Info is a snapshot of an instance.
type Info struct {
	ID             string        `json:"id"`
	Status         string        `json:"status"`
	Priority       int           `json:"priority"`
	InferenceCount uint64        `json:"inference_count"`
	AvgLatency     time.Duration `json:"avg_latency"`
	CreatedAt      time.Time     `json:"created_at"`
	LastUsed       time.Time     `json:"last_used"`
	WeightsShared  bool          `json:"weights_shared"`
}

// info is called with the pool lock held.
func (i *Instance) info() Info {
	return Info{
		ID:             i.id,
		Status:         i.status.String(),
		Priority:       i.priority,
		InferenceCount: i.inferences,
		AvgLatency:     i.avgLatency,
		CreatedAt:      i.createdAt,
		LastUsed:       i.lastUsed,
		WeightsShared:  i.weights != nil && i.weights == i.pool.sharedWeights,
	}
}

// settle folds pending counters into the running average. Pool lock held.
func (i *Instance) settle() {
	if i.pendingN > 0 {
		total := time.Duration(i.inferences)*i.avgLatency + i.pendingLat
		i.inferences += i.pendingN
		i.avgLatency = total / time.Duration(i.inferences)
	}
	i.pendingN, i.pendingLat = 0, 0
}
