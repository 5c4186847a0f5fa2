package manager

import (
	"time"

	"modyn/internal/instancepool"
	"modyn/pkg/types"
)

// State represents lifecycle state of the manager.
type State string

const (
	StateReady   State = "ready"
	StateLoading State = "loading"
	StateError   State = "error"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State  State
	Loaded []string
	Err    string
}

// entry is the instance pool of one model.
type entry struct {
	model    types.Model
	pool     *instancepool.Pool
	priority int
	lastUsed time.Time
	draining bool
	warming  bool
}
