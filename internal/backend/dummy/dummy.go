// Package dummy is a stand-in inference backend. Its engine copies every input
// tensor to the matching output tensor.
//
// Options:
//   - latency_ms: sleep this long inside every Infer call.
//   - fail_load: "true" makes LoadModel fail.
//   - fail_infer: "true" makes Infer fail.
package dummy

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"modyn/pkg/abi"
)

// Version is reported by Engine.Version.
const Version = "1.0.0"

// ErrNoModel is returned by Infer before LoadModel.
var ErrNoModel = errors.New("dummy: no model loaded")

// Factory returns the dummy backend factory.
func Factory() *abi.BackendFactory {
	return &abi.BackendFactory{
		ID:   abi.BackendDummy,
		Name: "Dummy (identity)",
		Create: func(cfg *abi.EngineConfig) (abi.Engine, error) {
			return New(cfg)
		},
	}
}

// Engine is the identity engine.
type Engine struct {
	mu        sync.Mutex
	latency   time.Duration
	failLoad  bool
	failInfer bool
	path      string
	weights   int
	loaded    bool
	closed    bool
	calls     int
}

// New parses cfg options into an engine.
func New(cfg *abi.EngineConfig) (*Engine, error) {
	e := &Engine{}
	if v := cfg.Option("latency_ms", ""); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("dummy: bad latency_ms %q", v)
		}
		e.latency = time.Duration(ms) * time.Millisecond
	}
	e.failLoad = cfg.Option("fail_load", "") == "true"
	e.failInfer = cfg.Option("fail_infer", "") == "true"
	return e, nil
}

func (e *Engine) LoadModel(path string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errors.New("dummy: engine closed")
	}
	if e.failLoad {
		return fmt.Errorf("dummy: load %q: forced failure", path)
	}
	e.path = path
	e.weights = len(data)
	e.loaded = true
	return nil
}

func (e *Engine) UnloadModel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	e.path = ""
	e.weights = 0
	return nil
}

func (e *Engine) InputCount() int  { return 1 }
func (e *Engine) OutputCount() int { return 1 }

func (e *Engine) InputInfo(index int) (abi.TensorInfo, error) {
	if index != 0 {
		return abi.TensorInfo{}, fmt.Errorf("dummy: input %d out of range", index)
	}
	return abi.TensorInfo{Name: "input", DType: abi.DTypeFloat32, Shape: []int64{-1}}, nil
}

func (e *Engine) OutputInfo(index int) (abi.TensorInfo, error) {
	if index != 0 {
		return abi.TensorInfo{}, fmt.Errorf("dummy: output %d out of range", index)
	}
	return abi.TensorInfo{Name: "output", DType: abi.DTypeFloat32, Shape: []int64{-1}}, nil
}

// Infer copies inputs[i] into outputs[i]. Outputs without data get a fresh buffer.
func (e *Engine) Infer(inputs []*abi.Tensor, outputs []*abi.Tensor) error {
	e.mu.Lock()
	loaded, latency, fail := e.loaded, e.latency, e.failInfer
	e.calls++
	e.mu.Unlock()
	if !loaded {
		return ErrNoModel
	}
	if fail {
		return errors.New("dummy: forced inference failure")
	}
	if len(outputs) < len(inputs) {
		return fmt.Errorf("dummy: %d inputs but %d outputs", len(inputs), len(outputs))
	}
	if latency > 0 {
		time.Sleep(latency)
	}
	for i, in := range inputs {
		if in == nil || outputs[i] == nil {
			return fmt.Errorf("dummy: nil tensor at %d", i)
		}
		out := outputs[i]
		out.DType = in.DType
		out.Shape = append(out.Shape[:0], in.Shape...)
		out.Layout = in.Layout
		if len(out.Data) != len(in.Data) {
			out.Data = make([]byte, len(in.Data))
			out.OwnsData = true
			out.Memory = abi.MemoryCPU
		}
		copy(out.Data, in.Data)
	}
	return nil
}

func (e *Engine) BackendType() abi.BackendID { return abi.BackendDummy }
func (e *Engine) Version() string            { return Version }

// Calls counts Infer invocations, including failed ones.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// WeightsSize is the length of the data passed to LoadModel.
func (e *Engine) WeightsSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.loaded = false
	return nil
}
