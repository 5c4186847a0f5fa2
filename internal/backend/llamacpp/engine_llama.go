//go:build llama

package llamacpp

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"

	"modyn/pkg/abi"
)

const built = true

type engine struct {
	mu    sync.Mutex
	opts  options
	model *llama.LLama
}

func create(cfg *abi.EngineConfig) (abi.Engine, error) {
	return &engine{opts: parseOptions(cfg)}, nil
}

// LoadModel loads from path; llama.cpp reads the file itself so data is unused.
func (e *engine) LoadModel(path string, _ []byte) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("llamacpp: model path is empty")
	}
	m, err := llama.New(path, llama.SetContext(e.opts.ctxSize))
	if err != nil {
		return fmt.Errorf("llamacpp: load %q: %w", path, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Free()
	}
	e.model = m
	return nil
}

func (e *engine) UnloadModel() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		e.model.Free()
		e.model = nil
	}
	return nil
}

func (e *engine) InputCount() int  { return 1 }
func (e *engine) OutputCount() int { return 1 }

func (e *engine) InputInfo(i int) (abi.TensorInfo, error) {
	if i != 0 {
		return abi.TensorInfo{}, fmt.Errorf("llamacpp: input %d out of range", i)
	}
	return inputInfo, nil
}

func (e *engine) OutputInfo(i int) (abi.TensorInfo, error) {
	if i != 0 {
		return abi.TensorInfo{}, fmt.Errorf("llamacpp: output %d out of range", i)
	}
	return outputInfo, nil
}

func (e *engine) Infer(inputs []*abi.Tensor, outputs []*abi.Tensor) error {
	if len(inputs) != 1 || len(outputs) != 1 || inputs[0] == nil || outputs[0] == nil {
		return errors.New("llamacpp: expects one prompt tensor and one output tensor")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return errors.New("llamacpp: no model loaded")
	}
	text, err := e.model.Predict(string(inputs[0].Data), e.predictOptions()...)
	if err != nil {
		return fmt.Errorf("llamacpp: predict: %w", err)
	}
	out := outputs[0]
	out.DType = abi.DTypeString
	out.Shape = []int64{1}
	out.Data = []byte(text)
	out.OwnsData = true
	return nil
}

func (e *engine) predictOptions() []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(e.opts.maxTokens),
		llama.SetThreads(e.opts.threads),
		llama.SetTemperature(zf(e.opts.temperature, llama.DefaultOptions.Temperature)),
		llama.SetTopP(zf(e.opts.topP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(e.opts.topK, llama.DefaultOptions.TopK)),
	}
	return po
}

func (e *engine) BackendType() abi.BackendID { return abi.BackendLlamaCPP }
func (e *engine) Version() string            { return "go-llama.cpp" }

func (e *engine) Close() error { return e.UnloadModel() }

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}
