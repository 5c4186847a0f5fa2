package abi

// BackendID identifies an inference backend, e.g. "dummy" or "onnx".
type BackendID string

// Well-known backend ids. Plugins may advertise others.
const (
	BackendDummy    BackendID = "dummy"
	BackendONNX     BackendID = "onnx"
	BackendRKNN     BackendID = "rknn"
	BackendOpenVINO BackendID = "openvino"
	BackendTensorRT BackendID = "tensorrt"
	BackendLlamaCPP BackendID = "llamacpp"
)

// EngineConfig is passed to BackendFactory.Create.
type EngineConfig struct {
	Backend    BackendID
	Device     string
	NumThreads int
	Options    map[string]string
}

// Option returns Options[key] or def when unset.
func (c *EngineConfig) Option(key, def string) string {
	if c == nil || c.Options == nil {
		return def
	}
	if v, ok := c.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Engine is a live backend instance. It loads at most one model at a time.
// Infer is synchronous; callers serialize access to a single Engine.
type Engine interface {
	LoadModel(path string, data []byte) error
	UnloadModel() error
	InputCount() int
	OutputCount() int
	InputInfo(index int) (TensorInfo, error)
	OutputInfo(index int) (TensorInfo, error)
	Infer(inputs []*Tensor, outputs []*Tensor) error
	BackendType() BackendID
	Version() string
	// Close destroys the engine and releases everything it holds.
	Close() error
}

// BackendFactory creates engines for one backend id.
type BackendFactory struct {
	ID     BackendID
	Name   string
	Create func(cfg *EngineConfig) (Engine, error)
}

// Valid reports whether the factory is well formed.
func (f *BackendFactory) Valid() bool {
	return f != nil && f.ID != "" && f.Create != nil
}
