// Package llamacpp runs GGUF models in-process through go-llama.cpp.
//
// The real engine is compiled only with the 'llama' build tag, which needs cgo
// and libllama. Default builds get a factory whose Create fails with
// ErrUnavailable, so the backend id is still known to the registry.
//
// The engine takes one string input tensor ("prompt") and produces one string
// output tensor ("text").
package llamacpp

import (
	"errors"
	"strconv"

	"modyn/pkg/abi"
)

// ErrUnavailable is returned when the binary was built without llama support.
var ErrUnavailable = errors.New("llamacpp: support not built (missing 'llama' build tag)")

// Factory returns the llama.cpp backend factory.
func Factory() *abi.BackendFactory {
	return &abi.BackendFactory{
		ID:     abi.BackendLlamaCPP,
		Name:   "llama.cpp",
		Create: create,
	}
}

// Built reports whether the real engine is compiled in.
func Built() bool { return built }

type options struct {
	ctxSize     int
	threads     int
	maxTokens   int
	temperature float32
	topP        float32
	topK        int
}

func parseOptions(cfg *abi.EngineConfig) options {
	o := options{
		ctxSize:   atoi(cfg.Option("ctx_size", ""), 2048),
		threads:   4,
		maxTokens: atoi(cfg.Option("max_tokens", ""), 128),
		topK:      atoi(cfg.Option("top_k", ""), 0),
	}
	if cfg != nil && cfg.NumThreads > 0 {
		o.threads = cfg.NumThreads
	}
	o.temperature = atof(cfg.Option("temperature", ""), 0)
	o.topP = atof(cfg.Option("top_p", ""), 0)
	return o
}

func atoi(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return def
}

func atof(s string, def float32) float32 {
	if f, err := strconv.ParseFloat(s, 32); err == nil && f > 0 {
		return float32(f)
	}
	return def
}

var (
	inputInfo  = abi.TensorInfo{Name: "prompt", DType: abi.DTypeString, Shape: []int64{1}}
	outputInfo = abi.TensorInfo{Name: "text", DType: abi.DTypeString, Shape: []int64{1}}
)
