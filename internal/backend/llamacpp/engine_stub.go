//go:build !llama

package llamacpp

import "modyn/pkg/abi"

const built = false

func create(*abi.EngineConfig) (abi.Engine, error) { return nil, ErrUnavailable }
