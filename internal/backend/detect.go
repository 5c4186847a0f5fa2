package backend

import (
	"path/filepath"
	"strings"

	"modyn/pkg/abi"
)

var extensions = map[string]abi.BackendID{
	".onnx":   abi.BackendONNX,
	".rknn":   abi.BackendRKNN,
	".xml":    abi.BackendOpenVINO,
	".engine": abi.BackendTensorRT,
	".trt":    abi.BackendTensorRT,
	".plan":   abi.BackendTensorRT,
	".gguf":   abi.BackendLlamaCPP,
	".dummy":  abi.BackendDummy,
}

// DetectBackend maps a model file's extension to a backend id.
func DetectBackend(path string) (abi.BackendID, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if id, ok := extensions[ext]; ok {
		return id, nil
	}
	return "", unknownExtensionError{path: path}
}

// ModelExtensions lists every extension DetectBackend recognises.
func ModelExtensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	return out
}
