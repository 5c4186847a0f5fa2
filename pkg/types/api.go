// Package types holds the JSON payloads of the HTTP API.
package types

// Model is one entry of the model catalog.
type Model struct {
	// Stable identifier for the model (the file name).
	ID string `json:"id"`
	// Human-friendly name.
	Name string `json:"name"`
	// Absolute path to the model file on disk.
	Path string `json:"path"`
	// Backend that serves the model, detected from the file extension
	// unless configured.
	Backend string `json:"backend"`
	// Size of the model file in bytes.
	SizeBytes int64 `json:"size_bytes"`
	// Whether an instance pool currently exists for the model.
	Loaded bool `json:"loaded"`
	// Last inference on the model (unix seconds), persisted across restarts.
	LastUsed int64 `json:"last_used_unix,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// Tensor is a tensor on the wire. Data is base64 in JSON.
type Tensor struct {
	Name  string  `json:"name,omitempty"`
	DType string  `json:"dtype"`
	Shape []int64 `json:"shape"`
	Data  []byte  `json:"data"`
}

// InferRequest represents an inference request payload.
type InferRequest struct {
	// Optional model identifier. If empty, the server default is used.
	Model string `json:"model,omitempty"`
	// Optional affinity key for the sticky scheduling strategy.
	Key string `json:"key,omitempty"`
	// Optional acquire timeout in milliseconds; 0 uses the pool default.
	TimeoutMS int `json:"timeout_ms,omitempty"`
	// Input tensors in engine order.
	Inputs []Tensor `json:"inputs"`
}

// InferResponse carries the output tensors of one inference.
type InferResponse struct {
	Model      string   `json:"model"`
	Backend    string   `json:"backend"`
	Outputs    []Tensor `json:"outputs"`
	DurationMS float64  `json:"duration_ms"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// OpResponse acknowledges an asynchronous operation.
type OpResponse struct {
	Op    string `json:"op"`
	Model string `json:"model"`
}

// PriorityRequest sets the scheduling priority of one instance.
type PriorityRequest struct {
	Priority int `json:"priority"`
}

// PriorityResponse echoes an applied priority change.
type PriorityResponse struct {
	Model    string `json:"model"`
	Instance string `json:"instance"`
	Priority int    `json:"priority"`
}

// InstanceStatus summarizes one engine instance.
type InstanceStatus struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Priority       int     `json:"priority"`
	InferenceCount uint64  `json:"inference_count"`
	AvgLatencyMS   float64 `json:"avg_latency_ms"`
	LastUsed       int64   `json:"last_used_unix"`
	WeightsShared  bool    `json:"weights_shared"`
}

// PoolStatus summarizes the instance pool of one model.
type PoolStatus struct {
	ModelID       string           `json:"model_id"`
	Backend       string           `json:"backend"`
	Strategy      string           `json:"strategy"`
	Share         string           `json:"share"`
	MinInstances  int              `json:"min_instances"`
	MaxInstances  int              `json:"max_instances"`
	Idle          int              `json:"idle"`
	Busy          int              `json:"busy"`
	Loading       int              `json:"loading"`
	Errors        int              `json:"errors"`
	QueueLen      int              `json:"queue_len"`
	MaxQueueDepth int              `json:"max_queue_depth"`
	Inferences    uint64           `json:"inferences"`
	Timeouts      uint64           `json:"timeouts"`
	Draining      bool             `json:"draining"`
	LastUsed      int64            `json:"last_used_unix"`
	Instances     []InstanceStatus `json:"instances"`
}

// MemoryStatus summarizes the shared memory pool.
type MemoryStatus struct {
	Total         int     `json:"total_bytes"`
	Used          int     `json:"used_bytes"`
	Free          int     `json:"free_bytes"`
	Peak          int     `json:"peak_bytes"`
	LargestFree   int     `json:"largest_free_bytes"`
	ActiveBlocks  int     `json:"active_blocks"`
	FreeBlocks    int     `json:"free_blocks"`
	OOMCount      uint64  `json:"oom_count"`
	Fragmentation float64 `json:"fragmentation"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall manager state (loading, ready, error).
	State string       `json:"state"`
	Pools []PoolStatus `json:"pools"`
	// Nil when the shared memory pool is disabled.
	Memory *MemoryStatus `json:"memory,omitempty"`
	// Last error observed by the manager (if any).
	LastError         string `json:"last_error,omitempty"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	ServerTimeUnix    int64  `json:"server_time_unix"`
	EvictionsTotal    uint64 `json:"evictions_total"`
	LoadsTotal        uint64 `json:"loads_total"`
	WarmupsInProgress int    `json:"warmups_in_progress"`
	DrainingCount     int    `json:"draining_count"`
}

// Backend is one entry of GET /backends.
type Backend struct {
	ID string `json:"id"`
	// Registered is false for backends that a plugin on the search path
	// could provide but that have not been loaded yet.
	Registered bool `json:"registered"`
}

// BackendsResponse wraps the list of backends.
type BackendsResponse struct {
	Backends []Backend `json:"backends"`
}

// Plugin is one loaded plugin.
type Plugin struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Type        string `json:"type"`
	Backend     string `json:"backend,omitempty"`
	State       string `json:"state"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	LoadedAt    int64  `json:"loaded_at_unix"`
	LastError   string `json:"last_error,omitempty"`
}

// PluginsResponse wraps the list of loaded plugins.
type PluginsResponse struct {
	Plugins []Plugin `json:"plugins"`
}
