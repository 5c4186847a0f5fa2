package httpapi

import "time"

const defaultMaxBodyBytes int64 = 1 << 20

// Options tunes the HTTP layer. Zero values keep the defaults.
type Options struct {
	// MaxBodyBytes bounds /infer request bodies (1 MiB by default).
	MaxBodyBytes int64
	// InferTimeout bounds one /infer call; 0 leaves only the server and
	// connection timeouts.
	InferTimeout time.Duration
	// CORSOrigins enables CORS when non-empty.
	CORSOrigins []string
	CORSMethods []string
	CORSHeaders []string
}

var (
	maxBodyBytes = defaultMaxBodyBytes
	inferTimeout time.Duration

	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// Configure applies o to handlers built by later NewMux calls.
func Configure(o Options) {
	SetMaxBodyBytes(o.MaxBodyBytes)
	SetInferTimeout(o.InferTimeout)
	SetCORSOptions(len(o.CORSOrigins) > 0, o.CORSOrigins, o.CORSMethods, o.CORSHeaders)
}

// SetMaxBodyBytes sets the /infer body limit; n <= 0 restores the default.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		n = defaultMaxBodyBytes
	}
	maxBodyBytes = n
}

// SetInferTimeout sets the /infer deadline; negative values disable it.
func SetInferTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	inferTimeout = d
}

// SetCORSOptions configures CORS. Empty methods or headers fall back to
// GET/POST/OPTIONS and Content-Type/X-Log-Level.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "OPTIONS"}
	}
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Log-Level"}
	}
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}
