package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "modyn"

var (
	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern, method and status.",
	}, []string{"path", "method", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route pattern, method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "HTTP requests currently being served.",
	}, []string{"method"})

	backpressureTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "http",
		Name:      "backpressure_total",
		Help:      "Requests rejected with 429 by instance pool saturation reason.",
	}, []string{"reason"})

	inferTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "infer",
		Name:      "requests_total",
		Help:      "Inference requests by model, backend and outcome.",
	}, []string{"model", "backend", "outcome"})

	inferDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "infer",
		Name:      "duration_seconds",
		Help:      "End to end inference latency including instance acquisition.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"model", "backend"})
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		httpInflight,
		backpressureTotal,
		inferTotal,
		inferDuration,
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records request count, latency and in-flight gauges.
// The path label is the chi route pattern, which is only set after routing.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inflight := httpInflight.WithLabelValues(r.Method)
		inflight.Inc()
		defer inflight.Dec()

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		labels := prometheus.Labels{
			"path":   routePatternOrPath(r),
			"method": r.Method,
			"status": itoa(sr.status),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath prefers the chi route pattern so ids in the URL do not
// become label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure counts a 429 response.
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}

// observeInfer records one finished /infer call. Latency is only observed
// for successful calls so rejected requests do not skew the histogram.
func observeInfer(model, backend string, status int, d time.Duration) {
	if model == "" {
		model = "default"
	}
	if backend == "" {
		backend = "none"
	}
	outcome := "ok"
	switch {
	case status == http.StatusNotFound:
		// Unknown ids come straight from clients.
		model = "unknown"
		outcome = "not_found"
	case status == http.StatusTooManyRequests:
		outcome = "busy"
	case status >= http.StatusInternalServerError:
		outcome = "error"
	case status >= http.StatusBadRequest:
		outcome = "invalid"
	}
	inferTotal.WithLabelValues(model, backend, outcome).Inc()
	if outcome == "ok" {
		inferDuration.WithLabelValues(model, backend).Observe(d.Seconds())
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
