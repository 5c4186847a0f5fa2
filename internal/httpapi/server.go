package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modyn/internal/instancepool"
	"modyn/internal/manager"
	"modyn/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error)
	Ready() bool
	Switch(ctx context.Context, modelID string) (string, error)
	Unload(modelID string) error
	SetInstancePriority(modelID, instanceID string, priority int) error
	Backends() types.BackendsResponse
	Plugins() types.PluginsResponse
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
			MaxAge:         300,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	r.Use(MetricsMiddleware)

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, types.ModelsResponse{Models: svc.ListModels()})
	})

	r.Post("/models/{id}/load", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		op, err := svc.Switch(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, types.OpResponse{Op: op, Model: id})
	})

	r.Post("/models/{id}/unload", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.Unload(id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.OpResponse{Model: id})
	})

	r.Put("/models/{id}/instances/{instance}/priority", func(w http.ResponseWriter, r *http.Request) {
		id, inst := chi.URLParam(r, "id"), chi.URLParam(r, "instance")
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.PriorityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := svc.SetInstancePriority(id, inst, req.Priority); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.PriorityResponse{Model: id, Instance: inst, Priority: req.Priority})
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	})

	r.Get("/backends", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Backends())
	})

	r.Get("/plugins", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Plugins())
	})

	r.Post("/infer", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.InferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if len(req.Inputs) == 0 {
			writeJSONError(w, http.StatusBadRequest, "inputs are required")
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo {
			z := logger().Info().Str("path", r.URL.Path).Str("model", req.Model).Int("inputs", len(req.Inputs))
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("infer start")
		}

		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if inferTimeout > 0 {
			var tcancel context.CancelFunc
			ctx, tcancel = context.WithTimeout(ctx, inferTimeout)
			defer tcancel()
		}

		resp, err := svc.Infer(ctx, req)
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := writeServiceError(w, r, err)
			observeInfer(req.Model, "", status, time.Since(start))
			if lvl >= LevelError {
				z := logger().Info().Int("status", status).Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Err(err).Msg("infer end")
			}
			return
		}
		writeJSON(w, http.StatusOK, resp)
		observeInfer(resp.Model, resp.Backend, http.StatusOK, time.Since(start))
		if lvl >= LevelInfo {
			z := logger().Info().Int("status", http.StatusOK).Dur("dur", time.Since(start)).Str("backend", resp.Backend)
			if lvl >= LevelDebug {
				for _, o := range resp.Outputs {
					z = z.Str("output."+o.Name, o.DType).Ints64("shape."+o.Name, o.Shape)
				}
			}
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("infer end")
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	return r
}

// writeServiceError maps manager errors onto HTTP status codes and returns
// the status written.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) int {
	status := http.StatusInternalServerError
	var he HTTPError
	switch {
	case manager.IsModelNotFound(err), instancepool.IsInstanceNotFound(err):
		status = http.StatusNotFound
	case manager.IsInvalidRequest(err):
		status = http.StatusBadRequest
	case manager.IsTooBusy(err):
		status = http.StatusTooManyRequests
		IncrementBackpressure(backpressureReason(err))
	case manager.IsDependencyUnavailable(err), errors.Is(err, manager.ErrManagerClosed):
		status = http.StatusServiceUnavailable
	case errors.As(err, &he):
		status = he.StatusCode()
	}
	if status >= http.StatusInternalServerError {
		z := logger().Error().Err(err).Str("path", routePatternOrPath(r)).Int("status", status)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("request failed")
	}
	writeJSONError(w, status, err.Error())
	return status
}

func backpressureReason(err error) string {
	switch {
	case instancepool.IsQueueFull(err):
		return "queue"
	case instancepool.IsTimeout(err):
		return "timeout"
	case instancepool.IsDraining(err), instancepool.IsPoolClosed(err):
		return "draining"
	default:
		return "busy"
	}
}
