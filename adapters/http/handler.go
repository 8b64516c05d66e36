// Package http serves the health and metrics endpoints of a long-running
// mirror.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/kintone/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RunLookup returns the most recent mirror run of an app.
type RunLookup interface {
	LastRun(ctx context.Context, appID int64) (ports.MirrorRun, error)
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	runs  RunLookup
	appID int64
}

// NewHealthHandler creates a health handler. A nil runs skips the
// readiness check.
func NewHealthHandler(runs RunLookup, appID int64) *HealthHandler {
	return &HealthHandler{runs: runs, appID: appID}
}

// RunStatus is the readiness response body.
type RunStatus struct {
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	RunID      string    `json:"run_id,omitempty"`
	Records    int       `json:"records,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Liveness reports that the process is up.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RunStatus{Status: "ok"})
}

// Readiness is 200 while the latest mirror run has not failed, 503
// otherwise or before the first run is recorded.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusOK, RunStatus{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	run, err := h.runs.LastRun(ctx, h.appID)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, RunStatus{Status: "unavailable", Error: err.Error()})
		return
	}

	body := RunStatus{
		Status:     string(run.Status),
		Error:      run.Error,
		RunID:      run.ID,
		Records:    run.Records,
		FinishedAt: run.FinishedAt,
	}
	if run.Status == ports.RunFailed {
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// VersionResponse is the /version response body.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	// MetricsHandler serves MetricsPath; promhttp.Handler() when nil.
	MetricsHandler http.Handler
	// MetricsPath disables the metrics endpoint when empty.
	MetricsPath string
	Version     string
}

// NewRouter creates the ops router.
func NewRouter(health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsPath != "" {
		handler := cfg.MetricsHandler
		if handler == nil {
			handler = promhttp.Handler()
		}
		r.Handle(cfg.MetricsPath, handler)
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "kintone-mirror"})
	})

	return r
}

// NewLoggingMiddleware logs each request at debug level. Health and
// metrics scrapes are not logged.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if strings.HasPrefix(r.URL.Path, "/health") || strings.HasSuffix(r.URL.Path, "metrics") {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
