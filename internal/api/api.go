// Package api exposes the conjoint workflow service over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/conjoint-cli/internal/engine"
	"github.com/sells-group/conjoint-cli/internal/store"
	"github.com/sells-group/conjoint-cli/internal/workflow"
)

// NewRouter builds the HTTP route tree. extractor may be nil when no
// Anthropic key is configured; the extract endpoint then returns 503.
func NewRouter(svc *workflow.Service, extractor AttributeExtractor) http.Handler {
	h := &handler{svc: svc, extractor: extractor}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", h.createWorkflow)
		r.Get("/", h.listWorkflows)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getWorkflow)
			r.Delete("/", h.deleteWorkflow)
			r.Post("/survey", h.attachSurvey)
			r.Post("/estimate", h.estimate)
			r.Post("/simulate", h.simulate)
			r.Post("/scenarios", h.analyzeScenarios)
		})
	})

	r.Post("/extract", h.extract)

	return r
}

// requestLogger logs each request with the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// respondJSON writes v as a JSON response body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck
	}
}

// respondError maps service errors onto HTTP statuses. Remote engine 4xx
// verdicts pass through with their original status; unavailability of both
// computation paths is a 503.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var remoteErr *engine.RemoteError
	var unavailErr *engine.UnavailableError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.As(err, &remoteErr):
		status = remoteErr.StatusCode
	case errors.As(err, &unavailErr):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	respondJSON(w, status, map[string]string{"detail": err.Error()})
}
