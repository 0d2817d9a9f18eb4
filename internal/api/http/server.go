package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agent-forge/agent-forge/internal/application/engine"
	"github.com/agent-forge/agent-forge/internal/domain/agent"
	"github.com/agent-forge/agent-forge/internal/domain/pipeline"
	"github.com/agent-forge/agent-forge/internal/infrastructure/eventbus"
	"github.com/agent-forge/agent-forge/internal/infrastructure/memstore"
	"github.com/agent-forge/agent-forge/internal/metrics"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine   *engine.Engine
	store    *memstore.Store
	bus      *eventbus.Bus
	loader   *pipeline.Loader
	registry *agent.Registry
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewServer(
	eng *engine.Engine,
	store *memstore.Store,
	bus *eventbus.Bus,
	loader *pipeline.Loader,
	registry *agent.Registry,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	return &Server{
		engine:   eng,
		store:    store,
		bus:      bus,
		loader:   loader,
		registry: registry,
		metrics:  m,
		logger:   logger.With().Str("service", "http").Logger(),
	}
}

// Router builds the HTTP router. The stream endpoint sits outside the
// request timeout group because SSE connections are long-lived.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/pipelines", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(30 * time.Second))
				r.Post("/initialize", s.initializePipeline)
				r.Get("/", s.listExecutions)
				r.Get("/configs", s.listConfigs)
				r.Get("/info", s.pipelineInfo)
				r.Post("/validate", s.validateInput)
				r.Delete("/clear", s.clearPipeline)
				r.Get("/execution/{executionId}/status", s.executionStatus)
				r.Post("/execution/{executionId}/cancel", s.cancelExecution)
			})
			r.Post("/execute", s.executePipeline)
			r.Get("/execution/{executionId}/stream", s.streamExecution)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/", s.listAgents)
			r.Get("/{agentType}/metadata", s.agentMetadata)
		})
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"subscribers": s.bus.SubscriberCount(),
	})
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
