package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agent-forge/agent-forge/internal/application/engine"
	"github.com/agent-forge/agent-forge/internal/domain/agent"
	"github.com/agent-forge/agent-forge/internal/domain/execution"
	"github.com/agent-forge/agent-forge/internal/domain/pipeline"
)

func (s *Server) initializePipeline(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("pipeline_name")

	cfg, err := s.loader.Load(name)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}

	if err := s.engine.Initialize(cfg); err != nil {
		var unknownErr *agent.UnknownAgentError
		var cfgErr *pipeline.ConfigError
		var cycleErr *pipeline.CycleError
		switch {
		case errors.As(err, &unknownErr), errors.As(err, &cfgErr), errors.As(err, &cycleErr):
			respondError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":         true,
		"pipeline_name":   cfg.Name,
		"steps":           cfg.StepNames(),
		"execution_order": pipeline.ExecutionOrder(cfg),
	})
}

type executeRequest struct {
	InputData      json.RawMessage `json:"input_data"`
	PipelineName   string          `json:"pipeline_name,omitempty"`
	AsyncExecution bool            `json:"async_execution,omitempty"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
}

func (s *Server) executePipeline(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	if len(req.InputData) == 0 {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "input_data is required")
		return
	}

	// A named pipeline in the body initializes on the fly, unless it is
	// already the loaded one.
	if req.PipelineName != "" {
		if cfg := s.engine.Config(); cfg == nil || cfg.Name != req.PipelineName {
			loaded, err := s.loader.Load(req.PipelineName)
			if err != nil {
				if errors.Is(err, pipeline.ErrNotFound) {
					respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
					return
				}
				respondError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
				return
			}
			if err := s.engine.Initialize(loaded); err != nil {
				respondError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
				return
			}
		}
	}

	run, err := s.engine.Execute(req.InputData, req.CorrelationID)
	if err != nil {
		if errors.Is(err, engine.ErrNotInitialized) {
			respondError(w, http.StatusConflict, "NOT_INITIALIZED", "initialize a pipeline before executing")
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	if req.AsyncExecution {
		respondJSON(w, http.StatusAccepted, map[string]interface{}{
			"execution_id":   run.ExecutionID,
			"correlation_id": run.CorrelationID,
			"status":         string(execution.StatusRunning),
			"message":        "pipeline execution started",
		})
		return
	}

	select {
	case <-run.Done():
	case <-r.Context().Done():
		respondError(w, http.StatusRequestTimeout, "CLIENT_GONE", "client disconnected before completion")
		return
	}
	rec, err := s.store.Get(run.ExecutionID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"executions": s.store.List(),
	})
}

func (s *Server) listConfigs(w http.ResponseWriter, r *http.Request) {
	names, err := s.loader.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"pipelines": names})
}

func (s *Server) executionStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "executionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid executionId")
		return
	}
	rec, err := s.store.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) cancelExecution(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "executionId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid executionId")
		return
	}
	if err := s.engine.Cancel(id); err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"execution_id": id,
	})
}

type validateRequest struct {
	InputData string `json:"input_data"`
}

func (s *Server) validateInput(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"validation": engine.ValidateInput(req.InputData),
		"input_data": req.InputData,
	})
}

func (s *Server) pipelineInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	if cfg == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"initialized": false,
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"initialized":     true,
		"pipeline":        cfg,
		"execution_order": pipeline.ExecutionOrder(cfg),
	})
}

func (s *Server) clearPipeline(w http.ResponseWriter, r *http.Request) {
	s.engine.Clear()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "pipeline cleared",
	})
}
