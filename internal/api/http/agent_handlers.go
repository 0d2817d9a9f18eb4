package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	order, err := s.registry.ResolveOrder()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"agents":               s.registry.Descriptors(),
		"resolution_order":     order,
		"missing_dependencies": s.registry.ValidateDependencies(),
	})
}

func (s *Server) agentMetadata(w http.ResponseWriter, r *http.Request) {
	typeName := chi.URLParam(r, "agentType")
	desc, ok := s.registry.Get(typeName)
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "unknown agent type: "+typeName)
		return
	}
	respondJSON(w, http.StatusOK, desc)
}
