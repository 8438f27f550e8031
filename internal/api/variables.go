package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-macro-core/internal/variables"
)

// variableName extracts and checks the {name} URL parameter. It also
// answers 503 when no store is configured.
func (s *Server) variableName(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.vars == nil {
		writeUnavailable(w, "variable store not available")
		return "", false
	}
	name := chi.URLParam(r, "name")
	if err := variables.ValidateName(name); err != nil {
		writeBadRequest(w, "invalid variable name")
		return "", false
	}
	return name, true
}

// handleListVariables returns all variables sorted by name.
func (s *Server) handleListVariables(w http.ResponseWriter, r *http.Request) {
	if s.vars == nil {
		writeUnavailable(w, "variable store not available")
		return
	}
	vars, err := s.vars.List(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list variables")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"variables": vars, "count": len(vars)})
}

// handleGetVariable returns one variable.
func (s *Server) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	name, ok := s.variableName(w, r)
	if !ok {
		return
	}
	value, found, err := s.vars.Get(r.Context(), name)
	if err != nil {
		writeInternalError(w, "failed to get variable")
		return
	}
	if !found {
		writeNotFound(w, "variable not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": value})
}

// setVariableRequest is the body for PUT /variables/{name}.
type setVariableRequest struct {
	Value *string `json:"value"`
}

// handleSetVariable creates or replaces a variable.
func (s *Server) handleSetVariable(w http.ResponseWriter, r *http.Request) {
	name, ok := s.variableName(w, r)
	if !ok {
		return
	}
	var req setVariableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := s.vars.Set(r.Context(), name, *req.Value); err != nil {
		if errors.Is(err, variables.ErrValueTooLarge) || errors.Is(err, variables.ErrInvalidName) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		writeInternalError(w, "failed to set variable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": *req.Value})
}

// handleDeleteVariable removes a variable.
func (s *Server) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	name, ok := s.variableName(w, r)
	if !ok {
		return
	}
	if err := s.vars.Delete(r.Context(), name); err != nil {
		if errors.Is(err, variables.ErrNotFound) {
			writeNotFound(w, "variable not found")
			return
		}
		writeInternalError(w, "failed to delete variable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
