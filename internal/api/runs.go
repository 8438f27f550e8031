package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-macro-core/internal/macro"
)

// handleListActiveRuns returns the IDs of runs in progress.
func (s *Server) handleListActiveRuns(w http.ResponseWriter, _ *http.Request) {
	ids := s.runner.ActiveRuns()
	sort.Strings(ids)
	writeJSON(w, http.StatusOK, map[string]any{"active": ids, "count": len(ids)})
}

// handleGetRun returns a run record by ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid run ID")
		return
	}
	if s.runs == nil {
		writeUnavailable(w, "run history not available")
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, macro.ErrRunNotFound) {
			writeNotFound(w, "run not found")
			return
		}
		writeInternalError(w, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleCancelRun requests cooperative cancellation of an active run. The
// run ends Cancelled at its next cancellation point.
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid run ID")
		return
	}

	if err := s.runner.Cancel(id); err != nil {
		if errors.Is(err, macro.ErrRunNotActive) {
			writeConflict(w, "run is not active")
			return
		}
		writeInternalError(w, "failed to cancel run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": id, "status": "cancelling"})
}
