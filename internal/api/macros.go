package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-macro-core/internal/engine"
	"github.com/nerrad567/gray-macro-core/internal/macro"
)

// maxQueryParamLen limits path and query parameter length.
const maxQueryParamLen = 100

// maxRunHistory caps GET /macros/{id}/runs.
const maxRunHistory = 50

// macroID extracts and checks the {id} URL parameter.
func macroID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid macro ID")
		return "", false
	}
	return id, true
}

// writeMacroError maps library errors onto HTTP responses.
func writeMacroError(w http.ResponseWriter, err error, action string) {
	var buildErr *macro.BuildError
	switch {
	case errors.Is(err, macro.ErrMacroNotFound):
		writeNotFound(w, "macro not found")
	case errors.Is(err, macro.ErrItemNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, macro.ErrMacroExists):
		writeConflict(w, err.Error())
	case errors.Is(err, macro.ErrMacroDisabled):
		writeConflict(w, "macro is disabled")
	case errors.As(err, &buildErr):
		writeJSON(w, http.StatusUnprocessableEntity, structuralError{
			Error:    Error{Status: http.StatusUnprocessableEntity, Code: ErrCodeStructural, Message: err.Error()},
			Position: buildErr.Position,
			Type:     buildErr.Type,
		})
	case errors.Is(err, macro.ErrStructural):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeStructural, err.Error())
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		writeInternalError(w, "failed to "+action)
	}
}

// structuralError is the 422 body for a list that cannot be built.
type structuralError struct {
	Error
	Position int    `json:"position"`
	Type     string `json:"type"`
}

func isValidationError(err error) bool {
	for _, target := range []error{
		macro.ErrInvalidMacro, macro.ErrInvalidName, macro.ErrInvalidSlug,
		macro.ErrInvalidSettings, macro.ErrTooManyItems, macro.ErrUnknownType,
		macro.ErrInvalidPosition, macro.ErrInvalidDocument, macro.ErrInvalidDescriptor,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// withLayout replaces a macro's items with the recalculated list so that
// depths and pair positions in the response are current.
func (s *Server) withLayout(m *macro.Macro) *macro.Macro {
	list, err := s.library.OpenList(m)
	if err != nil {
		return m
	}
	m.Items = list.Items()
	return m
}

// handleListMacros returns all macros without their items.
func (s *Server) handleListMacros(w http.ResponseWriter, r *http.Request) {
	macros, err := s.library.ListMacros(r.Context())
	if err != nil {
		writeInternalError(w, "failed to list macros")
		return
	}
	type summary struct {
		macro.Macro
		Items     []macro.FlatItem `json:"items,omitempty"` // shadows Macro.Items; always empty
		ItemCount int              `json:"item_count"`
	}
	out := make([]summary, len(macros))
	for i, m := range macros {
		out[i] = summary{Macro: m, ItemCount: len(m.Items)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"macros": out, "count": len(out)})
}

// handleGetMacro returns a single macro by ID.
func (s *Server) handleGetMacro(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	m, err := s.library.GetMacro(r.Context(), id)
	if err != nil {
		writeMacroError(w, err, "get macro")
		return
	}
	writeJSON(w, http.StatusOK, s.withLayout(m))
}

// handleCreateMacro creates a new macro.
func (s *Server) handleCreateMacro(w http.ResponseWriter, r *http.Request) {
	var m macro.Macro
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	m.ID = ""
	for i := range m.Items {
		m.Items[i] = m.Items[i].Detach()
	}

	if err := s.library.CreateMacro(r.Context(), &m); err != nil {
		writeMacroError(w, err, "create macro")
		return
	}
	writeJSON(w, http.StatusCreated, s.withLayout(&m))
}

// handleUpdateMacro partially updates a macro. Items are replaced only
// when the body carries an "items" key.
func (s *Server) handleUpdateMacro(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}

	existing, err := s.library.GetMacro(r.Context(), id)
	if err != nil {
		writeMacroError(w, err, "get macro")
		return
	}

	if err := json.NewDecoder(r.Body).Decode(existing); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	existing.ID = id // Ensure ID cannot be changed
	for i := range existing.Items {
		existing.Items[i] = existing.Items[i].Detach()
	}

	if err := s.library.UpdateMacro(r.Context(), existing); err != nil {
		writeMacroError(w, err, "update macro")
		return
	}
	writeJSON(w, http.StatusOK, s.withLayout(existing))
}

// handleDeleteMacro removes a macro by ID.
func (s *Server) handleDeleteMacro(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	if err := s.library.DeleteMacro(r.Context(), id); err != nil {
		writeMacroError(w, err, "delete macro")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Documents ──────────────────────────────────────────────────────────────

// handleImportMacro creates a macro from a YAML or JSON document body.
func (s *Server) handleImportMacro(w http.ResponseWriter, r *http.Request) {
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	m := doc.ToMacro()
	if err := s.library.CreateMacro(r.Context(), m); err != nil {
		writeMacroError(w, err, "import macro")
		return
	}
	writeJSON(w, http.StatusCreated, s.withLayout(m))
}

// handleExportMacro returns a macro as a portable document.
//
// Query parameters:
//   - format: yaml (default) or json
func (s *Server) handleExportMacro(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	format := macro.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = macro.FormatYAML
	}
	if format != macro.FormatYAML && format != macro.FormatJSON {
		writeBadRequest(w, "format must be yaml or json")
		return
	}

	m, err := s.library.GetMacro(r.Context(), id)
	if err != nil {
		writeMacroError(w, err, "get macro")
		return
	}
	data, err := macro.EncodeDocument(macro.DocumentFromMacro(m), format)
	if err != nil {
		writeInternalError(w, "failed to encode document")
		return
	}

	contentType := "application/yaml"
	if format == macro.FormatJSON {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+m.Slug+"."+string(format)+`"`)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write(data)
}

func readDocument(w http.ResponseWriter, r *http.Request) (*macro.Document, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return nil, false
	}
	doc, err := macro.ParseDocument(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return nil, false
	}
	return doc, true
}

// ─── Check ──────────────────────────────────────────────────────────────────

// checkResponse reports a successful build.
type checkResponse struct {
	Valid bool            `json:"valid"`
	Nodes int             `json:"nodes"`
	Tree  engine.TreeNode `json:"tree"`
}

func (s *Server) writeCheck(w http.ResponseWriter, m *macro.Macro) {
	root, err := s.runner.Check(m)
	if err != nil {
		writeMacroError(w, err, "check macro")
		return
	}
	tree := engine.Describe(root)
	writeJSON(w, http.StatusOK, checkResponse{Valid: true, Nodes: tree.Size(), Tree: tree})
}

// handleCheckMacro builds a stored macro's tree without running it.
func (s *Server) handleCheckMacro(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	m, err := s.library.GetMacro(r.Context(), id)
	if err != nil {
		writeMacroError(w, err, "get macro")
		return
	}
	s.writeCheck(w, m)
}

// handleCheckDocument builds the tree of a document body without storing it.
func (s *Server) handleCheckDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	m := doc.ToMacro()
	if err := macro.ValidateMacro(m, s.library.Types(), 0); err != nil {
		writeMacroError(w, err, "check macro")
		return
	}
	s.writeCheck(w, m)
}

// ─── Runs ───────────────────────────────────────────────────────────────────

// runRequest is the optional body for POST /macros/{id}/run.
type runRequest struct {
	TriggerSource string `json:"trigger_source"`
}

// handleRunMacro starts a macro run and returns its run ID. This is
// asynchronous: node events follow via WebSocket and the final record is
// available from GET /runs/{id}.
func (s *Server) handleRunMacro(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}

	var req runRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}
	source := req.TriggerSource
	if source == "" {
		source = "api"
		if sub := subjectFrom(r.Context()); sub != "" {
			source = "api:" + sub
		}
	}

	runID, err := s.runner.Start(r.Context(), id, macro.TriggerAPI, source)
	if err != nil {
		writeMacroError(w, err, "start macro")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":  runID,
		"status":  "accepted",
		"message": "macro run started, node events will follow via WebSocket",
	})
}

// handleListMacroRuns returns run history for a macro.
//
// Query parameters:
//   - limit: number of runs (default 10, max 50)
func (s *Server) handleListMacroRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	if s.runs == nil {
		writeUnavailable(w, "run history not available")
		return
	}
	if _, err := s.library.GetMacro(r.Context(), id); err != nil {
		writeMacroError(w, err, "get macro")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunHistory {
			writeBadRequest(w, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), id, limit)
	if err != nil {
		writeInternalError(w, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}
