package api

import "net/http"

// handleListTypes returns the type palette: every registered tag with its
// role, bracket family and default settings.
func (s *Server) handleListTypes(w http.ResponseWriter, _ *http.Request) {
	types := s.library.Types().Types()
	writeJSON(w, http.StatusOK, map[string]any{"types": types, "count": len(types)})
}
