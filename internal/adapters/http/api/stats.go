package api

import (
	"net/http"
)

// handleStats serves GET /stats.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Stats == nil {
		writeData(w, http.StatusOK, map[string]any{})
		return
	}
	writeData(w, http.StatusOK, s.deps.Stats.GetStats())
}
