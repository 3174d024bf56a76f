package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleGetRecordingStatus fetches a completed call's RecordingAsset
// status (§6a, §4.7): which URL is durably recorded and whether the
// carrier-hosted copy was deleted.
func (s *Server) handleGetRecordingStatus(w http.ResponseWriter, r *http.Request) {
	rootCallID := chi.URLParam(r, "rootCallID")
	if rootCallID == "" {
		writeError(w, http.StatusBadRequest, "rootCallID is required")
		return
	}

	asset, ok, err := s.recLog.AssetFor(r.Context(), rootCallID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load recording status")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no recording recorded for this call yet")
		return
	}

	writeJSON(w, http.StatusOK, asset)
}
