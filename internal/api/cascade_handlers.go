package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleGetCascadePlan inspects the in-flight CascadePlan for a shift
// (§6a), returning 404 once the shift's cascade has been cancelled or was
// never released.
func (s *Server) handleGetCascadePlan(w http.ResponseWriter, r *http.Request) {
	shiftID := chi.URLParam(r, "shiftID")
	if shiftID == "" {
		writeError(w, http.StatusBadRequest, "shiftID is required")
		return
	}

	plan, ok, err := s.plans.LoadPlan(r.Context(), shiftID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load cascade plan")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no active cascade for this shift")
		return
	}

	writeJSON(w, http.StatusOK, plan)
}
