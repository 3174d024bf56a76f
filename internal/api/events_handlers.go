package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleListEvents returns a provider's recent CallEvents (§6a, §4.8),
// newest first. Accepts an optional ?day=YYYY-MM-DD (defaults to today,
// server time) and ?limit= (defaults to 50, capped at maxLimit) since
// events are partitioned per (provider, day).
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerID")
	if providerID == "" {
		writeError(w, http.StatusBadRequest, "providerID is required")
		return
	}

	day := time.Now()
	if raw := r.URL.Query().Get("day"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be formatted YYYY-MM-DD")
			return
		}
		day = parsed
	}

	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}

	events, err := s.events.Recent(r.Context(), providerID, day, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  events,
		Total:  len(events),
		Limit:  int(limit),
		Offset: 0,
	})
}
