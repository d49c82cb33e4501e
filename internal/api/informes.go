package api

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

// handleListInformes returns the caller's archived reports, newest
// first. ?limit= caps the page, defaulting inside the store.
func (s *Server) handleListInformes(w http.ResponseWriter, r *http.Request) {
	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		writeJSONMessage(w, "No autorizado.", http.StatusUnauthorized)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	informes, err := s.store.ListInformesByUser(ctx, userID, limit)
	if err != nil {
		s.logger.Error("list informes failed", "userId", userID, "err", err)
		writeJSONError(w, "Error interno del servidor.", http.StatusInternalServerError)
		return
	}

	writeJSON(w, informes, http.StatusOK)
}
