package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"chancai/internal/weather"
)

// handleClima answers current conditions for every monitored port of the
// requested country. Cache behavior lives in the weather service; this
// handler only maps outcomes to the wire contract.
func (s *Server) handleClima(w http.ResponseWriter, r *http.Request) {
	pais := chi.URLParam(r, "pais")

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	list, err := s.clima.ForCountry(ctx, pais)
	if err != nil {
		if errors.Is(err, weather.ErrUnknownCountry) {
			writeJSONError(w, "País no encontrado.", http.StatusNotFound)
			return
		}
		s.logger.Error("port weather failed", "country", pais, "err", err)
		writeJSONError(w, "Error interno del servidor.", http.StatusInternalServerError)
		return
	}

	writeJSON(w, list, http.StatusOK)
}
