package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// irrigateRequest is the optional body of POST /devices/{id}/irrigate.
type irrigateRequest struct {
	// Duration in minutes. Zero or absent uses the device setting.
	Duration int `json:"duration"`
}

// handleIrrigate starts an irrigation run and returns without waiting for
// it to finish.
func (s *Server) handleIrrigate(w http.ResponseWriter, r *http.Request) {
	var req irrigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Duration < 0 {
		writeBadRequest(w, "duration must not be negative")
		return
	}

	res, err := s.scheduler.Trigger(r.Context(), chi.URLParam(r, "id"), req.Duration)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
