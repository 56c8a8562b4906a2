package handler

import (
	"net/http"
)

// StatusHandler serves the last tick snapshot together with the run mode.
type StatusHandler struct {
	source StatusSource
	mode   string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(source StatusSource, mode string) *StatusHandler {
	return &StatusHandler{source: source, mode: mode}
}

// GetStatus responds with the most recent engine status.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.source.Status()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "no tick completed yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.mode,
		"status": st,
	})
}
