package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/momentumbot/internal/engine"
)

// StatusSource exposes the engine's last published tick.
type StatusSource interface {
	Status() *engine.Status
}

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	source StatusSource
	// stale is how long without a finished tick before reporting degraded.
	stale time.Duration
	now   func() time.Time
}

// NewHealthHandler creates a HealthHandler. A zero stale disables the
// staleness check.
func NewHealthHandler(source StatusSource, stale time.Duration) *HealthHandler {
	return &HealthHandler{source: source, stale: stale, now: time.Now}
}

// HealthCheck reports whether the trading loop is alive.
// GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	body := map[string]any{
		"status":    "ok",
		"timestamp": now.Format(time.RFC3339),
	}

	st := h.source.Status()
	if st == nil {
		body["status"] = "starting"
		writeJSON(w, http.StatusOK, body)
		return
	}

	body["last_tick"] = st.Tick
	body["last_tick_at"] = st.FinishedAt.UTC().Format(time.RFC3339)
	if h.stale > 0 && now.Sub(st.FinishedAt) > h.stale {
		body["status"] = "stale"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}
