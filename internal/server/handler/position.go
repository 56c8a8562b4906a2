package handler

import (
	"net/http"

	"github.com/alanyoungcy/momentumbot/internal/domain"
)

// PositionLister is the read side of the position service.
type PositionLister interface {
	Positions() []domain.Position
}

// PositionHandler serves the position history.
type PositionHandler struct {
	positions PositionLister
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionLister) *PositionHandler {
	return &PositionHandler{positions: positions}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns the recorded positions filtered by state.
// GET /api/positions?state=open|closed|all (default all)
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	var keep func(domain.Position) bool
	switch state := r.URL.Query().Get("state"); state {
	case "", "all":
	case "open":
		keep = domain.Position.IsOpen
	case "closed":
		keep = func(p domain.Position) bool { return !p.IsOpen() }
	default:
		writeError(w, http.StatusBadRequest, "state must be open, closed or all")
		return
	}

	out := []domain.Position{}
	for _, p := range h.positions.Positions() {
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out})
}
