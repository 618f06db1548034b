package handlers

import (
	"net/http"

	"github.com/likhithmdev/Final-Sic/internal/loop"
)

// StatusBoard is the published loop snapshot.
type StatusBoard interface {
	Load() loop.Status
}

// StatusHandler serves the latest loop snapshot. It never touches the session
// controller, so a slow client can not stall the control loop.
type StatusHandler struct {
	board StatusBoard
}

func NewStatusHandler(board StatusBoard) *StatusHandler {
	return &StatusHandler{board: board}
}

type statusResponse struct {
	loop.Status
	Text string `json:"text"`
}

// Get returns the current status.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.board == nil {
		respondError(w, http.StatusServiceUnavailable, "status not available")
		return
	}
	s := h.board.Load()
	respondJSON(w, http.StatusOK, statusResponse{Status: s, Text: s.Text()})
}
