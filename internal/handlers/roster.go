package handlers

import (
	"context"
	"net/http"

	"github.com/codejam/backend/internal/models"
)

// RosterService builds and rebroadcasts the team roster.
type RosterService interface {
	Build(ctx context.Context) (*models.Roster, error)
	Broadcast(ctx context.Context) error
}

// RosterHandler serves the one-shot roster and the rebroadcast trigger.
type RosterHandler struct {
	roster RosterService
}

func NewRosterHandler(roster RosterService) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// Feed returns the current roster as JSON.
func (h *RosterHandler) Feed(w http.ResponseWriter, r *http.Request) {
	roster, err := h.roster.Build(r.Context())
	if err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to build roster", err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// Update rebuilds the roster and pushes it to every roster subscriber.
// Authenticated by BackendAuth.
func (h *RosterHandler) Update(w http.ResponseWriter, r *http.Request) {
	if err := h.roster.Broadcast(r.Context()); err != nil {
		writeErrorWithCause(r.Context(), w, http.StatusInternalServerError, "failed to broadcast roster", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
