package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetTop returns the top squads by score
func (h *Handler) GetTop(w http.ResponseWriter, r *http.Request) {
	entries, err := h.leaderboard.Top(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, entries)
}

// GetSquadPosition returns a squad's leaderboard position
func (h *Handler) GetSquadPosition(w http.ResponseWriter, r *http.Request) {
	entry, err := h.leaderboard.Position(r.Context(), chi.URLParam(r, "squadID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, entry)
}

// GetStats returns leaderboard statistics
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.leaderboard.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, stats)
}
