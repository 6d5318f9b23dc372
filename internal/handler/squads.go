package handler

import (
	"fmt"
	"net/http"

	"github.com/KingofLakemoor/chainlink/internal/domain"
	"github.com/KingofLakemoor/chainlink/internal/service"
	"github.com/go-chi/chi/v5"
)

// ListSquads pages through squads, or searches by name when q is set
func (h *Handler) ListSquads(w http.ResponseWriter, r *http.Request) {
	var (
		squads []domain.Squad
		err    error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		squads, err = h.squads.SearchSquads(r.Context(), q)
	} else {
		squads, err = h.squads.ListSquads(r.Context(), queryInt(r, "limit", 0), queryInt(r, "offset", 0))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squads)
}

// GetRecentSquads returns the most recently created squads
func (h *Handler) GetRecentSquads(w http.ResponseWriter, r *http.Request) {
	squads, err := h.leaderboard.Recent(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squads)
}

// GetSquad returns a squad by id
func (h *Handler) GetSquad(w http.ResponseWriter, r *http.Request) {
	squad, err := h.squads.GetSquad(r.Context(), chi.URLParam(r, "squadID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squad)
}

// GetSquadBySlug returns a squad by its slug
func (h *Handler) GetSquadBySlug(w http.ResponseWriter, r *http.Request) {
	squad, err := h.squads.GetSquadBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squad)
}

// GetMonthlyHistory returns the squad's monthly win rate chart
func (h *Handler) GetMonthlyHistory(w http.ResponseWriter, r *http.Request) {
	points, err := h.squads.MonthlyHistory(r.Context(), chi.URLParam(r, "squadID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, points)
}

// GetMySquad returns the acting user's squad
func (h *Handler) GetMySquad(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	squad, err := h.squads.GetUserSquad(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squad)
}

// CreateSquad creates a squad owned by the acting user
func (h *Handler) CreateSquad(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var in service.CreateSquadInput
	if err := h.decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	squad, err := h.squads.CreateSquad(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: squad})
}

// UpdateSquad applies a partial update; only the owner may call it
func (h *Handler) UpdateSquad(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var in service.UpdateSquadInput
	if err := h.decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}

	squad, err := h.squads.UpdateSquad(r.Context(), userID, chi.URLParam(r, "squadID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squad)
}

// DeleteSquadImage resets the squad image to the default
func (h *Handler) DeleteSquadImage(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	squad, err := h.squads.DeleteSquadImage(r.Context(), userID, chi.URLParam(r, "squadID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squad)
}

// JoinSquad adds the acting user to a squad
func (h *Handler) JoinSquad(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	squad, err := h.squads.JoinSquad(r.Context(), chi.URLParam(r, "squadID"), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squad)
}

// LeaveSquad removes the acting user from a squad
func (h *Handler) LeaveSquad(w http.ResponseWriter, r *http.Request) {
	userID, err := UserIDFrom(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	squad, err := h.squads.LeaveSquad(r.Context(), chi.URLParam(r, "squadID"), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squad)
}

// SubmitOutcome applies one resolved pick
func (h *Handler) SubmitOutcome(w http.ResponseWriter, r *http.Request) {
	var event domain.OutcomeEvent
	if err := h.decode(r, &event); err != nil {
		h.writeError(w, r, err)
		return
	}

	squad, err := h.outcomes.HandlePickOutcome(r.Context(), event)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSuccess(w, squad)
}

// BatchResult reports the outcome of a batch submission
type BatchResult struct {
	Applied int               `json:"applied"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// SubmitOutcomeBatch applies resolved picks in order. Individual failures are
// reported per index and do not fail the request.
func (h *Handler) SubmitOutcomeBatch(w http.ResponseWriter, r *http.Request) {
	var events []domain.OutcomeEvent
	if err := readJSON(r, &events); err != nil {
		h.writeError(w, r, err)
		return
	}

	failed := h.outcomes.HandlePickOutcomeBatch(r.Context(), events)

	result := BatchResult{Applied: len(events) - len(failed)}
	if len(failed) > 0 {
		result.Failed = make(map[string]string, len(failed))
		for i, err := range failed {
			if statusFor(err) == http.StatusInternalServerError {
				err = domain.ErrInternalError
			}
			result.Failed[fmt.Sprint(i)] = err.Error()
		}
	}
	h.writeSuccess(w, result)
}
