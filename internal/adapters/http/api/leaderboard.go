// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aurelian-hq/missiond/internal/adapters/rankindex"
	"github.com/aurelian-hq/missiond/internal/domain/mission"
)

// LeaderboardDependencies defines the interface for leaderboard and
// participant reads plus reward claims.
type LeaderboardDependencies interface {
	Leaderboard(ctx context.Context, missionID string, limit int) ([]rankindex.Entry, error)
	Participant(ctx context.Context, missionID, userID string) (*mission.Participant, error)
	ClaimReward(ctx context.Context, missionID, userID string) (*mission.Participant, error)
}

// LeaderboardHandler handles leaderboard, participant, and claim requests.
type LeaderboardHandler struct {
	deps LeaderboardDependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps LeaderboardDependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /missions/{id}/leaderboard?limit=N requests.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	missionID := r.PathValue("id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.deps.Leaderboard(r.Context(), missionID, limit)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetParticipant handles GET /missions/{id}/participants/{user_id} requests.
func (h *LeaderboardHandler) HandleGetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Participant(r.Context(), r.PathValue("id"), r.PathValue("user_id"))
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}

// HandleClaimReward handles POST /missions/{id}/participants/{user_id}/claim requests.
func (h *LeaderboardHandler) HandleClaimReward(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.ClaimReward(r.Context(), r.PathValue("id"), r.PathValue("user_id"))
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toParticipantResponse(p))
}
