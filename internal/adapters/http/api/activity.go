// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/aurelian-hq/missiond/internal/domain/mission"
)

// ActivityDependencies defines the interface for activity feed reads.
type ActivityDependencies interface {
	Activity(ctx context.Context, missionID string, limit int) ([]mission.ActivityEntry, error)
}

// ActivityHandler handles activity feed requests.
type ActivityHandler struct {
	deps ActivityDependencies
}

// NewActivityHandler creates a new activity handler.
func NewActivityHandler(deps ActivityDependencies) *ActivityHandler {
	return &ActivityHandler{deps: deps}
}

// activityResponse is the wire shape of one feed entry.
type activityResponse struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Delta     mission.Resources `json:"delta"`
	Score     float64           `json:"score"`
	Tier      string            `json:"tier,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// HandleGetActivity handles GET /missions/{id}/activity?limit=N requests.
func (h *ActivityHandler) HandleGetActivity(w http.ResponseWriter, r *http.Request) {
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

	entries, err := h.deps.Activity(r.Context(), missionID, limit)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	out := make([]activityResponse, len(entries))
	for i, e := range entries {
		out[i] = activityResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			Delta:     e.Delta,
			Score:     e.Score,
			Tier:      e.Tier,
			CreatedAt: e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, out)
}
