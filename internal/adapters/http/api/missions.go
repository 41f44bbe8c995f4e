// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aurelian-hq/missiond/internal/domain/mission"
)

// MissionDependencies defines the interface for mission lifecycle operations.
type MissionDependencies interface {
	CreateMission(ctx context.Context, m *mission.Mission) (*mission.Mission, error)
	Mission(ctx context.Context, id string) (*mission.Mission, error)
	Missions(ctx context.Context) ([]mission.Mission, error)
}

// MissionsHandler handles mission lifecycle requests.
type MissionsHandler struct {
	deps MissionDependencies
}

// NewMissionsHandler creates a new missions handler.
func NewMissionsHandler(deps MissionDependencies) *MissionsHandler {
	return &MissionsHandler{deps: deps}
}

// createMissionRequest mirrors the POST /missions payload.
type createMissionRequest struct {
	Name         string            `json:"name"`
	Requirements mission.Resources `json:"requirements"`
	Tiers        []mission.Tier    `json:"tiers"`
	EndsAt       string            `json:"ends_at"`
}

func (c createMissionRequest) validate() error {
	switch {
	case strings.TrimSpace(c.Name) == "":
		return errors.New("missing name")
	case len(c.Requirements) == 0:
		return errors.New("missing requirements")
	case strings.TrimSpace(c.EndsAt) == "":
		return errors.New("missing ends_at")
	}
	if _, err := time.Parse(time.RFC3339, c.EndsAt); err != nil {
		return errors.New("invalid ends_at; must be RFC3339")
	}
	return nil
}

// HandleCreateMission handles POST /missions requests.
func (h *MissionsHandler) HandleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req createMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	endsAt, _ := time.Parse(time.RFC3339, req.EndsAt)

	m, err := h.deps.CreateMission(r.Context(), &mission.Mission{
		Name:         req.Name,
		Requirements: req.Requirements,
		Tiers:        req.Tiers,
		EndsAt:       endsAt,
	})
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMissionResponse(m))
}

// HandleGetMission handles GET /missions/{id} requests.
func (h *MissionsHandler) HandleGetMission(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m, err := h.deps.Mission(r.Context(), id)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMissionResponse(m))
}

// HandleListMissions handles GET /missions requests.
func (h *MissionsHandler) HandleListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := h.deps.Missions(r.Context())
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	out := make([]missionResponse, len(missions))
	for i := range missions {
		out[i] = toMissionResponse(&missions[i])
	}
	writeJSON(w, http.StatusOK, out)
}
