// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aurelian-hq/missiond/internal/app"
	"github.com/aurelian-hq/missiond/internal/domain/mission"
)

// ContributionDependencies defines the interface for submitting contributions.
type ContributionDependencies interface {
	Submit(ctx context.Context, sub app.Submission) (*app.Receipt, error)
}

// ContributionsHandler handles contribution submissions.
type ContributionsHandler struct {
	deps ContributionDependencies
}

// NewContributionsHandler creates a new contributions handler.
func NewContributionsHandler(deps ContributionDependencies) *ContributionsHandler {
	return &ContributionsHandler{deps: deps}
}

// contributionRequest mirrors the POST /missions/{id}/contributions payload.
type contributionRequest struct {
	SubmissionID string            `json:"submission_id"`
	UserID       string            `json:"user_id"`
	GuildID      string            `json:"guild_id"`
	Delta        mission.Resources `json:"delta"`
}

func (c contributionRequest) validate() error {
	switch {
	case strings.TrimSpace(c.SubmissionID) == "":
		return errors.New("missing submission_id")
	case strings.TrimSpace(c.UserID) == "":
		return errors.New("missing user_id")
	case len(c.Delta) == 0:
		return errors.New("missing delta")
	}
	return nil
}

// HandleSubmitContribution handles POST /missions/{id}/contributions requests.
func (h *ContributionsHandler) HandleSubmitContribution(w http.ResponseWriter, r *http.Request) {
	missionID := r.PathValue("id")

	var req contributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	receipt, err := h.deps.Submit(r.Context(), app.Submission{
		SubmissionID: req.SubmissionID,
		MissionID:    missionID,
		UserID:       req.UserID,
		GuildID:      req.GuildID,
		Delta:        req.Delta,
	})
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	if receipt.Duplicate {
		writeJSON(w, http.StatusOK, receipt)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}
