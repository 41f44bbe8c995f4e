// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aurelian-hq/missiond/internal/adapters/rankindex"
	"github.com/aurelian-hq/missiond/internal/app"
	"github.com/aurelian-hq/missiond/internal/domain/mission"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the ledger implementation.
type Dependencies interface {
	Submit(ctx context.Context, sub app.Submission) (*app.Receipt, error)
	CreateMission(ctx context.Context, m *mission.Mission) (*mission.Mission, error)
	Mission(ctx context.Context, id string) (*mission.Mission, error)
	Missions(ctx context.Context) ([]mission.Mission, error)
	Leaderboard(ctx context.Context, missionID string, limit int) ([]rankindex.Entry, error)
	Participant(ctx context.Context, missionID, userID string) (*mission.Participant, error)
	Activity(ctx context.Context, missionID string, limit int) ([]mission.ActivityEntry, error)
	Credit(ctx context.Context, userID, resource string, amount int64) (int64, error)
	Balances(ctx context.Context, userID string) (mission.Resources, error)
	ClaimReward(ctx context.Context, missionID, userID string) (*mission.Participant, error)
	GetStats(ctx context.Context) app.Stats
}

// Server wires HTTP routes for the ledger API.
type Server struct {
	missionsHandler      *MissionsHandler
	contributionsHandler *ContributionsHandler
	leaderboardHandler   *LeaderboardHandler
	walletsHandler       *WalletsHandler
	activityHandler      *ActivityHandler
	statsHandler         *StatsHandler
	healthHandler        *HealthHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		missionsHandler:      NewMissionsHandler(deps),
		contributionsHandler: NewContributionsHandler(deps),
		leaderboardHandler:   NewLeaderboardHandler(deps),
		walletsHandler:       NewWalletsHandler(deps),
		activityHandler:      NewActivityHandler(deps),
		statsHandler:         NewStatsHandler(deps),
		healthHandler:        NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /missions", MetricsMiddleware(s.missionsHandler.HandleCreateMission, "missions"))
	mux.HandleFunc("GET /missions", MetricsMiddleware(s.missionsHandler.HandleListMissions, "missions"))
	mux.HandleFunc("GET /missions/{id}", MetricsMiddleware(s.missionsHandler.HandleGetMission, "mission"))

	mux.HandleFunc("POST /missions/{id}/contributions",
		MetricsMiddleware(s.contributionsHandler.HandleSubmitContribution, "contributions"))
	mux.HandleFunc("GET /missions/{id}/leaderboard",
		MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /missions/{id}/participants/{user_id}",
		MetricsMiddleware(s.leaderboardHandler.HandleGetParticipant, "participant"))
	mux.HandleFunc("POST /missions/{id}/participants/{user_id}/claim",
		MetricsMiddleware(s.leaderboardHandler.HandleClaimReward, "claim"))
	mux.HandleFunc("GET /missions/{id}/activity",
		MetricsMiddleware(s.activityHandler.HandleGetActivity, "activity"))

	mux.HandleFunc("POST /wallets/{user_id}/credits",
		MetricsMiddleware(s.walletsHandler.HandleCredit, "wallets"))
	mux.HandleFunc("GET /wallets/{user_id}",
		MetricsMiddleware(s.walletsHandler.HandleGetBalances, "wallets"))
}

// missionResponse is the wire shape of a mission.
type missionResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Requirements mission.Resources `json:"requirements"`
	Progress     mission.Resources `json:"progress"`
	Tiers        []mission.Tier    `json:"tiers,omitempty"`
	Status       mission.Status    `json:"status"`
	EndsAt       time.Time         `json:"ends_at"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

func toMissionResponse(m *mission.Mission) missionResponse {
	out := missionResponse{
		ID:           m.ID,
		Name:         m.Name,
		Requirements: m.Requirements,
		Progress:     m.Progress,
		Tiers:        m.Tiers,
		Status:       m.Status,
		EndsAt:       m.EndsAt,
		CreatedAt:    m.CreatedAt,
	}
	if !m.CompletedAt.IsZero() {
		t := m.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// participantResponse is the wire shape of a participant record.
type participantResponse struct {
	MissionID     string            `json:"mission_id"`
	UserID        string            `json:"user_id"`
	GuildID       string            `json:"guild_id,omitempty"`
	Contribution  mission.Resources `json:"contribution"`
	Score         float64           `json:"score"`
	Tier          string            `json:"tier,omitempty"`
	Rank          int               `json:"rank"`
	RewardClaimed bool              `json:"reward_claimed"`
	JoinedAt      time.Time         `json:"joined_at"`
}

func toParticipantResponse(p *mission.Participant) participantResponse {
	return participantResponse{
		MissionID:     p.MissionID,
		UserID:        p.UserID,
		GuildID:       p.GuildID,
		Contribution:  p.Contribution,
		Score:         p.Score,
		Tier:          p.Tier,
		Rank:          p.Rank,
		RewardClaimed: p.RewardClaimed,
		JoinedAt:      p.JoinedAt,
	}
}

type errorResponse struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Fields  []mission.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	var verr *mission.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

// respondLedgerError translates ledger sentinel errors to HTTP statuses.
func respondLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mission.ErrMissionNotFound):
		writeError(w, http.StatusNotFound, "mission_not_found", err)
	case errors.Is(err, mission.ErrParticipantNotFound):
		writeError(w, http.StatusNotFound, "participant_not_found", err)
	case errors.Is(err, mission.ErrMissionNotActive):
		writeError(w, http.StatusConflict, "mission_not_active", err)
	case errors.Is(err, mission.ErrMissionNotCompleted):
		writeError(w, http.StatusConflict, "mission_not_completed", err)
	case errors.Is(err, mission.ErrInvalidContribution):
		writeError(w, http.StatusBadRequest, "invalid_contribution", err)
	case errors.Is(err, mission.ErrInvalidMission):
		writeError(w, http.StatusBadRequest, "invalid_mission", err)
	case errors.Is(err, mission.ErrInsufficientResources):
		writeError(w, http.StatusPaymentRequired, "insufficient_resources", err)
	case errors.Is(err, mission.ErrRewardAlreadyClaimed):
		writeError(w, http.StatusConflict, "reward_already_claimed", err)
	case errors.Is(err, mission.ErrNoRewardTier):
		writeError(w, http.StatusConflict, "no_reward_tier", err)
	case errors.Is(err, mission.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, "conflict", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", ErrInternal)
	}
}
