// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aurelian-hq/missiond/internal/domain/mission"
)

// WalletDependencies defines the interface for wallet operations.
type WalletDependencies interface {
	Credit(ctx context.Context, userID, resource string, amount int64) (int64, error)
	Balances(ctx context.Context, userID string) (mission.Resources, error)
}

// WalletsHandler handles wallet requests.
type WalletsHandler struct {
	deps WalletDependencies
}

// NewWalletsHandler creates a new wallets handler.
func NewWalletsHandler(deps WalletDependencies) *WalletsHandler {
	return &WalletsHandler{deps: deps}
}

// creditRequest mirrors the POST /wallets/{user_id}/credits payload.
type creditRequest struct {
	Resource string `json:"resource"`
	Amount   int64  `json:"amount"`
}

func (c creditRequest) validate() error {
	switch {
	case strings.TrimSpace(c.Resource) == "":
		return errors.New("missing resource")
	case c.Amount <= 0:
		return errors.New("amount must be positive")
	}
	return nil
}

type creditResponse struct {
	UserID   string `json:"user_id"`
	Resource string `json:"resource"`
	Balance  int64  `json:"balance"`
}

// HandleCredit handles POST /wallets/{user_id}/credits requests.
func (h *WalletsHandler) HandleCredit(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	var req creditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	balance, err := h.deps.Credit(r.Context(), userID, req.Resource, req.Amount)
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, creditResponse{UserID: userID, Resource: req.Resource, Balance: balance})
}

// HandleGetBalances handles GET /wallets/{user_id} requests.
func (h *WalletsHandler) HandleGetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.deps.Balances(r.Context(), r.PathValue("user_id"))
	if err != nil {
		respondLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}
