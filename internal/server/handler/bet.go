package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
	"github.com/monarena/monarena/internal/service"
)

// BetHandler serves user bet placement and lookup.
type BetHandler struct {
	betting  *service.UserBettingService
	userBets domain.UserBetStore
	logger   *slog.Logger
}

// NewBetHandler creates a BetHandler with the provided dependencies.
func NewBetHandler(betting *service.UserBettingService, userBets domain.UserBetStore, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		betting:  betting,
		userBets: userBets,
		logger:   logHandler(logger, "bets"),
	}
}

// placeBetRequest is the body of POST /api/bets. Amount is in minor units.
type placeBetRequest struct {
	UserID      uuid.UUID `json:"user_id"`
	UserAddress string    `json:"user_address"`
	RoundID     uuid.UUID `json:"round_id"`
	AgentID     uuid.UUID `json:"agent_id"`
	Amount      int64     `json:"amount"`
	TxHash      string    `json:"tx_hash"`
}

// userBetJSON is the wire shape of a user bet.
type userBetJSON struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	RoundID      uuid.UUID `json:"round_id"`
	AgentID      uuid.UUID `json:"agent_id"`
	Amount       int64     `json:"amount"`
	TxHash       string    `json:"tx_hash"`
	Status       string    `json:"status"`
	PayoutAmount int64     `json:"payout_amount"`
	PayoutTxHash string    `json:"payout_tx_hash,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func toUserBetJSON(b domain.UserAgentBet) userBetJSON {
	return userBetJSON{
		ID:           b.ID,
		UserID:       b.UserID,
		RoundID:      b.RoundID,
		AgentID:      b.AgentID,
		Amount:       b.Amount,
		TxHash:       b.TxHash,
		Status:       string(b.Status),
		PayoutAmount: b.PayoutAmount,
		PayoutTxHash: b.PayoutTxHash,
		CreatedAt:    b.CreatedAt,
	}
}

// PlaceBet records a user's stake on an agent. The on-chain deposit must
// already be mined; its tx hash doubles as the idempotency key, so retrying
// the same deposit returns the original bet with a 200.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil || req.RoundID == uuid.Nil || req.AgentID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "user_id, round_id, and agent_id are required")
		return
	}
	if req.UserAddress == "" || req.TxHash == "" {
		writeError(w, http.StatusBadRequest, "user_address and tx_hash are required")
		return
	}

	bet, err := h.betting.PlaceBet(r.Context(), req.UserID, req.UserAddress, req.RoundID, req.AgentID, req.Amount, req.TxHash)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "round not found")
		case errors.Is(err, domain.ErrBettingClosed):
			writeError(w, http.StatusConflict, "betting window is closed")
		case errors.Is(err, domain.ErrBetTooSmall):
			writeError(w, http.StatusBadRequest, "bet amount below minimum")
		case errors.Is(err, domain.ErrTxFailed):
			writeError(w, http.StatusUnprocessableEntity, "deposit transaction not confirmed")
		default:
			h.logger.Error("place bet failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to place bet")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toUserBetJSON(bet))
}

// ListBets returns a user's bets in a round.
// GET /api/bets?user=<uuid>&round=<uuid>
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing user parameter")
		return
	}
	roundID, ok := queryUUID(r, "round")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round parameter")
		return
	}
	if roundID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "round parameter is required")
		return
	}

	bets, err := h.userBets.ListByUser(r.Context(), userID, roundID)
	if err != nil {
		h.logger.Error("list bets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	out := make([]userBetJSON, 0, len(bets))
	for _, b := range bets {
		out = append(out, toUserBetJSON(b))
	}
	writeJSON(w, http.StatusOK, out)
}
