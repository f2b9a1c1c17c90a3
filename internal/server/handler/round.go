package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
	"github.com/monarena/monarena/internal/service"
)

// RoundHandler serves round state: the round list, a single round, and its
// tile bets, price trail, and per-user payout.
type RoundHandler struct {
	rounds    domain.RoundStore
	tileBets  domain.TileBetStore
	snapshots domain.SnapshotStore
	payouts   *service.PayoutService
	logger    *slog.Logger
}

// NewRoundHandler creates a RoundHandler with the provided dependencies.
func NewRoundHandler(
	rounds domain.RoundStore,
	tileBets domain.TileBetStore,
	snapshots domain.SnapshotStore,
	payouts *service.PayoutService,
	logger *slog.Logger,
) *RoundHandler {
	return &RoundHandler{
		rounds:    rounds,
		tileBets:  tileBets,
		snapshots: snapshots,
		payouts:   payouts,
		logger:    logHandler(logger, "rounds"),
	}
}

// roundJSON is the wire shape of a round.
type roundJSON struct {
	ID                 uuid.UUID   `json:"id"`
	Number             int         `json:"number"`
	ContractRoundID    string      `json:"contract_round_id"`
	Status             string      `json:"status"`
	StartTime          time.Time   `json:"start_time"`
	BettingEndTime     time.Time   `json:"betting_end_time"`
	RoundEndTime       time.Time   `json:"round_end_time"`
	StartingPrice      float64     `json:"starting_price"`
	FinalPrice         float64     `json:"final_price,omitempty"`
	WinnerAgentIDs     []uuid.UUID `json:"winner_agent_ids,omitempty"`
	TotalPool          int64       `json:"total_pool"`
	PlatformCut        int64       `json:"platform_cut"`
	CancellationReason string      `json:"cancellation_reason,omitempty"`
}

func toRoundJSON(r domain.Round) roundJSON {
	return roundJSON{
		ID:                 r.ID,
		Number:             r.Number,
		ContractRoundID:    r.ContractRoundID,
		Status:             string(r.Status),
		StartTime:          r.StartTime,
		BettingEndTime:     r.BettingEndTime,
		RoundEndTime:       r.RoundEndTime,
		StartingPrice:      r.StartingPrice,
		FinalPrice:         r.FinalPrice,
		WinnerAgentIDs:     r.WinnerAgentIDs,
		TotalPool:          r.TotalPool,
		PlatformCut:        r.PlatformCut,
		CancellationReason: r.CancellationReason,
	}
}

// ListRounds returns the most recent rounds, newest first.
// GET /api/rounds?limit=N
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.rounds.ListRecent(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.Error("list rounds failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}

	out := make([]roundJSON, 0, len(rounds))
	for _, round := range rounds {
		out = append(out, toRoundJSON(round))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetRound returns one round by ID.
// GET /api/rounds/{id}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	round, err := h.rounds.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "round not found")
			return
		}
		h.logger.Error("get round failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load round")
		return
	}
	writeJSON(w, http.StatusOK, toRoundJSON(round))
}

// tileBetJSON is the wire shape of an agent tile bet.
type tileBetJSON struct {
	ID          uuid.UUID `json:"id"`
	AgentID     uuid.UUID `json:"agent_id"`
	Col         int       `json:"col"`
	Row         int       `json:"row"`
	TargetPrice float64   `json:"target_price"`
	Amount      int64     `json:"amount"`
	Multiplier  float64   `json:"multiplier"`
	Status      string    `json:"status"`
	ProfitLoss  int64     `json:"profit_loss"`
}

// ListTileBets returns every agent tile bet of a round.
// GET /api/rounds/{id}/tiles
func (h *RoundHandler) ListTileBets(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	bets, err := h.tileBets.ListByRound(r.Context(), id)
	if err != nil {
		h.logger.Error("list tile bets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list tile bets")
		return
	}

	out := make([]tileBetJSON, 0, len(bets))
	for _, b := range bets {
		out = append(out, tileBetJSON{
			ID:          b.ID,
			AgentID:     b.AgentID,
			Col:         b.Col,
			Row:         b.Row,
			TargetPrice: b.TargetPrice,
			Amount:      b.Amount,
			Multiplier:  b.Multiplier,
			Status:      string(b.Status),
			ProfitLoss:  b.ProfitLoss,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// snapshotJSON is the wire shape of a price snapshot.
type snapshotJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// ListSnapshots returns the recorded price trail of a round.
// GET /api/rounds/{id}/snapshots
func (h *RoundHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	snaps, err := h.snapshots.ListByRound(r.Context(), id)
	if err != nil {
		h.logger.Error("list snapshots failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list snapshots")
		return
	}

	out := make([]snapshotJSON, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, snapshotJSON{Timestamp: s.Timestamp, Price: s.Price})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetUserPayout returns the payout one user earned in a settled round.
// GET /api/rounds/{id}/payout?user=<uuid>
func (h *RoundHandler) GetUserPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid or missing user parameter")
		return
	}

	payout, err := h.payouts.CalculateUserPayout(r.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "round not found")
			return
		}
		h.logger.Error("payout calculation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to calculate payout")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"round_id": id,
		"user_id":  userID,
		"payout":   payout,
	})
}
