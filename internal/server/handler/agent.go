package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
)

// AgentHandler serves the fixed agent roster and per-round agent balances.
type AgentHandler struct {
	agents   domain.AgentStore
	balances domain.BalanceStore
	logger   *slog.Logger
}

// NewAgentHandler creates an AgentHandler with the provided dependencies.
func NewAgentHandler(agents domain.AgentStore, balances domain.BalanceStore, logger *slog.Logger) *AgentHandler {
	return &AgentHandler{
		agents:   agents,
		balances: balances,
		logger:   logHandler(logger, "agents"),
	}
}

// agentJSON is the wire shape of an agent.
type agentJSON struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Archetype     string    `json:"archetype"`
	ContractIndex int       `json:"contract_index"`
	AvatarColor   string    `json:"avatar_color"`
	TotalWins     int       `json:"total_wins"`
	TotalRounds   int       `json:"total_rounds"`
}

// ListAgents returns the agent roster with lifetime win stats.
// GET /api/agents
func (h *AgentHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.agents.List(r.Context())
	if err != nil {
		h.logger.Error("list agents failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list agents")
		return
	}

	out := make([]agentJSON, 0, len(agents))
	for _, a := range agents {
		out = append(out, agentJSON{
			ID:            a.ID,
			Name:          a.Name,
			Archetype:     string(a.Archetype),
			ContractIndex: a.ContractIndex,
			AvatarColor:   a.AvatarColor,
			TotalWins:     a.TotalWins,
			TotalRounds:   a.TotalRounds,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// balanceJSON is the wire shape of an agent's per-round balance.
type balanceJSON struct {
	AgentID          uuid.UUID `json:"agent_id"`
	Starting         int64     `json:"starting"`
	AllocatedToTiles int64     `json:"allocated_to_tiles"`
	Current          int64     `json:"current"`
	TilesWon         int       `json:"tiles_won"`
	TilesLost        int       `json:"tiles_lost"`
	FinalPnL         *int64    `json:"final_pnl,omitempty"`
}

// ListBalances returns every agent's balance for one round.
// GET /api/rounds/{id}/balances
func (h *AgentHandler) ListBalances(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	bals, err := h.balances.ListByRound(r.Context(), id)
	if err != nil {
		h.logger.Error("list balances failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list balances")
		return
	}

	out := make([]balanceJSON, 0, len(bals))
	for _, b := range bals {
		out = append(out, balanceJSON{
			AgentID:          b.AgentID,
			Starting:         b.Starting,
			AllocatedToTiles: b.AllocatedToTiles,
			Current:          b.Current,
			TilesWon:         b.TilesWon,
			TilesLost:        b.TilesLost,
			FinalPnL:         b.FinalPnL,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
