package domain

import (
	"time"

	"github.com/google/uuid"
)

// AgentRoundBalance tracks one agent's pool over one round.
//
// Invariant: Current == Starting + sum of won profits - sum of lost stakes,
// for all resolved tile bets of the (round, agent) pair. FinalPnL is nil
// until settlement, then Current - Starting.
type AgentRoundBalance struct {
	RoundID          uuid.UUID
	AgentID          uuid.UUID
	Starting         int64
	AllocatedToTiles int64
	Current          int64
	TilesWon         int
	TilesLost        int
	FinalPnL         *int64
	UpdatedAt        time.Time
}

// Unallocated returns the portion of the starting pool not yet committed to
// tile bets. Placement must never drive this negative.
func (b AgentRoundBalance) Unallocated() int64 {
	return b.Starting - b.AllocatedToTiles
}
