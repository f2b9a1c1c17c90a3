package domain

import (
	"time"

	"github.com/google/uuid"
)

// BetStatus is the resolution state of a user bet or an agent tile bet.
type BetStatus string

const (
	BetPending  BetStatus = "pending"
	BetWon      BetStatus = "won"
	BetLost     BetStatus = "lost"
	BetRefunded BetStatus = "refunded"
)

// UserAgentBet is a user's stake on one agent in one round. TxHash is the
// on-chain deposit transaction and doubles as the idempotency key: the same
// hash is never recorded twice.
type UserAgentBet struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	UserAddress  string
	RoundID      uuid.UUID
	AgentID      uuid.UUID
	Amount       int64
	TxHash       string
	Status       BetStatus
	PayoutAmount int64
	PayoutTxHash string
	CreatedAt    time.Time
}

// TileBet is a strategy-generated wager draft on a future time/price cell,
// before it has been placed on chain or persisted.
type TileBet struct {
	Col         int
	Row         int
	TargetPrice float64
	Amount      int64
	Multiplier  float64
}

// AgentTileBet is a placed tile bet. ProfitLoss is signed: positive profit on
// a win, the negated stake on a loss. It is set exactly once, at resolution.
type AgentTileBet struct {
	ID             uuid.UUID
	RoundID        uuid.UUID
	AgentID        uuid.UUID
	Col            int
	Row            int
	TargetPrice    float64
	Amount         int64
	Multiplier     float64
	ContractTxHash string
	Status         BetStatus
	ProfitLoss     int64
	CreatedAt      time.Time
}
