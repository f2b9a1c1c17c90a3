package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoundStatus is the lifecycle state of a trading round. Transitions are
// monotonic: BETTING -> TRADING -> SETTLING -> SETTLED, with CANCELLED
// reachable from any non-terminal state.
type RoundStatus string

const (
	RoundBetting   RoundStatus = "BETTING"
	RoundTrading   RoundStatus = "TRADING"
	RoundSettling  RoundStatus = "SETTLING"
	RoundSettled   RoundStatus = "SETTLED"
	RoundCancelled RoundStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s RoundStatus) Terminal() bool {
	return s == RoundSettled || s == RoundCancelled
}

// CanTransitionTo reports whether the transition s -> next is legal.
func (s RoundStatus) CanTransitionTo(next RoundStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == RoundCancelled {
		return true
	}
	switch s {
	case RoundBetting:
		return next == RoundTrading
	case RoundTrading:
		return next == RoundSettling
	case RoundSettling:
		return next == RoundSettled
	}
	return false
}

// Round is one timed betting-and-trading epoch with a single settlement
// outcome. Amounts are in minor units (1e9 units = 1 native token).
type Round struct {
	ID                 uuid.UUID
	Number             int
	ContractRoundID    string
	Status             RoundStatus
	StartTime          time.Time
	BettingEndTime     time.Time
	RoundEndTime       time.Time
	StartingPrice      float64
	FinalPrice         float64
	WinnerAgentIDs     []uuid.UUID
	TotalPool          int64
	PlatformCut        int64
	CancellationReason string
	CreatedAt          time.Time
}
