package domain

import (
	"context"
	"time"
)

// AgentCount is the fixed number of agent slots in the round manager
// contract. The settlement call takes one signed P&L per slot.
const AgentCount = 4

// RoundContract is the on-chain round manager. Every write returns the
// transaction hash after the transaction has been mined with a success
// status; a reverted or unconfirmed transaction is a hard error.
type RoundContract interface {
	CreateRound(ctx context.Context, roundRef string, bettingEnd, roundEnd time.Time) (string, error)
	LockBetting(ctx context.Context, roundRef string) (string, error)
	RecordAgentBet(ctx context.Context, roundRef string, agentIndex int, amount int64) (string, error)
	SettleRound(ctx context.Context, roundRef string, pnls [AgentCount]int64) (string, error)
	CancelRound(ctx context.Context, roundRef string, reason string) (string, error)
	ClaimWinnings(ctx context.Context, roundRef string, userAddress string) (string, error)

	AgentPool(ctx context.Context, roundRef string, agentIndex int) (int64, error)
	RoundStatus(ctx context.Context, roundRef string) (uint8, error)
	Winners(ctx context.Context, roundRef string) ([]uint8, error)
	UserBet(ctx context.Context, roundRef string, userAddress string, agentIndex int) (int64, error)

	// VerifyDeposit checks that txHash was mined successfully against the
	// round manager contract. Used to validate user deposits before they
	// are recorded in the ledger.
	VerifyDeposit(ctx context.Context, txHash string) error
}
