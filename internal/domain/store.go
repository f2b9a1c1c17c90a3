package domain

import (
	"context"

	"github.com/google/uuid"
)

// RoundStore persists trading rounds.
type RoundStore interface {
	Create(ctx context.Context, round Round) error
	GetByID(ctx context.Context, id uuid.UUID) (Round, error)
	// UpdateStatus performs a guarded transition: the row is only updated
	// when its current status equals from. ErrInvalidStatus is returned
	// when the guard does not match.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to RoundStatus) error
	// SetSettled finalizes a round in one statement: status, final price,
	// winner set, pool totals.
	SetSettled(ctx context.Context, id uuid.UUID, finalPrice float64, winners []uuid.UUID, totalPool, platformCut int64) error
	SetCancelled(ctx context.Context, id uuid.UUID, reason string) error
	LatestNumber(ctx context.Context) (int, error)
	ListRecent(ctx context.Context, limit int) ([]Round, error)
}

// AgentStore persists the roster of autonomous agents.
type AgentStore interface {
	Upsert(ctx context.Context, agent Agent) error
	List(ctx context.Context) ([]Agent, error)
	GetByID(ctx context.Context, id uuid.UUID) (Agent, error)
	// IncrementStats bumps total_rounds, and total_wins when won is true.
	IncrementStats(ctx context.Context, id uuid.UUID, won bool) error
}

// BalanceStore persists per-(round, agent) pool balances. All mutating calls
// are atomic SQL increments; concurrent resolutions must not lose updates.
type BalanceStore interface {
	// Seed upserts a zero-initialized balance row with the given starting
	// stake. Re-seeding an existing row is a no-op.
	Seed(ctx context.Context, roundID, agentID uuid.UUID, starting int64) error
	Get(ctx context.Context, roundID, agentID uuid.UUID) (AgentRoundBalance, error)
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]AgentRoundBalance, error)
	// AddToStarting grows both starting and current balance (user backing).
	AddToStarting(ctx context.Context, roundID, agentID uuid.UUID, amount int64) (int64, error)
	// AddAllocated bumps the allocated-to-tiles counter. The bump is guarded:
	// pushing the allocation past the starting pool returns ErrPoolExceeded
	// and leaves the row untouched.
	AddAllocated(ctx context.Context, roundID, agentID uuid.UUID, amount int64) error
	// ApplyResolution adjusts the current balance by the signed delta and
	// bumps the matching win/loss counter.
	ApplyResolution(ctx context.Context, roundID, agentID uuid.UUID, delta int64, won bool) error
	SetFinalPnL(ctx context.Context, roundID, agentID uuid.UUID, pnl int64) error
}

// UserBetStore persists user stakes on agents.
type UserBetStore interface {
	// Create inserts a bet. A bet with a duplicate tx hash returns
	// ErrDuplicateBet and leaves the ledger untouched.
	Create(ctx context.Context, bet UserAgentBet) (UserAgentBet, error)
	GetByTxHash(ctx context.Context, txHash string) (UserAgentBet, error)
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]UserAgentBet, error)
	ListByUser(ctx context.Context, userID, roundID uuid.UUID) ([]UserAgentBet, error)
	ListByStatus(ctx context.Context, roundID uuid.UUID, status BetStatus) ([]UserAgentBet, error)
	// MarkRoundOutcome flips every pending bet of the round to won or lost
	// depending on winner membership, atomically (single transaction).
	MarkRoundOutcome(ctx context.Context, roundID uuid.UUID, winners []uuid.UUID) error
	SetPayout(ctx context.Context, betID uuid.UUID, amount int64, txHash string) error
}

// TileBetStore persists agent tile bets.
type TileBetStore interface {
	Create(ctx context.Context, bet AgentTileBet) (AgentTileBet, error)
	GetByID(ctx context.Context, id uuid.UUID) (AgentTileBet, error)
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]AgentTileBet, error)
	// ListPendingDue returns pending bets whose column has been reached
	// (col <= maxCol).
	ListPendingDue(ctx context.Context, roundID uuid.UUID, maxCol int) ([]AgentTileBet, error)
	ListPending(ctx context.Context, roundID uuid.UUID) ([]AgentTileBet, error)
	// Resolve transitions a bet out of pending in a single conditional
	// update. It returns false when the bet was already resolved, which
	// callers treat as an idempotent no-op.
	Resolve(ctx context.Context, id uuid.UUID, status BetStatus, profitLoss int64) (bool, error)
}

// SnapshotStore persists the append-only price trail of active rounds.
type SnapshotStore interface {
	Insert(ctx context.Context, snap PriceSnapshot) error
	ListByRound(ctx context.Context, roundID uuid.UUID) ([]PriceSnapshot, error)
}
