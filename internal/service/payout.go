package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
)

// platformFeePercent is the house cut taken off the total user pool before
// the prize pool is distributed. Truncating integer division; the dust from
// every truncation in this file accrues to the platform.
const platformFeePercent = 5

// RoundPools is the money picture of one round, derived from the user bet
// ledger.
type RoundPools struct {
	Total       int64
	PlatformCut int64
	PrizePool   int64
	ByAgent     map[uuid.UUID]int64
}

// PayoutService computes settlement results: per-agent P&L, the winner set,
// and proportional user payouts.
type PayoutService struct {
	rounds   domain.RoundStore
	balances domain.BalanceStore
	userBets domain.UserBetStore
	contract domain.RoundContract
	logger   *slog.Logger
}

// NewPayoutService creates a PayoutService with all required dependencies.
func NewPayoutService(
	rounds domain.RoundStore,
	balances domain.BalanceStore,
	userBets domain.UserBetStore,
	contract domain.RoundContract,
	logger *slog.Logger,
) *PayoutService {
	return &PayoutService{
		rounds:   rounds,
		balances: balances,
		userBets: userBets,
		contract: contract,
		logger:   logger.With(slog.String("component", "payout")),
	}
}

// CalculateAgentPnL persists and returns final P&L = current - starting for
// one agent. Idempotent: the inputs are frozen once trading ends, so
// recomputation overwrites with the same value.
func (s *PayoutService) CalculateAgentPnL(ctx context.Context, roundID, agentID uuid.UUID) (int64, error) {
	bal, err := s.balances.Get(ctx, roundID, agentID)
	if err != nil {
		return 0, fmt.Errorf("payout: balance for agent %s: %w", agentID, err)
	}
	pnl := bal.Current - bal.Starting
	if err := s.balances.SetFinalPnL(ctx, roundID, agentID, pnl); err != nil {
		return 0, fmt.Errorf("payout: persist pnl: %w", err)
	}
	return pnl, nil
}

// DetermineWinners returns every agent whose final P&L equals the round
// maximum. Ties produce multiple winners. No zero floor is applied: when all
// agents lost, the least-negative P&L still wins.
func (s *PayoutService) DetermineWinners(ctx context.Context, roundID uuid.UUID) ([]uuid.UUID, error) {
	bals, err := s.balances.ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("payout: list balances: %w", err)
	}
	if len(bals) == 0 {
		return nil, nil
	}

	var best int64
	haveBest := false
	for _, b := range bals {
		if b.FinalPnL == nil {
			return nil, fmt.Errorf("payout: agent %s has no final pnl", b.AgentID)
		}
		if !haveBest || *b.FinalPnL > best {
			best = *b.FinalPnL
			haveBest = true
		}
	}

	var winners []uuid.UUID
	for _, b := range bals {
		if *b.FinalPnL == best {
			winners = append(winners, b.AgentID)
		}
	}
	return winners, nil
}

// Pools derives the round's pool totals from the user bet ledger.
func (s *PayoutService) Pools(ctx context.Context, roundID uuid.UUID) (RoundPools, error) {
	bets, err := s.userBets.ListByRound(ctx, roundID)
	if err != nil {
		return RoundPools{}, fmt.Errorf("payout: list user bets: %w", err)
	}

	pools := RoundPools{ByAgent: make(map[uuid.UUID]int64)}
	for _, b := range bets {
		pools.Total += b.Amount
		pools.ByAgent[b.AgentID] += b.Amount
	}
	pools.PlatformCut = pools.Total * platformFeePercent / 100
	pools.PrizePool = pools.Total - pools.PlatformCut
	return pools, nil
}

// winnerSubPools splits the prize pool across winning agents in proportion
// to each winner's backed amount. With a single winner the whole prize pool
// is its sub-pool. Truncating division.
func winnerSubPools(pools RoundPools, winners []uuid.UUID) map[uuid.UUID]int64 {
	sub := make(map[uuid.UUID]int64, len(winners))
	if len(winners) == 0 {
		return sub
	}
	if len(winners) == 1 {
		sub[winners[0]] = pools.PrizePool
		return sub
	}

	var combined int64
	for _, w := range winners {
		combined += pools.ByAgent[w]
	}
	if combined == 0 {
		return sub
	}
	for _, w := range winners {
		sub[w] = pools.PrizePool * pools.ByAgent[w] / combined
	}
	return sub
}

// betPayout is one bet's proportional share of its agent's sub-pool.
func betPayout(amount, agentSubPool, agentTotal int64) int64 {
	if agentTotal == 0 {
		return 0
	}
	return amount * agentSubPool / agentTotal
}

// CalculateUserPayout returns one user's total payout for a round: the sum
// over their bets on winning agents of each bet's proportional share. Zero
// when the round has no winners or the user backed only losers. The payout
// does not separately return principal; the entire net prize pool is what
// gets distributed.
func (s *PayoutService) CalculateUserPayout(ctx context.Context, userID, roundID uuid.UUID) (int64, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("payout: round %s: %w", roundID, err)
	}
	if len(round.WinnerAgentIDs) == 0 {
		return 0, nil
	}

	pools, err := s.Pools(ctx, roundID)
	if err != nil {
		return 0, err
	}
	sub := winnerSubPools(pools, round.WinnerAgentIDs)

	bets, err := s.userBets.ListByUser(ctx, userID, roundID)
	if err != nil {
		return 0, fmt.Errorf("payout: list user bets: %w", err)
	}

	var total int64
	for _, b := range bets {
		agentSub, isWinner := sub[b.AgentID]
		if !isWinner {
			continue
		}
		total += betPayout(b.Amount, agentSub, pools.ByAgent[b.AgentID])
	}
	return total, nil
}

// MarkWinningBets flips every pending user bet of the round to won or lost
// in one atomic pass.
func (s *PayoutService) MarkWinningBets(ctx context.Context, roundID uuid.UUID, winners []uuid.UUID) error {
	if err := s.userBets.MarkRoundOutcome(ctx, roundID, winners); err != nil {
		return fmt.Errorf("payout: mark outcomes: %w", err)
	}
	return nil
}

// ProcessPayouts claims winnings on chain and records each won bet's payout
// amount and claim transaction. The contract claim releases a user's entire
// round winnings, so claims are issued once per user address even when the
// user holds several won bets. Per-user failures are logged and the sweep
// continues; a missed claim can be retried out of band.
func (s *PayoutService) ProcessPayouts(ctx context.Context, round domain.Round) error {
	pools, err := s.Pools(ctx, round.ID)
	if err != nil {
		return err
	}
	sub := winnerSubPools(pools, round.WinnerAgentIDs)

	won, err := s.userBets.ListByStatus(ctx, round.ID, domain.BetWon)
	if err != nil {
		return fmt.Errorf("payout: list won bets: %w", err)
	}

	byUser := make(map[string][]domain.UserAgentBet)
	users := make([]string, 0)
	for _, bet := range won {
		if _, seen := byUser[bet.UserAddress]; !seen {
			users = append(users, bet.UserAddress)
		}
		byUser[bet.UserAddress] = append(byUser[bet.UserAddress], bet)
	}

	for _, user := range users {
		txHash, err := s.contract.ClaimWinnings(ctx, round.ContractRoundID, user)
		if err != nil {
			s.logger.Error("claim winnings failed",
				slog.String("user", user),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, bet := range byUser[user] {
			amount := betPayout(bet.Amount, sub[bet.AgentID], pools.ByAgent[bet.AgentID])
			if err := s.userBets.SetPayout(ctx, bet.ID, amount, txHash); err != nil {
				s.logger.Error("record payout failed",
					slog.String("bet_id", bet.ID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return nil
}
