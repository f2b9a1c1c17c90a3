package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
)

// UserBettingService records user stakes on agents during the betting window.
type UserBettingService struct {
	rounds   domain.RoundStore
	userBets domain.UserBetStore
	balances domain.BalanceStore
	contract domain.RoundContract
	bus      domain.EventBus
	minBet   int64
	logger   *slog.Logger
}

// NewUserBettingService creates a UserBettingService. minBet is the smallest
// accepted stake in minor units.
func NewUserBettingService(
	rounds domain.RoundStore,
	userBets domain.UserBetStore,
	balances domain.BalanceStore,
	contract domain.RoundContract,
	bus domain.EventBus,
	minBet int64,
	logger *slog.Logger,
) *UserBettingService {
	return &UserBettingService{
		rounds:   rounds,
		userBets: userBets,
		balances: balances,
		contract: contract,
		bus:      bus,
		minBet:   minBet,
		logger:   logger.With(slog.String("component", "user_betting")),
	}
}

// PlaceBet records a user's stake on an agent after verifying the on-chain
// deposit. Validation failures return named errors with no side effects. A
// resubmitted transaction hash is an idempotent success: the existing bet is
// returned and nothing is double-counted.
func (s *UserBettingService) PlaceBet(ctx context.Context, userID uuid.UUID, userAddress string, roundID, agentID uuid.UUID, amount int64, txHash string) (domain.UserAgentBet, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return domain.UserAgentBet{}, fmt.Errorf("user_betting: round %s: %w", roundID, err)
	}
	if round.Status != domain.RoundBetting {
		return domain.UserAgentBet{}, domain.ErrBettingClosed
	}
	if amount < s.minBet {
		return domain.UserAgentBet{}, domain.ErrBetTooSmall
	}

	if err := s.contract.VerifyDeposit(ctx, txHash); err != nil {
		return domain.UserAgentBet{}, fmt.Errorf("user_betting: deposit %s: %w", txHash, err)
	}

	bet, err := s.userBets.Create(ctx, domain.UserAgentBet{
		UserID:      userID,
		UserAddress: userAddress,
		RoundID:     roundID,
		AgentID:     agentID,
		Amount:      amount,
		TxHash:      txHash,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateBet) {
			existing, getErr := s.userBets.GetByTxHash(ctx, txHash)
			if getErr != nil {
				return domain.UserAgentBet{}, fmt.Errorf("user_betting: fetch duplicate %s: %w", txHash, getErr)
			}
			s.logger.Info("duplicate bet submission, returning existing",
				slog.String("tx_hash", txHash),
			)
			return existing, nil
		}
		return domain.UserAgentBet{}, fmt.Errorf("user_betting: create bet: %w", err)
	}

	newPool, err := s.balances.AddToStarting(ctx, roundID, agentID, amount)
	if err != nil {
		return domain.UserAgentBet{}, fmt.Errorf("user_betting: grow agent pool: %w", err)
	}

	if pubErr := s.bus.Publish(ctx, domain.EventAgentPoolUpdate, roundID, map[string]any{
		"agent_id": agentID.String(),
		"pool":     newPool,
	}); pubErr != nil {
		s.logger.Warn("publish pool update failed", slog.String("error", pubErr.Error()))
	}

	return bet, nil
}
