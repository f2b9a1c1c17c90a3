// Package service contains the round engine: agent bet coordination, user
// betting, payout math, and the round lifecycle orchestrator.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/monarena/monarena/internal/domain"
	"github.com/monarena/monarena/internal/strategy"
	"github.com/monarena/monarena/internal/tile"
)

// minLookahead is the smallest allowed column distance for a new tile bet.
// The strategy engine already respects it; the coordinator enforces it again
// before anything touches the chain.
const minLookahead = 2

// AgentBettingService coordinates agent tile bets: generation, paced on-chain
// placement, and tick-driven resolution.
type AgentBettingService struct {
	tileBets domain.TileBetStore
	balances domain.BalanceStore
	contract domain.RoundContract
	bus      domain.EventBus
	logger   *slog.Logger
}

// NewAgentBettingService creates an AgentBettingService with all required
// dependencies.
func NewAgentBettingService(
	tileBets domain.TileBetStore,
	balances domain.BalanceStore,
	contract domain.RoundContract,
	bus domain.EventBus,
	logger *slog.Logger,
) *AgentBettingService {
	return &AgentBettingService{
		tileBets: tileBets,
		balances: balances,
		contract: contract,
		bus:      bus,
		logger:   logger.With(slog.String("component", "agent_betting")),
	}
}

// GenerateBets produces the tile bets one agent will place this round. The
// strategy output is re-filtered for the minimum look-ahead and clamped so
// the committed total never exceeds the agent's unallocated pool: a bet that
// would over-commit is dropped, not shrunk.
func (s *AgentBettingService) GenerateBets(ctx context.Context, round domain.Round, agent domain.Agent, currentPrice float64, currentCol int, rng *rand.Rand) ([]domain.TileBet, error) {
	p, ok := strategy.ForArchetype(agent.Archetype)
	if !ok {
		return nil, fmt.Errorf("agent_betting: unknown archetype %q", agent.Archetype)
	}

	bal, err := s.balances.Get(ctx, round.ID, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("agent_betting: balance for agent %s: %w", agent.ID, err)
	}
	pool := bal.Unallocated()

	drafts := strategy.Generate(p, pool, currentPrice, currentCol, rng)

	bets := make([]domain.TileBet, 0, len(drafts))
	var committed int64
	for _, b := range drafts {
		if b.Col < currentCol+minLookahead {
			continue
		}
		if b.Amount <= 0 || committed+b.Amount > pool {
			continue
		}
		committed += b.Amount
		bets = append(bets, b)
	}
	return bets, nil
}

// PlaceGradually trickles the bets onto the chain, evenly paced across the
// placement window. A single placement failure is logged and skipped; the
// batch is best-effort with no rollback. Returns early only when ctx ends.
func (s *AgentBettingService) PlaceGradually(ctx context.Context, round domain.Round, agent domain.Agent, bets []domain.TileBet, window time.Duration) error {
	if len(bets) == 0 {
		return nil
	}

	interval := window / time.Duration(len(bets))
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	for _, draft := range bets {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("agent_betting: placement interrupted: %w", err)
		}
		if err := s.placeOne(ctx, round, agent, draft); err != nil {
			s.logger.Warn("tile bet placement failed, continuing",
				slog.String("round_id", round.ID.String()),
				slog.String("agent", string(agent.Archetype)),
				slog.Int("col", draft.Col),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// placeOne reserves the stake in the agent's pool before touching the chain.
// The guarded reservation is what keeps racing placements inside the starting
// pool: a draft that would over-commit fails with domain.ErrPoolExceeded and
// nothing is recorded. A failure after the reservation releases it again.
func (s *AgentBettingService) placeOne(ctx context.Context, round domain.Round, agent domain.Agent, draft domain.TileBet) error {
	if err := s.balances.AddAllocated(ctx, round.ID, agent.ID, draft.Amount); err != nil {
		return fmt.Errorf("agent_betting: reserve pool: %w", err)
	}

	txHash, err := s.contract.RecordAgentBet(ctx, round.ContractRoundID, agent.ContractIndex, draft.Amount)
	if err != nil {
		s.releaseAllocation(ctx, round, agent, draft.Amount)
		return fmt.Errorf("agent_betting: record bet on chain: %w", err)
	}

	bet, err := s.tileBets.Create(ctx, domain.AgentTileBet{
		RoundID:        round.ID,
		AgentID:        agent.ID,
		Col:            draft.Col,
		Row:            draft.Row,
		TargetPrice:    draft.TargetPrice,
		Amount:         draft.Amount,
		Multiplier:     draft.Multiplier,
		ContractTxHash: txHash,
	})
	if err != nil {
		s.releaseAllocation(ctx, round, agent, draft.Amount)
		return fmt.Errorf("agent_betting: persist tile bet: %w", err)
	}

	if pubErr := s.bus.Publish(ctx, domain.EventAgentBetPlaced, round.ID, map[string]any{
		"bet_id":     bet.ID.String(),
		"agent_id":   agent.ID.String(),
		"col":        bet.Col,
		"row":        bet.Row,
		"amount":     bet.Amount,
		"multiplier": bet.Multiplier,
	}); pubErr != nil {
		s.logger.Warn("publish bet placed event failed", slog.String("error", pubErr.Error()))
	}
	return nil
}

func (s *AgentBettingService) releaseAllocation(ctx context.Context, round domain.Round, agent domain.Agent, amount int64) {
	if err := s.balances.AddAllocated(ctx, round.ID, agent.ID, -amount); err != nil {
		s.logger.Error("release pool reservation failed",
			slog.String("round_id", round.ID.String()),
			slog.String("agent", string(agent.Archetype)),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

// EvaluateBet resolves one pending tile bet against a realized price. A win
// pays amount x multiplier (integer, truncating) into the agent's balance; a
// loss deducts the full stake. The status-guarded store update makes the
// resolution happen at most once: a bet already resolved by a concurrent
// tick returns domain.ErrAlreadyResolved with no state change.
func (s *AgentBettingService) EvaluateBet(ctx context.Context, bet domain.AgentTileBet, price float64) error {
	won := price >= bet.TargetPrice && price < bet.TargetPrice+tile.PriceStep

	var delta int64
	status := domain.BetLost
	if won {
		bps := int64(math.Round(bet.Multiplier * 100))
		delta = tile.WinProfit(bet.Amount, bps)
		status = domain.BetWon
	} else {
		delta = -bet.Amount
	}

	resolved, err := s.tileBets.Resolve(ctx, bet.ID, status, delta)
	if err != nil {
		return fmt.Errorf("agent_betting: resolve bet %s: %w", bet.ID, err)
	}
	if !resolved {
		return domain.ErrAlreadyResolved
	}

	if err := s.balances.ApplyResolution(ctx, bet.RoundID, bet.AgentID, delta, won); err != nil {
		return fmt.Errorf("agent_betting: apply resolution: %w", err)
	}

	if pubErr := s.bus.Publish(ctx, domain.EventAgentBetResolved, bet.RoundID, map[string]any{
		"bet_id":      bet.ID.String(),
		"agent_id":    bet.AgentID.String(),
		"won":         won,
		"profit_loss": delta,
		"price":       price,
	}); pubErr != nil {
		s.logger.Warn("publish bet resolved event failed", slog.String("error", pubErr.Error()))
	}
	return nil
}

// ResolveDue evaluates every pending bet whose column has been reached at
// the given price. Individual failures are logged; the sweep continues.
func (s *AgentBettingService) ResolveDue(ctx context.Context, round domain.Round, price float64, currentCol int) error {
	due, err := s.tileBets.ListPendingDue(ctx, round.ID, currentCol)
	if err != nil {
		return fmt.Errorf("agent_betting: list due bets: %w", err)
	}
	for _, bet := range due {
		err := s.EvaluateBet(ctx, bet, price)
		if errors.Is(err, domain.ErrAlreadyResolved) {
			// Lost the race to a concurrent tick; nothing to do.
			continue
		}
		if err != nil {
			s.logger.Warn("bet evaluation failed",
				slog.String("bet_id", bet.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ResolveAllPending settles every still-pending bet of the round against the
// final price, regardless of column. Called once when trading ends so no bet
// is ever left pending.
func (s *AgentBettingService) ResolveAllPending(ctx context.Context, round domain.Round, finalPrice float64) error {
	pending, err := s.tileBets.ListPending(ctx, round.ID)
	if err != nil {
		return fmt.Errorf("agent_betting: list pending bets: %w", err)
	}
	for _, bet := range pending {
		err := s.EvaluateBet(ctx, bet, finalPrice)
		if err != nil && !errors.Is(err, domain.ErrAlreadyResolved) {
			return err
		}
	}
	return nil
}
