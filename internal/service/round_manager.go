package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/monarena/monarena/internal/domain"
	"github.com/monarena/monarena/internal/strategy"
)

// RoundRecorder starts and stops per-round price sampling. Implemented by
// the feed package.
type RoundRecorder interface {
	SubscribeRound(ctx context.Context, roundID uuid.UUID)
	UnsubscribeRound(roundID uuid.UUID)
}

// RoundManagerConfig holds the timing and stake parameters of the round
// lifecycle.
type RoundManagerConfig struct {
	// BettingDuration is the length of the user betting window.
	BettingDuration time.Duration
	// TradingDuration is the length of the agent trading window.
	TradingDuration time.Duration
	// ColumnDuration maps wall-clock trading time onto tile columns.
	ColumnDuration time.Duration
	// PlacementWindow is the wall-clock span agent placements are paced over.
	PlacementWindow time.Duration
	// Cooldown is the pause between a settled round and the next one.
	Cooldown time.Duration
	// FailureDelay is the pause after a cancelled round before retrying.
	FailureDelay time.Duration
	// SeedStake is the house stake each agent starts a round with.
	SeedStake int64
}

// RoundManager drives the round lifecycle BETTING -> TRADING -> SETTLING ->
// SETTLED with a single control loop. Phase boundaries are timed sleeps, not
// polling; tile resolution during trading is driven by feed ticks. Any phase
// error cancels the round and the loop continues with the next one.
type RoundManager struct {
	cfg          RoundManagerConfig
	rounds       domain.RoundStore
	agents       domain.AgentStore
	balances     domain.BalanceStore
	agentBetting *AgentBettingService
	payouts      *PayoutService
	feed         domain.PriceFeed
	recorder     RoundRecorder
	contract     domain.RoundContract
	bus          domain.EventBus
	archiver     domain.RoundArchiver
	logger       *slog.Logger
	newRNG       func() *rand.Rand

	ticks chan domain.PriceTick

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRoundManager creates a RoundManager. archiver may be nil to disable
// cold-storage export.
func NewRoundManager(
	cfg RoundManagerConfig,
	rounds domain.RoundStore,
	agents domain.AgentStore,
	balances domain.BalanceStore,
	agentBetting *AgentBettingService,
	payouts *PayoutService,
	priceFeed domain.PriceFeed,
	recorder RoundRecorder,
	contract domain.RoundContract,
	bus domain.EventBus,
	archiver domain.RoundArchiver,
	logger *slog.Logger,
) *RoundManager {
	return &RoundManager{
		cfg:          cfg,
		rounds:       rounds,
		agents:       agents,
		balances:     balances,
		agentBetting: agentBetting,
		payouts:      payouts,
		feed:         priceFeed,
		recorder:     recorder,
		contract:     contract,
		bus:          bus,
		archiver:     archiver,
		logger:       logger.With(slog.String("component", "round_manager")),
		newRNG: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		ticks: make(chan domain.PriceTick, 1),
	}
}

// SetRNGSource overrides the per-round RNG constructor. Tests use this to
// make strategy output deterministic.
func (m *RoundManager) SetRNGSource(f func() *rand.Rand) {
	m.newRNG = f
}

// HandleTick feeds a live price observation into the manager. Non-blocking:
// when a resolution sweep is already in flight the tick is dropped, the next
// one will catch up.
func (m *RoundManager) HandleTick(tick domain.PriceTick) {
	select {
	case m.ticks <- tick:
	default:
	}
}

// Start launches the control loop. Idempotent: a second Start while running
// is a no-op.
func (m *RoundManager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.run(runCtx)
	}()
}

// Stop halts the loop after the current phase step and waits for it to exit.
func (m *RoundManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done
}

func (m *RoundManager) run(ctx context.Context) {
	m.logger.Info("round loop started")
	defer m.logger.Info("round loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if err := m.runRound(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("round failed", slog.String("error", err.Error()))
			if !sleepCtx(ctx, m.cfg.FailureDelay) {
				return
			}
			continue
		}
		if !sleepCtx(ctx, m.cfg.Cooldown) {
			return
		}
	}
}

// runRound executes one full round. Errors after creation cancel the round
// on chain and in the ledger before propagating.
func (m *RoundManager) runRound(ctx context.Context) error {
	round, err := m.createRound(ctx)
	if err != nil {
		return err
	}

	if err := m.executeRound(ctx, round); err != nil {
		if ctx.Err() != nil {
			// Shutdown, not failure: leave the round as-is for the next
			// process to pick up or cancel.
			return err
		}
		m.cancelRound(round, err)
		return err
	}
	return nil
}

func (m *RoundManager) createRound(ctx context.Context) (domain.Round, error) {
	tick, err := m.feed.Current()
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_manager: starting price: %w", err)
	}

	latest, err := m.rounds.LatestNumber(ctx)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_manager: latest round number: %w", err)
	}
	number := latest + 1

	now := time.Now().UTC()
	round := domain.Round{
		ID:              uuid.New(),
		Number:          number,
		ContractRoundID: fmt.Sprintf("round-%d", number),
		Status:          domain.RoundBetting,
		StartTime:       now,
		BettingEndTime:  now.Add(m.cfg.BettingDuration),
		RoundEndTime:    now.Add(m.cfg.BettingDuration + m.cfg.TradingDuration),
		StartingPrice:   tick.Price,
	}

	if _, err := m.contract.CreateRound(ctx, round.ContractRoundID, round.BettingEndTime, round.RoundEndTime); err != nil {
		return domain.Round{}, fmt.Errorf("round_manager: create round on chain: %w", err)
	}

	if err := m.rounds.Create(ctx, round); err != nil {
		// The contract round exists but the ledger row does not; void the
		// contract side so the reference cannot be reused inconsistently.
		m.cancelContract(round, err)
		return domain.Round{}, fmt.Errorf("round_manager: persist round: %w", err)
	}

	agents, err := m.agents.List(ctx)
	if err != nil {
		m.cancelRound(round, err)
		return domain.Round{}, fmt.Errorf("round_manager: list agents: %w", err)
	}
	for _, a := range agents {
		if err := m.balances.Seed(ctx, round.ID, a.ID, m.cfg.SeedStake); err != nil {
			m.cancelRound(round, err)
			return domain.Round{}, fmt.Errorf("round_manager: seed balance: %w", err)
		}
	}

	m.publish(ctx, domain.EventRoundStarted, round.ID, map[string]any{
		"number":           round.Number,
		"betting_end_time": round.BettingEndTime.Format(time.RFC3339),
		"round_end_time":   round.RoundEndTime.Format(time.RFC3339),
		"starting_price":   round.StartingPrice,
	})
	m.logger.Info("round created",
		slog.Int("number", round.Number),
		slog.Float64("starting_price", round.StartingPrice),
	)
	return round, nil
}

func (m *RoundManager) executeRound(ctx context.Context, round domain.Round) error {
	// Betting window.
	if !sleepUntil(ctx, round.BettingEndTime) {
		return ctx.Err()
	}

	tradingStart, err := m.startTrading(ctx, round)
	if err != nil {
		return err
	}
	defer m.recorder.UnsubscribeRound(round.ID)

	// Per-agent placement runs concurrently with the trading window. The
	// placement context is cancelled when trading ends so stragglers stop
	// instead of leaking into settlement.
	placeCtx, cancelPlace := context.WithCancel(ctx)
	defer cancelPlace()
	group := m.startPlacements(placeCtx, round, tradingStart)

	if err := m.tradingLoop(ctx, round, tradingStart); err != nil {
		return err
	}

	cancelPlace()
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Warn("placement group ended with error", slog.String("error", err.Error()))
	}

	return m.settle(ctx, round)
}

func (m *RoundManager) startTrading(ctx context.Context, round domain.Round) (time.Time, error) {
	if _, err := m.contract.LockBetting(ctx, round.ContractRoundID); err != nil {
		return time.Time{}, fmt.Errorf("round_manager: lock betting: %w", err)
	}
	if err := m.rounds.UpdateStatus(ctx, round.ID, domain.RoundBetting, domain.RoundTrading); err != nil {
		return time.Time{}, fmt.Errorf("round_manager: to trading: %w", err)
	}

	m.recorder.SubscribeRound(ctx, round.ID)

	m.publish(ctx, domain.EventTradingStarted, round.ID, nil)
	m.logger.Info("trading started", slog.Int("number", round.Number))
	return time.Now().UTC(), nil
}

// startPlacements launches one supervised placement task per agent. Failures
// of one agent do not stop the others.
func (m *RoundManager) startPlacements(ctx context.Context, round domain.Round, tradingStart time.Time) *errgroup.Group {
	group, gctx := errgroup.WithContext(ctx)

	agents, err := m.agents.List(ctx)
	if err != nil {
		m.logger.Error("list agents for placement failed", slog.String("error", err.Error()))
		return group
	}

	tick, err := m.feed.Current()
	if err != nil {
		m.logger.Error("no price for placement", slog.String("error", err.Error()))
		return group
	}
	currentCol := m.columnAt(tradingStart, time.Now())

	for _, agent := range agents {
		rng := m.newRNG()
		group.Go(func() error {
			bets, err := m.agentBetting.GenerateBets(gctx, round, agent, tick.Price, currentCol, rng)
			if err != nil {
				m.logger.Error("bet generation failed",
					slog.String("agent", string(agent.Archetype)),
					slog.String("error", err.Error()),
				)
				return nil
			}
			return m.agentBetting.PlaceGradually(gctx, round, agent, bets, m.cfg.PlacementWindow)
		})
	}
	return group
}

// tradingLoop resolves due tile bets on every feed tick until the round end
// time is reached.
func (m *RoundManager) tradingLoop(ctx context.Context, round domain.Round, tradingStart time.Time) error {
	timer := time.NewTimer(time.Until(round.RoundEndTime))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case tick := <-m.ticks:
			col := m.columnAt(tradingStart, tick.Timestamp)
			if err := m.agentBetting.ResolveDue(ctx, round, tick.Price, col); err != nil {
				m.logger.Warn("resolution sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (m *RoundManager) settle(ctx context.Context, round domain.Round) error {
	if err := m.rounds.UpdateStatus(ctx, round.ID, domain.RoundTrading, domain.RoundSettling); err != nil {
		return fmt.Errorf("round_manager: to settling: %w", err)
	}

	finalTick, err := m.feed.Current()
	if err != nil {
		return fmt.Errorf("round_manager: final price: %w", err)
	}

	// No bet may be left pending: anything not yet resolved settles against
	// the final price.
	if err := m.agentBetting.ResolveAllPending(ctx, round, finalTick.Price); err != nil {
		return err
	}

	agents, err := m.agents.List(ctx)
	if err != nil {
		return fmt.Errorf("round_manager: list agents: %w", err)
	}

	var pnls [domain.AgentCount]int64
	for _, a := range agents {
		pnl, err := m.payouts.CalculateAgentPnL(ctx, round.ID, a.ID)
		if err != nil {
			return err
		}
		if a.ContractIndex >= 0 && a.ContractIndex < domain.AgentCount {
			pnls[a.ContractIndex] = pnl
		}
	}

	winners, err := m.payouts.DetermineWinners(ctx, round.ID)
	if err != nil {
		return err
	}

	if _, err := m.contract.SettleRound(ctx, round.ContractRoundID, pnls); err != nil {
		return fmt.Errorf("round_manager: settle on chain: %w", err)
	}

	pools, err := m.payouts.Pools(ctx, round.ID)
	if err != nil {
		return err
	}
	if err := m.rounds.SetSettled(ctx, round.ID, finalTick.Price, winners, pools.Total, pools.PlatformCut); err != nil {
		return fmt.Errorf("round_manager: persist settlement: %w", err)
	}
	round.Status = domain.RoundSettled
	round.FinalPrice = finalTick.Price
	round.WinnerAgentIDs = winners

	if err := m.payouts.MarkWinningBets(ctx, round.ID, winners); err != nil {
		return err
	}
	if err := m.payouts.ProcessPayouts(ctx, round); err != nil {
		return err
	}

	winnerSet := make(map[uuid.UUID]bool, len(winners))
	for _, w := range winners {
		winnerSet[w] = true
	}
	for _, a := range agents {
		if err := m.agents.IncrementStats(ctx, a.ID, winnerSet[a.ID]); err != nil {
			m.logger.Warn("agent stats update failed",
				slog.String("agent", string(a.Archetype)),
				slog.String("error", err.Error()),
			)
		}
	}

	if m.archiver != nil {
		if n, err := m.archiver.ArchiveRound(ctx, round.ID); err != nil {
			m.logger.Warn("round archive failed", slog.String("error", err.Error()))
		} else {
			m.logger.Info("round archived", slog.Int("objects", n))
		}
	}

	winnerIDs := make([]string, 0, len(winners))
	for _, w := range winners {
		winnerIDs = append(winnerIDs, w.String())
	}
	m.publish(ctx, domain.EventRoundSettled, round.ID, map[string]any{
		"number":       round.Number,
		"final_price":  finalTick.Price,
		"winners":      winnerIDs,
		"total_pool":   pools.Total,
		"platform_cut": pools.PlatformCut,
	})
	m.logger.Info("round settled",
		slog.Int("number", round.Number),
		slog.Int("winners", len(winners)),
		slog.Int64("total_pool", pools.Total),
	)
	return nil
}

// cancelRound voids a failed round. Refunds for recorded user bets are the
// contract's responsibility, not computed here. Runs on a fresh context so
// cancellation still lands when the failure was a context timeout.
func (m *RoundManager) cancelRound(round domain.Round, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	m.cancelContract(round, cause)

	if err := m.rounds.SetCancelled(ctx, round.ID, cause.Error()); err != nil {
		m.logger.Error("persist cancellation failed", slog.String("error", err.Error()))
	}
	m.recorder.UnsubscribeRound(round.ID)

	m.publish(ctx, domain.EventRoundCancelled, round.ID, map[string]any{
		"number": round.Number,
		"reason": cause.Error(),
	})
	m.logger.Warn("round cancelled",
		slog.Int("number", round.Number),
		slog.String("reason", cause.Error()),
	)
}

func (m *RoundManager) cancelContract(round domain.Round, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if _, err := m.contract.CancelRound(ctx, round.ContractRoundID, cause.Error()); err != nil {
		m.logger.Error("contract cancel failed",
			slog.String("round_ref", round.ContractRoundID),
			slog.String("error", err.Error()),
		)
	}
}

// columnAt maps a wall-clock instant onto a tile column index relative to
// the trading start.
func (m *RoundManager) columnAt(tradingStart, at time.Time) int {
	if m.cfg.ColumnDuration <= 0 {
		return 0
	}
	elapsed := at.Sub(tradingStart)
	if elapsed < 0 {
		return 0
	}
	return int(elapsed / m.cfg.ColumnDuration)
}

func (m *RoundManager) publish(ctx context.Context, event string, roundID uuid.UUID, data map[string]any) {
	if err := m.bus.Publish(ctx, event, roundID, data); err != nil {
		m.logger.Warn("event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// EnsureRoster upserts the fixed four-agent roster so every deployment works
// against the same agent IDs.
func EnsureRoster(ctx context.Context, agents domain.AgentStore) error {
	for _, a := range strategy.DefaultAgents() {
		if err := agents.Upsert(ctx, a); err != nil {
			return fmt.Errorf("service: seed agent %s: %w", a.Archetype, err)
		}
	}
	return nil
}

// sleepCtx pauses for d and reports whether the full duration elapsed
// (false when ctx ended first).
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// sleepUntil pauses until t and reports whether t was reached.
func sleepUntil(ctx context.Context, t time.Time) bool {
	return sleepCtx(ctx, time.Until(t))
}
